package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"surveytrack-data/internal/domain"
	"surveytrack-data/internal/repository"
)

// QueryService 分配记录只读查询服务接口
// Read-side views over the ledger; never mutates anything.
type QueryService interface {
	ListAssignments(ctx context.Context, req ListAssignmentsRequest) (*ListAssignmentsResponse, error)
	AssignmentsForSurvey(ctx context.Context, surveyID string) ([]*domain.Assignment, error)
	AvailableDevices(ctx context.Context, allDeviceIDs []string) ([]string, error)
}

// queryService 实现
type queryService struct {
	repo   repository.AssignmentsRepository
	logger *zap.Logger
}

// NewQueryService 创建 QueryService 实例
func NewQueryService(repo repository.AssignmentsRepository, logger *zap.Logger) QueryService {
	return &queryService{repo: repo, logger: logger}
}

// ListAssignmentsRequest 查询分配列表请求
type ListAssignmentsRequest struct {
	DeviceID string   // optional
	SurveyID string   // optional
	Status   []string // optional
	Page     int      // optional, default 1
	Size     int      // optional, default 20
}

// ListAssignmentsResponse 查询分配列表响应
type ListAssignmentsResponse struct {
	Items []*domain.Assignment
	Total int
}

// ListAssignments 查询分配列表（from_date 降序）
func (s *queryService) ListAssignments(ctx context.Context, req ListAssignmentsRequest) (*ListAssignmentsResponse, error) {
	for _, st := range req.Status {
		if st != domain.StatusActive && st != domain.StatusCompleted && st != domain.StatusCancelled {
			return nil, &domain.ValidationError{Field: "status", Reason: "unknown status " + st}
		}
	}

	page := req.Page
	if page <= 0 {
		page = 1
	}
	size := req.Size
	if size <= 0 {
		size = 20
	}

	items, total, err := s.repo.ListAssignments(ctx, repository.AssignmentFilters{
		DeviceID: req.DeviceID,
		SurveyID: req.SurveyID,
		Status:   req.Status,
	}, page, size)
	if err != nil {
		s.logger.Error("ListAssignments failed", zap.Error(err))
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return &ListAssignmentsResponse{Items: items, Total: total}, nil
}

// AssignmentsForSurvey 查询某勘测的全部设备使用历史（任意状态，最近优先）
func (s *queryService) AssignmentsForSurvey(ctx context.Context, surveyID string) ([]*domain.Assignment, error) {
	if surveyID == "" {
		return nil, &domain.ValidationError{Field: "survey_id", Reason: "required"}
	}

	items, _, err := s.repo.ListAssignments(ctx, repository.AssignmentFilters{SurveyID: surveyID}, 0, 0)
	if err != nil {
		s.logger.Error("AssignmentsForSurvey failed",
			zap.String("survey_id", surveyID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list survey assignments: %w", err)
	}
	return items, nil
}

// AvailableDevices 从给定设备全集里去掉当前持有 ACTIVE 分配的设备
// Order follows the caller's list; duplicates are dropped.
func (s *queryService) AvailableDevices(ctx context.Context, allDeviceIDs []string) ([]string, error) {
	activeIDs, err := s.repo.ActiveDeviceIDs(ctx)
	if err != nil {
		s.logger.Error("AvailableDevices failed", zap.Error(err))
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}

	busy := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		busy[id] = struct{}{}
	}

	seen := map[string]struct{}{}
	available := []string{}
	for _, id := range allDeviceIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, taken := busy[id]; !taken {
			available = append(available, id)
		}
	}
	return available, nil
}
