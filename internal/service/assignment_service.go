package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"surveytrack-data/internal/domain"
	"surveytrack-data/internal/repository"
)

// AssignmentService 设备-勘测分配调度服务接口
// Enforces the per-device non-overlap invariant and drives the
// ACTIVE -> COMPLETED/CANCELLED lifecycle. The repository underneath is a
// dumb ledger; every conflict decision is made here.
type AssignmentService interface {
	// 冲突检测（只读）
	FindConflicts(ctx context.Context, req FindConflictsRequest) (*FindConflictsResponse, error)

	// 创建
	ProposeAssignment(ctx context.Context, req ProposeAssignmentRequest) (*ProposeAssignmentResponse, error)

	// 延期
	ExtendAssignment(ctx context.Context, req ExtendAssignmentRequest) (*ExtendAssignmentResponse, error)

	// 撤销（完成/取消）
	RevokeAssignment(ctx context.Context, req RevokeAssignmentRequest) (*RevokeAssignmentResponse, error)

	// 查询单条 / 纠错删除
	GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error)
	DeleteAssignment(ctx context.Context, assignmentID string) error
}

// EventPublisher 生命周期事件发布（可选，nil 时跳过）
type EventPublisher interface {
	PublishJSON(ctx context.Context, event string, data any) (string, error)
}

// assignmentService 实现
type assignmentService struct {
	repo   repository.AssignmentsRepository
	events EventPublisher
	logger *zap.Logger

	// per-device serialization of the check-then-write sequence; the lock
	// is held only for one conflict check plus one repository write
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewAssignmentService 创建 AssignmentService 实例
func NewAssignmentService(repo repository.AssignmentsRepository, events EventPublisher, logger *zap.Logger) AssignmentService {
	return &assignmentService{
		repo:   repo,
		events: events,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
		now:    time.Now,
	}
}

func (s *assignmentService) deviceLock(deviceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}
	return l
}

// FindConflictsRequest 冲突检测请求
type FindConflictsRequest struct {
	DeviceID            string
	FromDate            time.Time
	ToDate              time.Time
	ExcludeAssignmentID string // set during extension to skip self-conflict
}

// FindConflictsResponse 冲突检测响应
type FindConflictsResponse struct {
	Conflicts []*domain.Assignment // empty means the window is free
}

// FindConflicts returns every ACTIVE assignment of the device whose window
// overlaps [FromDate, ToDate]. Bounds are inclusive: touching endpoints
// conflict.
func (s *assignmentService) FindConflicts(ctx context.Context, req FindConflictsRequest) (*FindConflictsResponse, error) {
	if req.DeviceID == "" {
		return nil, &domain.ValidationError{Field: "device_id", Reason: "required"}
	}
	if req.FromDate.IsZero() || req.ToDate.IsZero() {
		return nil, &domain.ValidationError{Field: "from_date/to_date", Reason: "required"}
	}
	if req.FromDate.After(req.ToDate) {
		return nil, &domain.ValidationError{Field: "to_date", Reason: "must not precede from_date"}
	}

	conflicts, err := s.findConflicts(ctx, req.DeviceID, req.FromDate, req.ToDate, req.ExcludeAssignmentID)
	if err != nil {
		return nil, err
	}
	return &FindConflictsResponse{Conflicts: conflicts}, nil
}

func (s *assignmentService) findConflicts(ctx context.Context, deviceID string, from, to time.Time, excludeID string) ([]*domain.Assignment, error) {
	active, err := s.repo.ListActiveByDevice(ctx, deviceID)
	if err != nil {
		s.logger.Error("conflict lookup failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to look up active assignments: %w", err)
	}

	conflicts := []*domain.Assignment{}
	for _, a := range active {
		if excludeID != "" && a.AssignmentID == excludeID {
			continue
		}
		if a.Overlaps(from, to) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts, nil
}

// ProposeAssignmentRequest 创建分配请求
type ProposeAssignmentRequest struct {
	DeviceID   string
	SurveyID   string
	FromDate   time.Time
	ToDate     time.Time
	AssignedBy string
	Notes      string
}

// ProposeAssignmentResponse 创建分配响应
type ProposeAssignmentResponse struct {
	Assignment *domain.Assignment
}

// ProposeAssignment creates an ACTIVE assignment after verifying the window
// is free. On conflict it returns a *domain.ConflictError carrying the
// blocking records and mutates nothing.
func (s *assignmentService) ProposeAssignment(ctx context.Context, req ProposeAssignmentRequest) (*ProposeAssignmentResponse, error) {
	if req.DeviceID == "" {
		return nil, &domain.ValidationError{Field: "device_id", Reason: "required"}
	}
	if req.SurveyID == "" {
		return nil, &domain.ValidationError{Field: "survey_id", Reason: "required"}
	}
	if req.AssignedBy == "" {
		return nil, &domain.ValidationError{Field: "assigned_by", Reason: "required"}
	}
	if req.FromDate.IsZero() || req.ToDate.IsZero() {
		return nil, &domain.ValidationError{Field: "from_date/to_date", Reason: "required"}
	}
	if req.FromDate.After(req.ToDate) {
		return nil, &domain.ValidationError{Field: "to_date", Reason: "must not precede from_date"}
	}

	lock := s.deviceLock(req.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	conflicts, err := s.findConflicts(ctx, req.DeviceID, req.FromDate, req.ToDate, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &domain.ConflictError{DeviceID: req.DeviceID, Conflicts: conflicts}
	}

	a := &domain.Assignment{
		DeviceID:   req.DeviceID,
		SurveyID:   req.SurveyID,
		FromDate:   req.FromDate,
		ToDate:     req.ToDate,
		Status:     domain.StatusActive,
		AssignedBy: req.AssignedBy,
		Notes:      req.Notes,
	}
	id, err := s.repo.CreateAssignment(ctx, a)
	if err != nil {
		s.logger.Error("ProposeAssignment failed",
			zap.String("device_id", req.DeviceID),
			zap.String("survey_id", req.SurveyID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	created, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load created assignment: %w", err)
	}

	s.publish(ctx, "assignment.created", created)
	return &ProposeAssignmentResponse{Assignment: created}, nil
}

// ExtendAssignmentRequest 延期请求
type ExtendAssignmentRequest struct {
	AssignmentID string
	NewToDate    time.Time
}

// ExtendAssignmentResponse 延期响应
type ExtendAssignmentResponse struct {
	Assignment *domain.Assignment
}

// ExtendAssignment moves an ACTIVE assignment's to_date after re-validating
// the enlarged window against the invariant, excluding the record itself.
// On conflict the stored to_date stays untouched.
func (s *assignmentService) ExtendAssignment(ctx context.Context, req ExtendAssignmentRequest) (*ExtendAssignmentResponse, error) {
	if req.AssignmentID == "" {
		return nil, &domain.ValidationError{Field: "assignment_id", Reason: "required"}
	}
	if req.NewToDate.IsZero() {
		return nil, &domain.ValidationError{Field: "to_date", Reason: "required"}
	}

	// First load only learns the device id for lock scoping.
	a, err := s.repo.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	lock := s.deviceLock(a.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: a concurrent revoke may have won the race.
	a, err = s.repo.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, fmt.Errorf("extend %s: %w", req.AssignmentID, domain.ErrInvalidTransition)
	}
	if req.NewToDate.Before(a.FromDate) {
		return nil, &domain.ValidationError{Field: "to_date", Reason: "must not precede from_date"}
	}

	conflicts, err := s.findConflicts(ctx, a.DeviceID, a.FromDate, req.NewToDate, a.AssignmentID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &domain.ConflictError{DeviceID: a.DeviceID, Conflicts: conflicts}
	}

	newToDate := req.NewToDate
	updated, err := s.repo.UpdateAssignment(ctx, req.AssignmentID, repository.AssignmentUpdate{ToDate: &newToDate})
	if err != nil {
		s.logger.Error("ExtendAssignment failed",
			zap.String("assignment_id", req.AssignmentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to extend assignment: %w", err)
	}

	s.publish(ctx, "assignment.extended", updated)
	return &ExtendAssignmentResponse{Assignment: updated}, nil
}

// RevokeAssignmentRequest 撤销请求
type RevokeAssignmentRequest struct {
	AssignmentID string
	Outcome      string // 'COMPLETED' or 'CANCELLED'
}

// RevokeAssignmentResponse 撤销响应
type RevokeAssignmentResponse struct {
	Assignment *domain.Assignment
}

// RevokeAssignment moves an ACTIVE assignment to a terminal state. A second
// revoke is rejected with ErrInvalidTransition, never silently accepted.
//
// COMPLETED is an early close-out: to_date is clamped to now when the
// engagement ends ahead of schedule (and to from_date when it never started),
// keeping from_date <= to_date. CANCELLED keeps to_date as a record of what
// was originally planned.
func (s *assignmentService) RevokeAssignment(ctx context.Context, req RevokeAssignmentRequest) (*RevokeAssignmentResponse, error) {
	if req.AssignmentID == "" {
		return nil, &domain.ValidationError{Field: "assignment_id", Reason: "required"}
	}
	if req.Outcome != domain.StatusCompleted && req.Outcome != domain.StatusCancelled {
		return nil, &domain.ValidationError{Field: "outcome", Reason: "must be COMPLETED or CANCELLED"}
	}

	a, err := s.repo.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	lock := s.deviceLock(a.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	a, err = s.repo.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, fmt.Errorf("revoke %s: %w", req.AssignmentID, domain.ErrInvalidTransition)
	}

	outcome := req.Outcome
	upd := repository.AssignmentUpdate{Status: &outcome}
	if req.Outcome == domain.StatusCompleted {
		now := s.now().UTC()
		if now.Before(a.ToDate) {
			end := now
			if now.Before(a.FromDate) {
				end = a.FromDate
			}
			upd.ToDate = &end
		}
	}

	updated, err := s.repo.UpdateAssignment(ctx, req.AssignmentID, upd)
	if err != nil {
		s.logger.Error("RevokeAssignment failed",
			zap.String("assignment_id", req.AssignmentID),
			zap.String("outcome", req.Outcome),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to revoke assignment: %w", err)
	}

	event := "assignment.completed"
	if req.Outcome == domain.StatusCancelled {
		event = "assignment.cancelled"
	}
	s.publish(ctx, event, updated)
	return &RevokeAssignmentResponse{Assignment: updated}, nil
}

// GetAssignment 查询单条分配记录
func (s *assignmentService) GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	if assignmentID == "" {
		return nil, &domain.ValidationError{Field: "assignment_id", Reason: "required"}
	}
	return s.repo.GetAssignment(ctx, assignmentID)
}

// DeleteAssignment 物理删除（仅用于纠正错误录入）
func (s *assignmentService) DeleteAssignment(ctx context.Context, assignmentID string) error {
	if assignmentID == "" {
		return &domain.ValidationError{Field: "assignment_id", Reason: "required"}
	}

	a, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	lock := s.deviceLock(a.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	return s.repo.DeleteAssignment(ctx, assignmentID)
}

// publish 发布生命周期事件（尽力而为，失败只记日志）
func (s *assignmentService) publish(ctx context.Context, event string, a *domain.Assignment) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishJSON(ctx, event, a.ToJSON()); err != nil {
		s.logger.Warn("failed to publish assignment event",
			zap.String("event", event),
			zap.String("assignment_id", a.AssignmentID),
			zap.Error(err),
		)
	}
}
