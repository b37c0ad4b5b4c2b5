package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"surveytrack-data/internal/domain"
	"surveytrack-data/internal/models"
	"surveytrack-data/internal/service"
)

// AssignmentHandler 设备-勘测分配 Handler
type AssignmentHandler struct {
	assignments service.AssignmentService
	queries     service.QueryService
	registry    *service.RegistryClient // optional device universe source
	logger      *zap.Logger
}

// NewAssignmentHandler 创建分配 Handler
func NewAssignmentHandler(assignments service.AssignmentService, queries service.QueryService, registry *service.RegistryClient, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		queries:     queries,
		registry:    registry,
		logger:      logger,
	}
}

// ServeAssignmentItem 路由分发：/survey/api/v1/assignments/{id}[/extend|/revoke]
func (h *AssignmentHandler) ServeAssignmentItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/survey/api/v1/assignments/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case strings.HasSuffix(rest, "/extend") && r.Method == http.MethodPut:
		h.ExtendAssignment(w, r, strings.TrimSuffix(rest, "/extend"))
	case strings.HasSuffix(rest, "/revoke") && r.Method == http.MethodPut:
		h.RevokeAssignment(w, r, strings.TrimSuffix(rest, "/revoke"))
	case !strings.Contains(rest, "/") && r.Method == http.MethodGet:
		h.GetAssignment(w, r, rest)
	case !strings.Contains(rest, "/") && r.Method == http.MethodDelete:
		h.DeleteAssignment(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListAssignments 查询分配列表
func (h *AssignmentHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// status can be repeated ?status=ACTIVE&status=COMPLETED or comma-separated
	statuses := r.URL.Query()["status"]
	if len(statuses) == 1 && strings.Contains(statuses[0], ",") {
		statuses = strings.Split(statuses[0], ",")
		for i := range statuses {
			statuses[i] = strings.TrimSpace(statuses[i])
		}
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 20)

	resp, err := h.queries.ListAssignments(ctx, service.ListAssignmentsRequest{
		DeviceID: r.URL.Query().Get("device_id"),
		SurveyID: r.URL.Query().Get("survey_id"),
		Status:   statuses,
		Page:     page,
		Size:     size,
	})
	if err != nil {
		h.writeError(w, "ListAssignments", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": assignmentsToJSON(resp.Items),
		"total": resp.Total,
		"pagination": models.BackendPagination{
			Size:      size,
			Page:      page,
			Count:     resp.Total,
			Sort:      "from_date",
			Direction: -1,
		},
	}))
}

// GetAssignment 查询分配详情
func (h *AssignmentHandler) GetAssignment(w http.ResponseWriter, r *http.Request, assignmentID string) {
	a, err := h.assignments.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		h.writeError(w, "GetAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a.ToJSON()))
}

// proposeRequest 创建分配请求体
type proposeRequest struct {
	DeviceID   string `json:"device_id"`
	SurveyID   string `json:"survey_id"`
	FromDate   string `json:"from_date"`
	ToDate     string `json:"to_date"`
	AssignedBy string `json:"assigned_by"`
	Notes      string `json:"notes"`
}

// ProposeAssignment 创建分配（冲突时返回阻塞记录）
func (h *AssignmentHandler) ProposeAssignment(w http.ResponseWriter, r *http.Request) {
	var body proposeRequest
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid request body", nil))
		return
	}

	fromDate, err := parseDate(body.FromDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid from_date", nil))
		return
	}
	toDate, err := parseDate(body.ToDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid to_date", nil))
		return
	}

	resp, err := h.assignments.ProposeAssignment(r.Context(), service.ProposeAssignmentRequest{
		DeviceID:   body.DeviceID,
		SurveyID:   body.SurveyID,
		FromDate:   fromDate,
		ToDate:     toDate,
		AssignedBy: body.AssignedBy,
		Notes:      body.Notes,
	})
	if err != nil {
		h.writeError(w, "ProposeAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp.Assignment.ToJSON()))
}

// extendRequest 延期请求体
type extendRequest struct {
	ToDate string `json:"to_date"`
}

// ExtendAssignment 延长分配的结束日期
func (h *AssignmentHandler) ExtendAssignment(w http.ResponseWriter, r *http.Request, assignmentID string) {
	var body extendRequest
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid request body", nil))
		return
	}
	toDate, err := parseDate(body.ToDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid to_date", nil))
		return
	}

	resp, err := h.assignments.ExtendAssignment(r.Context(), service.ExtendAssignmentRequest{
		AssignmentID: assignmentID,
		NewToDate:    toDate,
	})
	if err != nil {
		h.writeError(w, "ExtendAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp.Assignment.ToJSON()))
}

// revokeRequest 撤销请求体
type revokeRequest struct {
	Outcome string `json:"outcome"`
}

// RevokeAssignment 完成或取消分配
func (h *AssignmentHandler) RevokeAssignment(w http.ResponseWriter, r *http.Request, assignmentID string) {
	var body revokeRequest
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid request body", nil))
		return
	}

	resp, err := h.assignments.RevokeAssignment(r.Context(), service.RevokeAssignmentRequest{
		AssignmentID: assignmentID,
		Outcome:      strings.ToUpper(strings.TrimSpace(body.Outcome)),
	})
	if err != nil {
		h.writeError(w, "RevokeAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp.Assignment.ToJSON()))
}

// DeleteAssignment 物理删除（纠错用）
func (h *AssignmentHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request, assignmentID string) {
	if err := h.assignments.DeleteAssignment(r.Context(), assignmentID); err != nil {
		h.writeError(w, "DeleteAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": assignmentID}))
}

// FindConflicts 冲突检测（只读 dry-run）
func (h *AssignmentHandler) FindConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fromDate, err := parseDate(q.Get("from_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid from_date", nil))
		return
	}
	toDate, err := parseDate(q.Get("to_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "invalid to_date", nil))
		return
	}

	resp, err := h.assignments.FindConflicts(r.Context(), service.FindConflictsRequest{
		DeviceID:            q.Get("device_id"),
		FromDate:            fromDate,
		ToDate:              toDate,
		ExcludeAssignmentID: q.Get("exclude_assignment_id"),
	})
	if err != nil {
		h.writeError(w, "FindConflicts", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"conflicts": assignmentsToJSON(resp.Conflicts),
	}))
}

// AssignmentsForSurvey 查询勘测的设备使用历史
func (h *AssignmentHandler) AssignmentsForSurvey(w http.ResponseWriter, r *http.Request, surveyID string) {
	items, err := h.queries.AssignmentsForSurvey(r.Context(), surveyID)
	if err != nil {
		h.writeError(w, "AssignmentsForSurvey", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": assignmentsToJSON(items),
		"total": len(items),
	}))
}

// AvailableDevices 可分配设备查询
// 设备全集来自 ?device_ids=a,b,c；缺省时向资产注册中心取
func (h *AssignmentHandler) AvailableDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var universe []string
	if raw := r.URL.Query().Get("device_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				universe = append(universe, id)
			}
		}
	} else if h.registry != nil {
		ids, err := h.registry.ListDeviceIDs(ctx)
		if err != nil {
			h.logger.Error("registry device universe lookup failed", zap.Error(err))
			writeJSON(w, http.StatusOK, Fail("device registry unavailable"))
			return
		}
		universe = ids
	} else {
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, "device_ids is required", nil))
		return
	}

	available, err := h.queries.AvailableDevices(ctx, universe)
	if err != nil {
		h.writeError(w, "AvailableDevices", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"device_ids": available,
		"total":      len(available),
	}))
}

// writeError 将 service 层错误映射到响应码
func (h *AssignmentHandler) writeError(w http.ResponseWriter, op string, err error) {
	var ve *domain.ValidationError
	var ce *domain.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, FailCode(ResultConflict, ce.Error(), map[string]any{
			"device_id": ce.DeviceID,
			"conflicts": assignmentsToJSON(ce.Conflicts),
		}))
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, FailCode(ResultValidation, ve.Error(), nil))
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, FailCode(ResultNotFound, "assignment not found", nil))
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, FailCode(ResultInvalidTransition, err.Error(), nil))
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	}
}

func assignmentsToJSON(items []*domain.Assignment) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, a := range items {
		out = append(out, a.ToJSON())
	}
	return out
}
