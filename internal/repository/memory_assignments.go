package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"surveytrack-data/internal/domain"
)

// MemoryAssignmentsRepo keeps the assignment ledger in memory. It is the
// default backend when DB is disabled and the backend unit tests run against.
// Records are indexed by device_id so conflict lookups do not scan the
// whole ledger.
type MemoryAssignmentsRepo struct {
	mu          sync.RWMutex
	assignments map[string]domain.Assignment // assignmentID -> record
	byDevice    map[string][]string          // deviceID -> assignment ids
}

func NewMemoryAssignmentsRepo() *MemoryAssignmentsRepo {
	return &MemoryAssignmentsRepo{
		assignments: map[string]domain.Assignment{},
		byDevice:    map[string][]string{},
	}
}

var _ AssignmentsRepository = (*MemoryAssignmentsRepo)(nil)

func (r *MemoryAssignmentsRepo) GetAssignment(_ context.Context, assignmentID string) (*domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[assignmentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *MemoryAssignmentsRepo) ListAssignments(_ context.Context, filters AssignmentFilters, page, size int) ([]*domain.Assignment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		if filters.DeviceID != "" && a.DeviceID != filters.DeviceID {
			continue
		}
		if filters.SurveyID != "" && a.SurveyID != filters.SurveyID {
			continue
		}
		if len(filters.Status) > 0 && !containsString(filters.Status, a.Status) {
			continue
		}
		all = append(all, a)
	}
	sortByFromDateDesc(all)

	total := len(all)
	if size <= 0 {
		out := make([]*domain.Assignment, total)
		for i := range all {
			out[i] = &all[i]
		}
		return out, total, nil
	}

	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	pageItems := all[start:end]
	out := make([]*domain.Assignment, len(pageItems))
	for i := range pageItems {
		out[i] = &pageItems[i]
	}
	return out, total, nil
}

func (r *MemoryAssignmentsRepo) CreateAssignment(_ context.Context, a *domain.Assignment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *a
	if stored.AssignmentID == "" {
		stored.AssignmentID = uuid.NewString()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.assignments[stored.AssignmentID] = stored
	r.byDevice[stored.DeviceID] = append(r.byDevice[stored.DeviceID], stored.AssignmentID)
	return stored.AssignmentID, nil
}

func (r *MemoryAssignmentsRepo) UpdateAssignment(_ context.Context, assignmentID string, upd AssignmentUpdate) (*domain.Assignment, error) {
	if upd.DeviceID != nil {
		return nil, &domain.ValidationError{Field: "device_id", Reason: "immutable after creation"}
	}
	if upd.SurveyID != nil {
		return nil, &domain.ValidationError{Field: "survey_id", Reason: "immutable after creation"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[assignmentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.ToDate != nil {
		a.ToDate = *upd.ToDate
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	a.UpdatedAt = time.Now().UTC()

	r.assignments[assignmentID] = a
	return &a, nil
}

func (r *MemoryAssignmentsRepo) DeleteAssignment(_ context.Context, assignmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[assignmentID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.assignments, assignmentID)

	ids := r.byDevice[a.DeviceID]
	for i, id := range ids {
		if id == assignmentID {
			r.byDevice[a.DeviceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byDevice[a.DeviceID]) == 0 {
		delete(r.byDevice, a.DeviceID)
	}
	return nil
}

func (r *MemoryAssignmentsRepo) ListActiveByDevice(_ context.Context, deviceID string) ([]*domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []domain.Assignment
	for _, id := range r.byDevice[deviceID] {
		a := r.assignments[id]
		if a.Status == domain.StatusActive {
			active = append(active, a)
		}
	}
	sortByFromDateDesc(active)

	out := make([]*domain.Assignment, len(active))
	for i := range active {
		out[i] = &active[i]
	}
	return out, nil
}

func (r *MemoryAssignmentsRepo) ActiveDeviceIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for deviceID, assignmentIDs := range r.byDevice {
		for _, id := range assignmentIDs {
			if r.assignments[id].Status == domain.StatusActive {
				ids = append(ids, deviceID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func sortByFromDateDesc(items []domain.Assignment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].FromDate.Equal(items[j].FromDate) {
			return items[i].FromDate.After(items[j].FromDate)
		}
		// Stable tie-break so pagination never shuffles equal dates.
		return items[i].AssignmentID < items[j].AssignmentID
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
