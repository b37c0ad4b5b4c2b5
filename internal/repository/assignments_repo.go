package repository

import (
	"context"
	"time"

	"surveytrack-data/internal/domain"
)

// AssignmentFilters 分配记录查询过滤器
type AssignmentFilters struct {
	DeviceID string   // optional
	SurveyID string   // optional
	Status   []string // optional: 'ACTIVE'/'COMPLETED'/'CANCELLED'
}

// AssignmentUpdate carries the mutable fields of an assignment; nil means
// "leave unchanged". DeviceID and SurveyID are identity fields and can never
// change after creation — they appear here only so implementations can
// reject attempts loudly instead of ignoring them.
type AssignmentUpdate struct {
	ToDate *time.Time
	Status *string
	Notes  *string

	DeviceID *string
	SurveyID *string
}

// AssignmentsRepository is the assignment ledger. It owns id generation and
// the created_at/updated_at timestamps but performs no conflict checking;
// scheduling policy lives in the service layer.
type AssignmentsRepository interface {
	// GetAssignment returns domain.ErrNotFound for unknown ids.
	GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error)

	// ListAssignments returns matches ordered by from_date DESC (most
	// recent engagement first — callers build history views on this).
	// size <= 0 disables pagination and returns all matches.
	ListAssignments(ctx context.Context, filters AssignmentFilters, page, size int) ([]*domain.Assignment, int, error)

	// CreateAssignment assigns a fresh id when a.AssignmentID is empty and
	// stamps created_at/updated_at. Returns the stored id.
	CreateAssignment(ctx context.Context, a *domain.Assignment) (string, error)

	// UpdateAssignment merges the provided fields and refreshes updated_at.
	UpdateAssignment(ctx context.Context, assignmentID string, upd AssignmentUpdate) (*domain.Assignment, error)

	// DeleteAssignment hard-deletes a record. Only for correcting erroneous
	// entries; normal retirement is a status transition.
	DeleteAssignment(ctx context.Context, assignmentID string) error

	// ListActiveByDevice returns one device's ACTIVE assignments,
	// from_date DESC. This is the conflict engine's lookup path.
	ListActiveByDevice(ctx context.Context, deviceID string) ([]*domain.Assignment, error)

	// ActiveDeviceIDs returns the ids of devices that currently hold an
	// ACTIVE assignment.
	ActiveDeviceIDs(ctx context.Context) ([]string, error)
}
