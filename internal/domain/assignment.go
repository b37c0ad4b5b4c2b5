package domain

import "time"

// Assignment status values. An assignment is created ACTIVE and moves to
// exactly one terminal state; terminal records never change again.
const (
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Assignment binds one field device to one survey engagement for a bounded
// date range. DeviceID and SurveyID reference externally-owned entities and
// are never validated for existence here.
//
// Invariant: for a fixed DeviceID, ACTIVE assignments have pairwise
// non-overlapping [FromDate, ToDate] windows (inclusive bounds).
type Assignment struct {
	AssignmentID string    `db:"assignment_id"` // UUID, PRIMARY KEY
	DeviceID     string    `db:"device_id"`     // NOT NULL, immutable after create
	SurveyID     string    `db:"survey_id"`     // NOT NULL, immutable after create
	FromDate     time.Time `db:"from_date"`     // NOT NULL, inclusive
	ToDate       time.Time `db:"to_date"`       // NOT NULL, inclusive, >= FromDate
	Status       string    `db:"status"`        // 'ACTIVE'/'COMPLETED'/'CANCELLED'
	AssignedBy   string    `db:"assigned_by"`   // NOT NULL, opaque actor id
	Notes        string    `db:"notes"`         // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// IsTerminal reports whether the assignment may no longer be mutated.
func (a *Assignment) IsTerminal() bool {
	return a.Status != StatusActive
}

// Overlaps reports whether [a.FromDate, a.ToDate] intersects [from, to].
// Both intervals are closed: touching endpoints count as overlap.
func (a *Assignment) Overlaps(from, to time.Time) bool {
	return !a.FromDate.After(to) && !from.After(a.ToDate)
}

// ToJSON converts to the HTTP response shape.
func (a *Assignment) ToJSON() map[string]any {
	m := map[string]any{
		"assignment_id": a.AssignmentID,
		"device_id":     a.DeviceID,
		"survey_id":     a.SurveyID,
		"from_date":     a.FromDate.Format(time.RFC3339),
		"to_date":       a.ToDate.Format(time.RFC3339),
		"status":        a.Status,
		"assigned_by":   a.AssignedBy,
		"created_at":    a.CreatedAt.Format(time.RFC3339),
		"updated_at":    a.UpdatedAt.Format(time.RFC3339),
	}
	if a.Notes != "" {
		m["notes"] = a.Notes
	}
	return m
}
