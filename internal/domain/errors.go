package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an assignment id is unknown.
	ErrNotFound = errors.New("assignment not found")

	// ErrInvalidTransition is returned when a terminal assignment is
	// extended or revoked again.
	ErrInvalidTransition = errors.New("assignment is in a terminal state")
)

// ValidationError reports malformed caller input (missing ids, inverted
// date ranges, unknown status values).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError carries the ACTIVE assignments whose windows block a
// proposed or extended one. Callers need the blocking records to tell the
// requester which engagement is in the way.
type ConflictError struct {
	DeviceID  string
	Conflicts []*Assignment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("device %s has %d conflicting active assignment(s)", e.DeviceID, len(e.Conflicts))
}
