package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrStatus              = errors.New("status error")
	ErrDependencyViolation = errors.New("dependency violation")
	ErrOverBooked          = errors.New("overbooked")
	ErrNotFound            = errors.New("not found")

	// ErrBookingConflict is returned by a Backstop that rejected a time log
	// because it collides with another booking of the same resource.
	ErrBookingConflict = errors.New("booking conflict")
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors collects every problem found while validating a snapshot.
type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

func (ve *ValidationErrors) Is(target error) bool { return target == ErrValidation }

// FormatStderr renders one "error:" line per problem.
func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s: %s\n", e.Field, e.Message)
	}
	return sb.String()
}

// CircularDependencyError rejects an edge that would close a cycle. Path
// lists the ids along the cycle, starting and ending with the same task when
// the cycle is a real loop.
type CircularDependencyError struct {
	Relation string
	Path     []string
	Reason   string
}

func (e *CircularDependencyError) Error() string {
	msg := fmt.Sprintf("circular dependency (%s): %s", e.Relation, strings.Join(e.Path, " -> "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *CircularDependencyError) Is(target error) bool { return target == ErrCircularDependency }

// StatusError rejects an operation attempted from a disallowed status.
type StatusError struct {
	ID        string
	Operation string
	Status    string
	Allowed   []string
}

func (e *StatusError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s: %s is not allowed in status %s", e.ID, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s: %s is not allowed in status %s (allowed: %s)",
		e.ID, e.Operation, e.Status, strings.Join(e.Allowed, ", "))
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// DependencyViolationError rejects a time log starting before the boundary a
// dependency imposes.
type DependencyViolationError struct {
	TaskID      string
	DependsOnID string
	Target      string
	Boundary    time.Time
	Start       time.Time
}

func (e *DependencyViolationError) Error() string {
	return fmt.Sprintf("%s: time log starting at %s violates dependency on %s (%s, must not start before %s)",
		e.TaskID, e.Start.Format(time.RFC3339), e.DependsOnID, e.Target, e.Boundary.Format(time.RFC3339))
}

func (e *DependencyViolationError) Is(target error) bool { return target == ErrDependencyViolation }

// OverBookedError rejects a time log that overlaps another booking of the
// same resource. ConflictID is empty when the conflict was reported by the
// persistence backstop and the other booking is unknown to the engine.
type OverBookedError struct {
	Resource   string
	Start      time.Time
	End        time.Time
	ConflictID string
	Err        error
}

func (e *OverBookedError) Error() string {
	msg := fmt.Sprintf("resource %s is already booked between %s and %s",
		e.Resource, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	if e.ConflictID != "" {
		msg += fmt.Sprintf(" (time log %s)", e.ConflictID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OverBookedError) Is(target error) bool { return target == ErrOverBooked }

func (e *OverBookedError) Unwrap() error { return e.Err }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
