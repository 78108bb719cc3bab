/*
errors.go - Error taxonomy for the scheduling engine

PURPOSE:
  All error types in one place. Every structured error unwraps to a sentinel
  so callers classify with errors.Is and inspect details with errors.As.

ERROR CATEGORIES:
  1. ErrValidation             - malformed input (start >= end, no workers)
  2. ErrInvalidStateTransition - operation illegal for current shift status
  3. ErrWorkerConflict         - overlap detected when binding a worker
  4. ErrAlreadyDecided         - leave decision attempted twice
  5. ErrExternalTimeout        - travel estimator did not answer in time
  6. ErrNotFound / ErrForbidden

PROPAGATION:
  Validation and transition errors are returned unmodified. WorkerConflict
  during reallocation commit is recovered by the planner (next candidate).
  ExternalTimeout degrades to "no candidates" inside the planner.

SEE ALSO:
  - api/handlers.go: maps categories to HTTP status codes
*/
package roster

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrWorkerConflict         = errors.New("worker conflict")
	ErrAlreadyDecided         = errors.New("leave already decided")
	ErrExternalTimeout        = errors.New("external service timeout")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports an operation that is illegal for the current state.
type TransitionError struct {
	ShiftID   ShiftID
	From      ShiftStatus
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s shift %s in status %s", e.Operation, e.ShiftID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ConflictError reports that a worker is already booked in an overlapping window.
type ConflictError struct {
	WorkerID        WorkerID
	ShiftID         ShiftID // shift being written
	ConflictShiftID ShiftID // existing shift that collides
}

func (e *ConflictError) Error() string {
	if e.ConflictShiftID == "" {
		return fmt.Sprintf("worker %s cannot be bound to shift %s", e.WorkerID, e.ShiftID)
	}
	return fmt.Sprintf("worker %s already booked on overlapping shift %s", e.WorkerID, e.ConflictShiftID)
}

func (e *ConflictError) Unwrap() error { return ErrWorkerConflict }

// ConflictAsValidation reports an overlap found while creating or
// rescheduling. Those paths surface it as malformed input, not as a race.
type ConflictAsValidation struct{ *ConflictError }

func (e ConflictAsValidation) Error() string { return "validation failed: " + e.ConflictError.Error() }

func (e ConflictAsValidation) Is(target error) bool {
	return target == ErrValidation || target == ErrWorkerConflict
}

func (e ConflictAsValidation) Unwrap() error { return e.ConflictError }

// DecisionError reports a second decision on a medical leave.
type DecisionError struct {
	LeaveID LeaveID
	State   ApprovalState
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("leave %s already %s", e.LeaveID, e.State)
}

func (e *DecisionError) Unwrap() error { return ErrAlreadyDecided }

// TimeoutError reports an unresponsive external collaborator.
type TimeoutError struct {
	Service string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not respond within %s", e.Service, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrExternalTimeout }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict returns true for errors caused by the current state of the data.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrWorkerConflict) ||
		errors.Is(err, ErrAlreadyDecided)
}

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
