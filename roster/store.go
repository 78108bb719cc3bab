/*
store.go - Persistence contracts for shifts and medical leaves

PURPOSE:
  Defines the interface between the scheduling services and the database.
  The services own every invariant (overlap, status machine, one-shot leave
  decisions); repositories only persist and query.

KEY INTERFACES:
  ShiftRepository: shift rows (insert, replace, point and range reads)
  LeaveRepository: leave rows with a compare-and-set decision write

SINGLE WRITER:
  shifts.Store serializes all shift writes behind one lock, so the
  repository does not need optimistic locking. Leave decisions can race
  (two managers clicking approve) and therefore go through Decide, which
  must only succeed when the stored state is still PENDING.

IMPLEMENTATIONS:
  - roster/store/memory.go: in-memory, for tests and demos
  - store/sqlite/sqlite.go: SQLite, the production store

SEE ALSO:
  - shifts/store.go: the ShiftStore service
  - leave/workflow.go: uses LeaveRepository.Decide
*/
package roster

import (
	"context"
	"time"

	"github.com/warp/shift-engine/calendar"
)

// ShiftRepository persists shifts. Returned values are copies.
type ShiftRepository interface {
	// InsertShift stores a new shift. Fails if the id exists.
	InsertShift(ctx context.Context, s Shift) error

	// UpdateShift replaces an existing shift. Returns ErrNotFound if absent.
	UpdateShift(ctx context.Context, s Shift) error

	// GetShift returns ErrNotFound if absent.
	GetShift(ctx context.Context, id ShiftID) (*Shift, error)

	// ShiftsByWorker returns the worker's shifts dated within the period,
	// ordered by (date, start, id). Cancelled shifts are included.
	ShiftsByWorker(ctx context.Context, worker WorkerID, period calendar.Period) ([]Shift, error)

	// ShiftsByDate returns every shift dated within the period, ordered.
	ShiftsByDate(ctx context.Context, period calendar.Period) ([]Shift, error)
}

// LeaveRepository persists medical leaves.
type LeaveRepository interface {
	InsertLeave(ctx context.Context, l MedicalLeave) error

	// GetLeave returns ErrNotFound if absent.
	GetLeave(ctx context.Context, id LeaveID) (*MedicalLeave, error)

	// Decide moves a PENDING leave to the given state. When the stored state
	// is not PENDING it returns a *DecisionError carrying the stored state.
	Decide(ctx context.Context, id LeaveID, state ApprovalState, by WorkerID, at time.Time, reason string) (*MedicalLeave, error)

	// LeavesByWorker returns leaves of the worker overlapping the period,
	// optionally restricted to one state ("" = any).
	LeavesByWorker(ctx context.Context, worker WorkerID, period calendar.Period, state ApprovalState) ([]MedicalLeave, error)

	// LeavesByState returns every leave in the state, oldest first.
	LeavesByState(ctx context.Context, state ApprovalState) ([]MedicalLeave, error)
}

// Repository is the full persistence surface used by cmd/server.
type Repository interface {
	ShiftRepository
	LeaveRepository
}
