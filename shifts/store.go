/*
Package shifts owns the canonical set of shifts and their state transitions.

PURPOSE:
  Store is the only writer of Shift records. It validates every mutation
  against the structural invariants (roster.Shift.Validate) and against the
  booking invariant: a worker is never on two overlapping non-cancelled
  shifts. Tracker (attendance.go) advances status through the same write path.

SINGLE WRITER:
  ┌──────────────┐   Create / Reschedule / Cancel / ReassignWorker
  │   callers    │ ─────────────────────────────────┐
  └──────────────┘                                  ▼
  ┌──────────────┐   MarkPresent / MarkCompleted  ┌─────────────┐   ┌────────────┐
  │   Tracker    │ ─────────────────────────────▶ │ Store (mu)  │──▶│ repository │
  └──────────────┘                                └─────────────┘   └────────────┘
  ┌──────────────┐   View (read lock, snapshot)          ▲
  │   payroll    │ ──────────────────────────────────────┘
  └──────────────┘

  Overlap checks and the write that follows happen under one lock, so two
  reallocations racing for the same replacement cannot both succeed. The
  loser receives a *roster.ConflictError and re-ranks.

ERRORS:
  Create/Reschedule: ValidationError (overlaps surface as validation here)
  Reschedule/Cancel: TransitionError when the status forbids it
  ReassignWorker:    ConflictError when the new worker is busy

SEE ALSO:
  - attendance.go: presence marking and completion
  - realloc/planner.go: the only caller of ReassignWorker
  - payroll/aggregator.go: reads through View
*/
package shifts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// INPUT TYPES
// =============================================================================

// NewShift is the input to Create.
type NewShift struct {
	PropertyRef roster.PropertyID
	ClientRef   roster.ClientID
	Date        time.Time
	Start       calendar.Clock
	End         calendar.Clock
	Workers     []roster.WorkerID
}

// Reschedule is the input to Reschedule. Nil Workers keeps the current set.
type Reschedule struct {
	Date    time.Time
	Start   calendar.Clock
	End     calendar.Clock
	Workers []roster.WorkerID
}

// Reader is the read-only view handed to View callbacks.
type Reader interface {
	Get(ctx context.Context, id roster.ShiftID) (*roster.Shift, error)
	ListByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error)
	ListByDateRange(ctx context.Context, period calendar.Period) ([]roster.Shift, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	repo  roster.ShiftRepository
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() roster.ShiftID

	mu sync.RWMutex
}

type Option func(*Store)

func WithLogger(l logrus.FieldLogger) Option    { return func(s *Store) { s.log = l } }
func WithClock(now func() time.Time) Option     { return func(s *Store) { s.now = now } }
func WithIDs(next func() roster.ShiftID) Option { return func(s *Store) { s.newID = next } }

func NewStore(repo roster.ShiftRepository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		log:   logrus.StandardLogger(),
		now:   time.Now,
		newID: func() roster.ShiftID { return roster.ShiftID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the store clock's current day.
func (s *Store) Today() time.Time { return calendar.Truncate(s.now().UTC()) }

// Create validates and stores a new UPCOMING shift.
func (s *Store) Create(ctx context.Context, in NewShift) (*roster.Shift, error) {
	now := s.now().UTC()
	shift := roster.Shift{
		ID:              s.newID(),
		PropertyRef:     in.PropertyRef,
		ClientRef:       in.ClientRef,
		Date:            calendar.Truncate(in.Date),
		Start:           in.Start,
		End:             in.End,
		AssignedWorkers: in.Workers,
		Status:          roster.StatusUpcoming,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := shift.Validate(); err != nil {
		return nil, err
	}
	shift.AssignedWorkers = roster.SortWorkers(in.Workers)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOverlapLocked(ctx, &shift, shift.AssignedWorkers); err != nil {
		return nil, asValidation(err)
	}
	if err := s.repo.InsertShift(ctx, shift); err != nil {
		return nil, fmt.Errorf("failed to store shift: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"shift_id": shift.ID,
		"date":     calendar.FormatDate(shift.Date),
		"workers":  len(shift.AssignedWorkers),
	}).Info("shift created")
	return &shift, nil
}

// Reschedule moves an UPCOMING shift. The first reschedule preserves the
// original booking; later ones leave it untouched.
func (s *Store) Reschedule(ctx context.Context, id roster.ShiftID, r Reschedule) (*roster.Shift, error) {
	return s.mutate(ctx, id, func(shift *roster.Shift) error {
		if shift.Status != roster.StatusUpcoming {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "reschedule"}
		}
		if !shift.Rescheduled {
			date, start, end := shift.Date, shift.Start, shift.End
			shift.Rescheduled = true
			shift.OriginalDate = &date
			shift.OriginalStart = &start
			shift.OriginalEnd = &end
		}
		shift.Date = calendar.Truncate(r.Date)
		shift.Start = r.Start
		shift.End = r.End
		if r.Workers != nil {
			if err := roster.ValidateWorkers(r.Workers); err != nil {
				return err
			}
			shift.AssignedWorkers = roster.SortWorkers(r.Workers)
			shift.PresentWorkers = nil
		}
		if err := shift.Validate(); err != nil {
			return err
		}
		if err := s.checkOverlapLocked(ctx, shift, shift.AssignedWorkers); err != nil {
			return asValidation(err)
		}
		return nil
	})
}

// Cancel is legal from UPCOMING or IN_PROGRESS.
func (s *Store) Cancel(ctx context.Context, id roster.ShiftID) (*roster.Shift, error) {
	return s.mutate(ctx, id, func(shift *roster.Shift) error {
		if !shift.Status.CanTransition(roster.StatusCancelled) {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "cancel"}
		}
		shift.Status = roster.StatusCancelled
		return nil
	})
}

// ReassignWorker atomically swaps oldWorker for newWorker on a live shift.
func (s *Store) ReassignWorker(ctx context.Context, id roster.ShiftID, oldWorker, newWorker roster.WorkerID) (*roster.Shift, error) {
	return s.mutate(ctx, id, func(shift *roster.Shift) error {
		if shift.Status.Terminal() {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "reassign"}
		}
		if newWorker == "" {
			return &roster.ValidationError{Field: "new_worker", Message: "is required"}
		}
		if !shift.IsAssigned(oldWorker) {
			return &roster.ValidationError{Field: "old_worker", Message: fmt.Sprintf("worker %s is not assigned to shift %s", oldWorker, id)}
		}
		if shift.IsAssigned(newWorker) {
			return &roster.ConflictError{WorkerID: newWorker, ShiftID: id}
		}
		if err := s.checkOverlapLocked(ctx, shift, []roster.WorkerID{newWorker}); err != nil {
			return err
		}

		workers := make([]roster.WorkerID, 0, len(shift.AssignedWorkers))
		for _, w := range shift.AssignedWorkers {
			if w != oldWorker {
				workers = append(workers, w)
			}
		}
		shift.AssignedWorkers = roster.SortWorkers(append(workers, newWorker))
		shift.PresentWorkers = without(shift.PresentWorkers, oldWorker)
		return nil
	})
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, id roster.ShiftID) (*roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.GetShift(ctx, id)
}

func (s *Store) ListByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.ShiftsByWorker(ctx, worker, period)
}

func (s *Store) ListByDateRange(ctx context.Context, period calendar.Period) ([]roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.ShiftsByDate(ctx, period)
}

// View runs fn against a consistent snapshot: no write can land until fn
// returns. fn must not call back into the Store.
func (s *Store) View(ctx context.Context, fn func(Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(snapshot{repo: s.repo})
}

type snapshot struct{ repo roster.ShiftRepository }

func (v snapshot) Get(ctx context.Context, id roster.ShiftID) (*roster.Shift, error) {
	return v.repo.GetShift(ctx, id)
}

func (v snapshot) ListByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error) {
	return v.repo.ShiftsByWorker(ctx, worker, period)
}

func (v snapshot) ListByDateRange(ctx context.Context, period calendar.Period) ([]roster.Shift, error) {
	return v.repo.ShiftsByDate(ctx, period)
}

// CheckInvariants re-validates every shift in the period and verifies that no
// worker is double-booked. Used by tests and the consistency endpoint.
func (s *Store) CheckInvariants(ctx context.Context, period calendar.Period) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.repo.ShiftsByDate(ctx, period)
	if err != nil {
		return err
	}
	byWorker := make(map[roster.WorkerID][]roster.Shift)
	for _, sh := range all {
		if err := sh.Validate(); err != nil {
			return fmt.Errorf("shift %s: %w", sh.ID, err)
		}
		if !sh.Status.Active() {
			continue
		}
		for _, w := range sh.AssignedWorkers {
			byWorker[w] = append(byWorker[w], sh)
		}
	}
	for w, list := range byWorker {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if list[i].Overlaps(&list[j]) {
					return &roster.ConflictError{WorkerID: w, ShiftID: list[i].ID, ConflictShiftID: list[j].ID}
				}
			}
		}
	}
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// mutate loads a shift, applies fn and persists the result under the write
// lock. Nothing is written when fn fails.
func (s *Store) mutate(ctx context.Context, id roster.ShiftID, fn func(*roster.Shift) error) (*roster.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.GetShift(ctx, id)
	if err != nil {
		return nil, err
	}
	before := current.Status
	if err := fn(current); err != nil {
		return nil, err
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}
	current.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateShift(ctx, *current); err != nil {
		return nil, fmt.Errorf("failed to update shift %s: %w", id, err)
	}

	entry := s.log.WithFields(logrus.Fields{"shift_id": id, "status": current.Status})
	if before != current.Status {
		entry = entry.WithField("from", before)
	}
	entry.Debug("shift updated")
	return current, nil
}

// checkOverlapLocked returns a *roster.ConflictError if any of the workers
// holds another active shift colliding with s. Caller holds mu.
func (s *Store) checkOverlapLocked(ctx context.Context, shift *roster.Shift, workers []roster.WorkerID) error {
	day := calendar.NewPeriod(shift.Date, shift.Date)
	for _, w := range workers {
		others, err := s.repo.ShiftsByWorker(ctx, w, day)
		if err != nil {
			return fmt.Errorf("failed to load shifts for worker %s: %w", w, err)
		}
		for i := range others {
			other := &others[i]
			if other.ID == shift.ID || !other.Status.Active() {
				continue
			}
			if shift.Overlaps(other) {
				return &roster.ConflictError{WorkerID: w, ShiftID: shift.ID, ConflictShiftID: other.ID}
			}
		}
	}
	return nil
}

// asValidation presents a booking conflict found on create/reschedule as
// invalid input.
func asValidation(err error) error {
	if ce, ok := err.(*roster.ConflictError); ok {
		return roster.ConflictAsValidation{ConflictError: ce}
	}
	return err
}

func without(list []roster.WorkerID, w roster.WorkerID) []roster.WorkerID {
	out := make([]roster.WorkerID, 0, len(list))
	for _, x := range list {
		if x != w {
			out = append(out, x)
		}
	}
	return out
}
