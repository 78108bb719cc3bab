/*
Package roster holds the domain model shared by every scheduling component.

PURPOSE:
  Shifts, medical leaves and the caller session are used by the shift store,
  attendance tracking, payroll, reallocation and the leave workflow. They are
  defined once here, together with the error taxonomy and the repository
  contracts, so no component re-validates another component's records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift: one worker/property/time-window engagement with a status machine
  - MedicalLeave: a worker's time-off claim with a one-shot approval state
  - Identifiers: type-safe IDs so a WorkerID is never passed as a ShiftID

DESIGN PRINCIPLES:
  1. Strong typing: records carry their invariants (see Validate)
  2. Forward-only status: UPCOMING -> IN_PROGRESS -> COMPLETED, any -> CANCELLED
  3. Value semantics: repositories return copies; mutation goes through the
     owning service only

SEE ALSO:
  - errors.go: ValidationError, TransitionError, ConflictError, ...
  - store.go: ShiftRepository and LeaveRepository contracts
  - shifts/store.go: the only writer of Shift records
*/
package roster

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/shift-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShiftID string
type WorkerID string
type LeaveID string
type PropertyID string
type ClientID string

// =============================================================================
// SHIFT STATUS - Forward-only state machine
// =============================================================================

type ShiftStatus string

const (
	StatusUpcoming   ShiftStatus = "UPCOMING"
	StatusInProgress ShiftStatus = "IN_PROGRESS"
	StatusCompleted  ShiftStatus = "COMPLETED"
	StatusCancelled  ShiftStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s ShiftStatus) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// Active reports whether the shift still occupies its workers' time.
func (s ShiftStatus) Active() bool { return s != StatusCancelled }

// CanTransition encodes the lifecycle:
//
//	UPCOMING -> IN_PROGRESS -> COMPLETED
//	UPCOMING | IN_PROGRESS -> CANCELLED
func (s ShiftStatus) CanTransition(to ShiftStatus) bool {
	switch s {
	case StatusUpcoming:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// =============================================================================
// SHIFT
// =============================================================================

type Shift struct {
	ID          ShiftID
	PropertyRef PropertyID
	ClientRef   ClientID

	Date  time.Time // UTC midnight
	Start calendar.Clock
	End   calendar.Clock

	AssignedWorkers []WorkerID
	PresentWorkers  []WorkerID
	Status          ShiftStatus

	// Set on the first reschedule and never touched again.
	Rescheduled   bool
	OriginalDate  *time.Time
	OriginalStart *calendar.Clock
	OriginalEnd   *calendar.Clock

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt returns the absolute start instant.
func (s *Shift) StartsAt() time.Time { return calendar.At(s.Date, s.Start) }

// EndsAt returns the absolute end instant.
func (s *Shift) EndsAt() time.Time { return calendar.At(s.Date, s.End) }

// Overlaps reports whether the two shifts' windows collide (half-open).
func (s *Shift) Overlaps(o *Shift) bool {
	return calendar.IntervalsOverlap(s.StartsAt(), s.EndsAt(), o.StartsAt(), o.EndsAt())
}

func (s *Shift) IsAssigned(w WorkerID) bool { return containsWorker(s.AssignedWorkers, w) }
func (s *Shift) IsPresent(w WorkerID) bool  { return containsWorker(s.PresentWorkers, w) }

// Validate checks the structural invariants every stored shift satisfies.
func (s *Shift) Validate() error {
	if s.PropertyRef == "" {
		return &ValidationError{Field: "property_ref", Message: "is required"}
	}
	if s.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	if !s.Start.Valid() || !s.End.Valid() {
		return &ValidationError{Field: "start_time", Message: "time of day out of range"}
	}
	if s.Start >= s.End {
		return &ValidationError{
			Field:   "start_time",
			Message: fmt.Sprintf("start %s must be before end %s", s.Start, s.End),
		}
	}
	if err := ValidateWorkers(s.AssignedWorkers); err != nil {
		return err
	}
	for _, w := range s.PresentWorkers {
		if !s.IsAssigned(w) {
			return &ValidationError{Field: "present_workers", Message: fmt.Sprintf("worker %s is not assigned", w)}
		}
	}
	return nil
}

// Clone returns a deep copy so callers can never alias stored slices.
func (s Shift) Clone() Shift {
	c := s
	c.AssignedWorkers = append([]WorkerID(nil), s.AssignedWorkers...)
	c.PresentWorkers = append([]WorkerID(nil), s.PresentWorkers...)
	if s.OriginalDate != nil {
		d := *s.OriginalDate
		c.OriginalDate = &d
	}
	if s.OriginalStart != nil {
		st := *s.OriginalStart
		c.OriginalStart = &st
	}
	if s.OriginalEnd != nil {
		e := *s.OriginalEnd
		c.OriginalEnd = &e
	}
	return c
}

// ValidateWorkers requires a non-empty set of distinct, non-blank ids.
func ValidateWorkers(workers []WorkerID) error {
	if len(workers) == 0 {
		return &ValidationError{Field: "assigned_workers", Message: "at least one worker is required"}
	}
	seen := make(map[WorkerID]bool, len(workers))
	for _, w := range workers {
		if w == "" {
			return &ValidationError{Field: "assigned_workers", Message: "blank worker id"}
		}
		if seen[w] {
			return &ValidationError{Field: "assigned_workers", Message: fmt.Sprintf("worker %s listed twice", w)}
		}
		seen[w] = true
	}
	return nil
}

// SortWorkers returns a sorted copy.
func SortWorkers(workers []WorkerID) []WorkerID {
	out := append([]WorkerID(nil), workers...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortShifts orders shifts chronologically by (date, start, id).
func SortShifts(shifts []Shift) {
	sort.SliceStable(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
}

func containsWorker(list []WorkerID, w WorkerID) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

// =============================================================================
// MEDICAL LEAVE
// =============================================================================

type ApprovalState string

const (
	LeavePending  ApprovalState = "PENDING"
	LeaveApproved ApprovalState = "APPROVED"
	LeaveRejected ApprovalState = "REJECTED"
)

type MedicalLeave struct {
	ID             LeaveID
	WorkerRef      WorkerID
	StartDate      time.Time // inclusive
	EndDate        time.Time // inclusive
	CertificateRef string
	Reason         string
	State          ApprovalState

	DecidedBy       *WorkerID
	DecidedAt       *time.Time
	RejectionReason string

	CreatedAt time.Time
}

// Period returns the inclusive day range covered by the leave.
func (l *MedicalLeave) Period() calendar.Period { return calendar.NewPeriod(l.StartDate, l.EndDate) }

// Covers reports whether the leave includes the given day.
func (l *MedicalLeave) Covers(day time.Time) bool { return l.Period().Contains(day) }

func (l *MedicalLeave) Validate() error {
	if l.WorkerRef == "" {
		return &ValidationError{Field: "worker_ref", Message: "is required"}
	}
	if l.StartDate.IsZero() || l.EndDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "start and end dates are required"}
	}
	if calendar.Truncate(l.EndDate).Before(calendar.Truncate(l.StartDate)) {
		return &ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}
	return nil
}
