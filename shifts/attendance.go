package shifts

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// ATTENDANCE TRACKER
// =============================================================================

// Tracker records which assigned workers were physically present and
// advances shift status:
//
//	MarkPresent (on/after shift date)  UPCOMING    -> IN_PROGRESS
//	MarkCompleted                      IN_PROGRESS -> COMPLETED
//
// It only touches PresentWorkers and Status, and only through the Store's
// write path.
type Tracker struct {
	store *Store
	log   logrus.FieldLogger
}

func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store, log: store.log}
}

// MarkPresent adds workers to the shift's present set. The first call on or
// after the shift date starts the shift.
func (t *Tracker) MarkPresent(ctx context.Context, id roster.ShiftID, workers []roster.WorkerID) (*roster.Shift, error) {
	if len(workers) == 0 {
		return nil, &roster.ValidationError{Field: "workers", Message: "at least one worker is required"}
	}
	today := t.store.Today()

	shift, err := t.store.mutate(ctx, id, func(shift *roster.Shift) error {
		if shift.Status.Terminal() {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "mark attendance on"}
		}
		for _, w := range workers {
			if !shift.IsAssigned(w) {
				return &roster.ValidationError{Field: "workers", Message: fmt.Sprintf("worker %s is not assigned to shift %s", w, id)}
			}
		}
		for _, w := range workers {
			if !shift.IsPresent(w) {
				shift.PresentWorkers = append(shift.PresentWorkers, w)
			}
		}
		shift.PresentWorkers = roster.SortWorkers(shift.PresentWorkers)

		if shift.Status == roster.StatusUpcoming && !today.Before(shift.Date) {
			shift.Status = roster.StatusInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{
		"shift_id": id,
		"present":  len(shift.PresentWorkers),
		"status":   shift.Status,
	}).Info("attendance recorded")
	return shift, nil
}

// MarkAbsent removes workers from the present set of a shift that has not
// completed yet, correcting a mistaken mark. Status is never moved back.
func (t *Tracker) MarkAbsent(ctx context.Context, id roster.ShiftID, workers []roster.WorkerID) (*roster.Shift, error) {
	return t.store.mutate(ctx, id, func(shift *roster.Shift) error {
		if shift.Status.Terminal() {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "mark absence on"}
		}
		for _, w := range workers {
			shift.PresentWorkers = without(shift.PresentWorkers, w)
		}
		return nil
	})
}

// MarkCompleted closes an IN_PROGRESS shift.
func (t *Tracker) MarkCompleted(ctx context.Context, id roster.ShiftID) (*roster.Shift, error) {
	shift, err := t.store.mutate(ctx, id, func(shift *roster.Shift) error {
		if !shift.Status.CanTransition(roster.StatusCompleted) {
			return &roster.TransitionError{ShiftID: id, From: shift.Status, Operation: "complete"}
		}
		shift.Status = roster.StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.WithField("shift_id", id).Info("shift completed")
	return shift, nil
}

// IsPresent reports whether the worker was marked present on the shift.
func (t *Tracker) IsPresent(ctx context.Context, id roster.ShiftID, worker roster.WorkerID) (bool, error) {
	shift, err := t.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return shift.IsPresent(worker), nil
}
