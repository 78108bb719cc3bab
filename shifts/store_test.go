package shifts_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/roster/store"
	"github.com/warp/shift-engine/shifts"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = calendar.Date(2025, time.March, 10)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sequentialIDs() func() roster.ShiftID {
	var mu sync.Mutex
	n := 0
	return func() roster.ShiftID {
		mu.Lock()
		defer mu.Unlock()
		n++
		return roster.ShiftID(fmt.Sprintf("shift-%d", n))
	}
}

func newTestStore(t *testing.T, today time.Time) *shifts.Store {
	t.Helper()
	return shifts.NewStore(store.NewMemory(),
		shifts.WithLogger(quietLogger()),
		shifts.WithClock(func() time.Time { return today.Add(10 * time.Hour) }),
		shifts.WithIDs(sequentialIDs()),
	)
}

func clock(h int) calendar.Clock { return calendar.NewClock(h, 0) }

func booking(date time.Time, start, end int, workers ...roster.WorkerID) shifts.NewShift {
	return shifts.NewShift{
		PropertyRef: "prop-1",
		ClientRef:   "client-1",
		Date:        date,
		Start:       clock(start),
		End:         clock(end),
		Workers:     workers,
	}
}

func allOf(date time.Time) calendar.Period {
	return calendar.NewPeriod(date.AddDate(0, 0, -7), date.AddDate(0, 0, 7))
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ReturnsUpcomingShift(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-2", "w-1"))
	require.NoError(t, err)

	assert.Equal(t, roster.StatusUpcoming, shift.Status)
	assert.Equal(t, []roster.WorkerID{"w-1", "w-2"}, shift.AssignedWorkers, "workers stored sorted")
	assert.False(t, shift.Rescheduled)

	got, err := s.Get(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, got.ID)
}

func TestCreate_RejectsMalformedInput(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	cases := map[string]shifts.NewShift{
		"start equals end": booking(march10, 9, 9, "w-1"),
		"start after end":  booking(march10, 17, 9, "w-1"),
		"no workers":       booking(march10, 9, 17),
		"duplicate worker": booking(march10, 9, 17, "w-1", "w-1"),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, roster.ErrValidation)
		})
	}
}

func TestCreate_OverlapForSameWorker_IsValidationError(t *testing.T) {
	// GIVEN: w-1 works 09:00-13:00
	// WHEN: booking w-1 again 12:00-16:00 the same day
	// THEN: ValidationError, and the earlier booking is untouched
	s := newTestStore(t, march10)
	ctx := context.Background()

	_, err := s.Create(ctx, booking(march10, 9, 13, "w-1"))
	require.NoError(t, err)

	_, err = s.Create(ctx, booking(march10, 12, 16, "w-2", "w-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, roster.ErrValidation)

	var conflict *roster.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, roster.WorkerID("w-1"), conflict.WorkerID)

	list, err := s.ListByDateRange(ctx, allOf(march10))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_TouchingShiftsDoNotOverlap(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	_, err := s.Create(ctx, booking(march10, 9, 13, "w-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, booking(march10, 13, 17, "w-1"))
	require.NoError(t, err)

	assert.NoError(t, s.CheckInvariants(ctx, allOf(march10)))
}

func TestCreate_CancelledShiftFreesTheSlot(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	first, err := s.Create(ctx, booking(march10, 9, 13, "w-1"))
	require.NoError(t, err)
	_, err = s.Cancel(ctx, first.ID)
	require.NoError(t, err)

	_, err = s.Create(ctx, booking(march10, 10, 12, "w-1"))
	assert.NoError(t, err)
}

// =============================================================================
// RESCHEDULE
// =============================================================================

func TestReschedule_PreservesOriginalOnlyOnce(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	march11 := march10.AddDate(0, 0, 1)
	moved, err := s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march11, Start: clock(10), End: clock(18)})
	require.NoError(t, err)
	assert.True(t, moved.Rescheduled)
	require.NotNil(t, moved.OriginalDate)
	assert.Equal(t, march10, *moved.OriginalDate)
	assert.Equal(t, clock(9), *moved.OriginalStart)
	assert.Equal(t, clock(17), *moved.OriginalEnd)

	march12 := march10.AddDate(0, 0, 2)
	movedAgain, err := s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march12, Start: clock(8), End: clock(12)})
	require.NoError(t, err)
	assert.Equal(t, march12, movedAgain.Date)
	assert.Equal(t, march10, *movedAgain.OriginalDate, "original booking is immutable once set")
	assert.Equal(t, clock(9), *movedAgain.OriginalStart)
}

func TestReschedule_ExcludesItselfFromOverlapCheck(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	_, err = s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march10, Start: clock(10), End: clock(18)})
	assert.NoError(t, err)
}

func TestReschedule_FailsValidationWithoutSideEffects(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	other, err := s.Create(ctx, booking(march10, 14, 18, "w-1"))
	require.NoError(t, err)
	shift, err := s.Create(ctx, booking(march10, 8, 12, "w-1"))
	require.NoError(t, err)

	_, err = s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march10, Start: clock(12), End: clock(11)})
	assert.ErrorIs(t, err, roster.ErrValidation)

	_, err = s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march10, Start: clock(13), End: clock(15)})
	assert.ErrorIs(t, err, roster.ErrValidation, "collides with %s", other.ID)

	got, err := s.Get(ctx, shift.ID)
	require.NoError(t, err)
	assert.False(t, got.Rescheduled, "failed reschedule must not record originals")
	assert.Equal(t, clock(8), got.Start)
}

func TestReschedule_OnlyFromUpcoming(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)

	_, err = s.Reschedule(ctx, shift.ID, shifts.Reschedule{Date: march10, Start: clock(10), End: clock(18)})
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition)
}

func TestReschedule_ReplacesWorkers(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	moved, err := s.Reschedule(ctx, shift.ID, shifts.Reschedule{
		Date: march10, Start: clock(9), End: clock(17), Workers: []roster.WorkerID{"w-3", "w-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []roster.WorkerID{"w-2", "w-3"}, moved.AssignedWorkers)

	_, err = s.Reschedule(ctx, shift.ID, shifts.Reschedule{
		Date: march10, Start: clock(9), End: clock(17), Workers: []roster.WorkerID{},
	})
	assert.ErrorIs(t, err, roster.ErrValidation, "assigned workers may never become empty")
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_Transitions(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	upcoming, err := s.Create(ctx, booking(march10, 6, 8, "w-1"))
	require.NoError(t, err)
	cancelled, err := s.Cancel(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.StatusCancelled, cancelled.Status)

	_, err = s.Cancel(ctx, upcoming.ID)
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition, "cancelled is terminal")

	running, err := s.Create(ctx, booking(march10, 9, 12, "w-1"))
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, running.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)
	_, err = s.Cancel(ctx, running.ID)
	assert.NoError(t, err, "in-progress shifts can be cancelled")

	done, err := s.Create(ctx, booking(march10, 13, 17, "w-1"))
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, done.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)
	_, err = tracker.MarkCompleted(ctx, done.ID)
	require.NoError(t, err)

	_, err = s.Cancel(ctx, done.ID)
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition)
}

// =============================================================================
// REASSIGN
// =============================================================================

func TestReassignWorker_SwapsAtomically(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1", "w-2"))
	require.NoError(t, err)

	updated, err := s.ReassignWorker(ctx, shift.ID, "w-1", "w-9")
	require.NoError(t, err)
	assert.Equal(t, []roster.WorkerID{"w-2", "w-9"}, updated.AssignedWorkers)
	assert.False(t, updated.IsAssigned("w-1"))
}

func TestReassignWorker_ConflictLeavesShiftUnchanged(t *testing.T) {
	// GIVEN: w-9 is already booked 12:00-18:00
	// WHEN: reassigning w-1's 09:00-17:00 shift to w-9
	// THEN: WorkerConflict and the shift still belongs to w-1
	s := newTestStore(t, march10)
	ctx := context.Background()

	busy, err := s.Create(ctx, booking(march10, 12, 18, "w-9"))
	require.NoError(t, err)
	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	_, err = s.ReassignWorker(ctx, shift.ID, "w-1", "w-9")
	require.ErrorIs(t, err, roster.ErrWorkerConflict)
	var conflict *roster.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, busy.ID, conflict.ConflictShiftID)

	got, err := s.Get(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, []roster.WorkerID{"w-1"}, got.AssignedWorkers)
}

func TestReassignWorker_Guards(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1", "w-2"))
	require.NoError(t, err)

	_, err = s.ReassignWorker(ctx, shift.ID, "w-7", "w-9")
	assert.ErrorIs(t, err, roster.ErrValidation, "old worker must be assigned")

	_, err = s.ReassignWorker(ctx, shift.ID, "w-1", "w-2")
	assert.ErrorIs(t, err, roster.ErrWorkerConflict, "new worker already on the shift")

	_, err = s.Cancel(ctx, shift.ID)
	require.NoError(t, err)
	_, err = s.ReassignWorker(ctx, shift.ID, "w-1", "w-9")
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition)

	_, err = s.ReassignWorker(ctx, "missing", "w-1", "w-9")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestReassignWorker_ConcurrentRaceHasOneWinner(t *testing.T) {
	// GIVEN: two overlapping shifts owned by different absent workers
	// WHEN: both try to bind the same replacement at the same time
	// THEN: exactly one succeeds; the other sees WorkerConflict
	s := newTestStore(t, march10)
	ctx := context.Background()

	a, err := s.Create(ctx, booking(march10, 9, 13, "w-1"))
	require.NoError(t, err)
	b, err := s.Create(ctx, booking(march10, 11, 15, "w-2"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, job := range []struct {
		id  roster.ShiftID
		old roster.WorkerID
	}{{a.ID, "w-1"}, {b.ID, "w-2"}} {
		wg.Add(1)
		go func(i int, id roster.ShiftID, old roster.WorkerID) {
			defer wg.Done()
			_, errs[i] = s.ReassignWorker(ctx, id, old, "w-9")
		}(i, job.id, job.old)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, roster.ErrWorkerConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.NoError(t, s.CheckInvariants(ctx, allOf(march10)))
}

// =============================================================================
// READS
// =============================================================================

func TestListByWorker_ChronologicalWithinPeriod(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	_, err := s.Create(ctx, booking(march10.AddDate(0, 0, 1), 9, 12, "w-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, booking(march10, 14, 16, "w-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, booking(march10, 8, 10, "w-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, booking(march10.AddDate(0, 1, 0), 8, 10, "w-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, booking(march10, 8, 10, "w-2"))
	require.NoError(t, err)

	list, err := s.ListByWorker(ctx, "w-1", calendar.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, clock(8), list[0].Start)
	assert.Equal(t, clock(14), list[1].Start)
	assert.Equal(t, march10.AddDate(0, 0, 1), list[2].Date)
}

func TestView_SeesConsistentSnapshot(t *testing.T) {
	s := newTestStore(t, march10)
	ctx := context.Background()

	_, err := s.Create(ctx, booking(march10, 9, 12, "w-1"))
	require.NoError(t, err)

	var seen int
	err = s.View(ctx, func(r shifts.Reader) error {
		list, err := r.ListByWorker(ctx, "w-1", allOf(march10))
		seen = len(list)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}
