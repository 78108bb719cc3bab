package shifts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/shifts"
)

func TestMarkPresent_StartsShiftOnItsDate(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1", "w-2"))
	require.NoError(t, err)

	updated, err := tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-2"})
	require.NoError(t, err)
	assert.Equal(t, roster.StatusInProgress, updated.Status)
	assert.Equal(t, []roster.WorkerID{"w-2"}, updated.PresentWorkers)

	updated, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1", "w-2"})
	require.NoError(t, err)
	assert.Equal(t, []roster.WorkerID{"w-1", "w-2"}, updated.PresentWorkers, "no duplicates")

	present, err := tracker.IsPresent(ctx, shift.ID, "w-1")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestMarkPresent_BeforeShiftDateKeepsUpcoming(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10.AddDate(0, 0, 3), 9, 17, "w-1"))
	require.NoError(t, err)

	updated, err := tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)
	assert.Equal(t, roster.StatusUpcoming, updated.Status)
	assert.True(t, updated.IsPresent("w-1"))
}

func TestMarkPresent_RejectsUnassignedWorker(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	_, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-5"})
	assert.ErrorIs(t, err, roster.ErrValidation)

	got, err := s.Get(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.StatusUpcoming, got.Status)
	assert.Empty(t, got.PresentWorkers)
}

func TestMarkCompleted_RequiresInProgress(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)

	_, err = tracker.MarkCompleted(ctx, shift.ID)
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition, "upcoming cannot complete")
}

func TestMarkCompleted_TwiceFailsAndKeepsPresence(t *testing.T) {
	// GIVEN: a completed shift with w-1 present
	// WHEN: completing it again
	// THEN: InvalidStateTransition and presentWorkers unchanged
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1", "w-2"))
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)
	done, err := tracker.MarkCompleted(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.StatusCompleted, done.Status)

	_, err = tracker.MarkCompleted(ctx, shift.ID)
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition)

	got, err := s.Get(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.StatusCompleted, got.Status)
	assert.Equal(t, []roster.WorkerID{"w-1"}, got.PresentWorkers)
}

func TestAttendance_NeverMovesStatusBackward(t *testing.T) {
	s := newTestStore(t, march10)
	tracker := shifts.NewTracker(s)
	ctx := context.Background()

	shift, err := s.Create(ctx, booking(march10, 9, 17, "w-1"))
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)

	corrected, err := tracker.MarkAbsent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	require.NoError(t, err)
	assert.Equal(t, roster.StatusInProgress, corrected.Status, "absence does not revert to upcoming")
	assert.Empty(t, corrected.PresentWorkers)

	_, err = s.Cancel(ctx, shift.ID)
	require.NoError(t, err)
	_, err = tracker.MarkPresent(ctx, shift.ID, []roster.WorkerID{"w-1"})
	assert.ErrorIs(t, err, roster.ErrInvalidStateTransition)
}
