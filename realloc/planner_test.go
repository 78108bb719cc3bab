package realloc_test

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
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/realloc"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/roster/store"
	"github.com/warp/shift-engine/shifts"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = calendar.Date(2025, time.March, 10)

type harness struct {
	repo      *store.Memory
	shifts    *shifts.Store
	estimator *realloc.StaticEstimator
	events    *notify.Recorder
	log       logrus.FieldLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	var mu sync.Mutex
	n := 0
	repo := store.NewMemory()
	return &harness{
		repo: repo,
		shifts: shifts.NewStore(repo,
			shifts.WithLogger(log),
			shifts.WithClock(func() time.Time { return march10.Add(-48 * time.Hour) }),
			shifts.WithIDs(func() roster.ShiftID {
				mu.Lock()
				defer mu.Unlock()
				n++
				return roster.ShiftID(fmt.Sprintf("s-%d", n))
			}),
		),
		estimator: realloc.NewStaticEstimator(),
		events:    &notify.Recorder{},
		log:       log,
	}
}

func (h *harness) planner(opts ...realloc.Option) *realloc.Planner {
	return h.plannerWith(h.estimator, opts...)
}

func (h *harness) plannerWith(estimator realloc.TravelEstimator, opts ...realloc.Option) *realloc.Planner {
	dir := directory.NewStatic(directory.Property{ID: "prop-1", PostalCode: "75011"})
	opts = append([]realloc.Option{
		realloc.WithLogger(h.log),
		realloc.WithNotifier(notify.NewDispatcher(h.events, h.log)),
	}, opts...)
	return realloc.NewPlanner(h.shifts, h.repo, dir, estimator, opts...)
}

func (h *harness) shift(t *testing.T, date time.Time, start, end int, workers ...roster.WorkerID) roster.ShiftID {
	t.Helper()
	s, err := h.shifts.Create(context.Background(), shifts.NewShift{
		PropertyRef: "prop-1",
		Date:        date,
		Start:       calendar.NewClock(start, 0),
		End:         calendar.NewClock(end, 0),
		Workers:     workers,
	})
	require.NoError(t, err)
	return s.ID
}

func leaveFor(worker roster.WorkerID, from time.Time, days int) *roster.MedicalLeave {
	return &roster.MedicalLeave{
		ID:        roster.LeaveID("leave-" + string(worker)),
		WorkerRef: worker,
		StartDate: from,
		EndDate:   from.AddDate(0, 0, days-1),
		State:     roster.LeaveApproved,
	}
}

func est(worker roster.WorkerID, minutes int) realloc.Estimate {
	return realloc.Estimate{WorkerID: worker, TotalTravelTime: time.Duration(minutes) * time.Minute}
}

func (h *harness) assigned(t *testing.T, id roster.ShiftID) []roster.WorkerID {
	t.Helper()
	s, err := h.shifts.Get(context.Background(), id)
	require.NoError(t, err)
	return s.AssignedWorkers
}

// =============================================================================
// REALLOCATION
// =============================================================================

func TestReallocate_BothShiftsGoToCheapestCandidate(t *testing.T) {
	// GIVEN: W on leave 3 days with 2 upcoming shifts, A closer than B
	// WHEN: reallocating
	// THEN: both shifts go to A and W is removed from both
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")
	s2 := h.shift(t, march10.AddDate(0, 0, 1), 9, 17, "W", "X")
	h.estimator.Set("75011", est("B", 20), est("A", 10))

	plan, err := h.planner().Reallocate(context.Background(), leaveFor("W", march10, 3))
	require.NoError(t, err)

	assert.Equal(t, []roster.ShiftID{s1, s2}, plan.AffectedShifts)
	require.Len(t, plan.AppliedReassignments, 2)
	assert.True(t, plan.Resolved())
	for _, r := range plan.AppliedReassignments {
		assert.Equal(t, roster.WorkerID("A"), r.To)
		assert.Equal(t, 0, r.Rank)
	}
	assert.Equal(t, []roster.WorkerID{"A"}, h.assigned(t, s1))
	assert.Equal(t, []roster.WorkerID{"A", "X"}, h.assigned(t, s2))

	assert.Len(t, h.events.OfType(notify.ShiftReassigned), 2)
	require.NoError(t, h.shifts.CheckInvariants(context.Background(), calendar.MonthPeriod(2025, time.March)))
}

func TestReallocate_NoCandidatesLeavesShiftUnresolved(t *testing.T) {
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")

	plan, err := h.planner().Reallocate(context.Background(), leaveFor("W", march10, 1))
	require.NoError(t, err)

	assert.Empty(t, plan.AppliedReassignments)
	require.Len(t, plan.Unresolved, 1)
	assert.Equal(t, s1, plan.Unresolved[0].ShiftID)
	assert.Equal(t, "no available candidates", plan.Unresolved[0].Reason)
	assert.Equal(t, []roster.WorkerID{"W"}, h.assigned(t, s1), "shift stays with the absent worker")

	unresolved := h.events.OfType(notify.ShiftUnresolved)
	require.Len(t, unresolved, 1)
	assert.Equal(t, s1, unresolved[0].ShiftID)
}

func TestReallocate_EstimatorTimeoutMeansNoCandidates(t *testing.T) {
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")
	s2 := h.shift(t, march10.AddDate(0, 0, 1), 9, 17, "W")
	h.estimator.Set("75011", est("A", 5))
	h.estimator.Delay = 500 * time.Millisecond

	plan, err := h.planner(realloc.WithEstimatorTimeout(10*time.Millisecond)).
		Reallocate(context.Background(), leaveFor("W", march10, 2))
	require.NoError(t, err)

	require.Len(t, plan.Unresolved, 2, "one timeout never blocks the next shift")
	assert.Contains(t, plan.Unresolved[0].Reason, "did not respond")
	assert.Empty(t, plan.PerShiftCandidates[s1])
	assert.Equal(t, []roster.WorkerID{"W"}, h.assigned(t, s2))
}

func TestReallocate_LateAnswerFromEstimatorIsDiscarded(t *testing.T) {
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")

	// GIVEN: an estimator that ignores ctx and answers long after the deadline
	stubborn := realloc.EstimatorFunc(func(_ context.Context, _ realloc.Query) ([]realloc.Estimate, error) {
		time.Sleep(300 * time.Millisecond)
		return []realloc.Estimate{est("A", 5)}, nil
	})

	// WHEN: the planner waits at most 20ms per shift
	start := time.Now()
	plan, err := h.plannerWith(stubborn, realloc.WithEstimatorTimeout(20*time.Millisecond)).
		Reallocate(context.Background(), leaveFor("W", march10, 1))
	require.NoError(t, err)

	// THEN: the shift stays with W and the late candidate is never committed
	assert.Less(t, time.Since(start), 250*time.Millisecond, "did not wait for the estimator")
	assert.Empty(t, plan.AppliedReassignments)
	require.Len(t, plan.Unresolved, 1)
	assert.Equal(t, s1, plan.Unresolved[0].ShiftID)
	assert.Contains(t, plan.Unresolved[0].Reason, "did not respond")
	assert.Equal(t, []roster.WorkerID{"W"}, h.assigned(t, s1))
}

func TestReallocate_SkipsBusyAndAbsentCandidates(t *testing.T) {
	// A already works 12-14 that day, C is on approved leave, W is the
	// absent worker and X already works the shift.
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W", "X")
	h.shift(t, march10, 12, 14, "A")
	require.NoError(t, h.repo.InsertLeave(context.Background(), roster.MedicalLeave{
		ID: "leave-C", WorkerRef: "C", StartDate: march10, EndDate: march10, State: roster.LeaveApproved,
	}))
	h.estimator.Set("75011", est("A", 1), est("C", 2), est("W", 0), est("X", 0), est("B", 30))

	plan, err := h.planner().Reallocate(context.Background(), leaveFor("W", march10, 1))
	require.NoError(t, err)

	candidates := plan.PerShiftCandidates[s1]
	require.Len(t, candidates, 1)
	assert.Equal(t, roster.WorkerID("B"), candidates[0].WorkerID)
	assert.Equal(t, []roster.WorkerID{"B", "X"}, h.assigned(t, s1))
}

func TestReallocate_TouchingShiftIsNotBusy(t *testing.T) {
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")
	h.shift(t, march10, 17, 20, "A")
	h.estimator.Set("75011", est("A", 1))

	plan, err := h.planner().Reallocate(context.Background(), leaveFor("W", march10, 1))
	require.NoError(t, err)
	assert.Equal(t, []roster.WorkerID{"A"}, h.assigned(t, s1))
	assert.True(t, plan.Resolved())
}

func TestReallocate_TiesBrokenByWorkerID(t *testing.T) {
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W")
	h.estimator.Set("75011", est("C", 10), est("B", 10), est("A", 15))

	plan, err := h.planner().Propose(context.Background(), leaveFor("W", march10, 1))
	require.NoError(t, err)

	var order []roster.WorkerID
	for _, c := range plan.PerShiftCandidates[s1] {
		order = append(order, c.WorkerID)
	}
	assert.Equal(t, []roster.WorkerID{"B", "C", "A"}, order)
	assert.Equal(t, []roster.WorkerID{"W"}, h.assigned(t, s1), "propose writes nothing")
}

func TestCommit_ConflictFallsThroughToNextCandidate(t *testing.T) {
	// GIVEN: a proposal ranking A first
	// WHEN: A gets booked elsewhere before commit
	// THEN: B takes the shift
	h := newHarness(t)
	ctx := context.Background()
	s1 := h.shift(t, march10, 9, 17, "W")
	h.estimator.Set("75011", est("A", 5), est("B", 10))

	p := h.planner()
	plan, err := p.Propose(ctx, leaveFor("W", march10, 1))
	require.NoError(t, err)
	require.Len(t, plan.PerShiftCandidates[s1], 2)

	h.shift(t, march10, 8, 10, "A")
	p.Commit(ctx, plan)

	require.Len(t, plan.AppliedReassignments, 1)
	assert.Equal(t, roster.WorkerID("B"), plan.AppliedReassignments[0].To)
	assert.Equal(t, 1, plan.AppliedReassignments[0].Rank)
}

func TestCommit_AllCandidatesTaken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s1 := h.shift(t, march10, 9, 17, "W")
	h.estimator.Set("75011", est("A", 5))

	p := h.planner()
	plan, err := p.Propose(ctx, leaveFor("W", march10, 1))
	require.NoError(t, err)
	h.shift(t, march10, 16, 18, "A")
	p.Commit(ctx, plan)

	require.Len(t, plan.Unresolved, 1)
	assert.Equal(t, s1, plan.Unresolved[0].ShiftID)
	assert.Equal(t, "all 1 candidates conflicted", plan.Unresolved[0].Reason)
}

func TestReallocate_IgnoresFinishedAndOutOfRangeShifts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	live := h.shift(t, march10, 9, 17, "W")
	cancelled := h.shift(t, march10.AddDate(0, 0, 1), 9, 17, "W")
	_, err := h.shifts.Cancel(ctx, cancelled)
	require.NoError(t, err)
	h.shift(t, march10.AddDate(0, 0, 5), 9, 17, "W") // after the leave
	h.estimator.Set("75011", est("A", 5))

	plan, err := h.planner().Reallocate(ctx, leaveFor("W", march10, 3))
	require.NoError(t, err)
	assert.Equal(t, []roster.ShiftID{live}, plan.AffectedShifts)
}

func TestReallocate_ConcurrentLeavesNeverDoubleBook(t *testing.T) {
	// GIVEN: W1 and W2 both absent on overlapping shifts, A the only candidate
	// WHEN: both reallocations run concurrently
	// THEN: A lands on exactly one shift
	h := newHarness(t)
	s1 := h.shift(t, march10, 9, 17, "W1")
	s2 := h.shift(t, march10, 10, 18, "W2")
	h.estimator.Set("75011", est("A", 5))
	p := h.planner()

	var wg sync.WaitGroup
	plans := make([]*realloc.Plan, 2)
	for i, w := range []roster.WorkerID{"W1", "W2"} {
		wg.Add(1)
		go func(i int, w roster.WorkerID) {
			defer wg.Done()
			plan, err := p.Reallocate(context.Background(), leaveFor(w, march10, 1))
			assert.NoError(t, err)
			plans[i] = plan
		}(i, w)
	}
	wg.Wait()

	applied := len(plans[0].AppliedReassignments) + len(plans[1].AppliedReassignments)
	unresolved := len(plans[0].Unresolved) + len(plans[1].Unresolved)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, unresolved)

	onA := 0
	for _, id := range []roster.ShiftID{s1, s2} {
		for _, w := range h.assigned(t, id) {
			if w == "A" {
				onA++
			}
		}
	}
	assert.Equal(t, 1, onA)
	require.NoError(t, h.shifts.CheckInvariants(context.Background(), calendar.MonthPeriod(2025, time.March)))
}

// =============================================================================
// ESTIMATOR WRAPPERS
// =============================================================================

func TestWithTimeout_ReturnsTimeoutError(t *testing.T) {
	slow := realloc.NewStaticEstimator(est("A", 1))
	slow.Delay = time.Second

	_, err := realloc.WithTimeout(slow, 5*time.Millisecond).RankCandidates(context.Background(), realloc.Query{})
	assert.ErrorIs(t, err, roster.ErrExternalTimeout)
}

func TestWithTimeout_IgnoresEstimatorThatOverrunsSilently(t *testing.T) {
	stubborn := realloc.EstimatorFunc(func(_ context.Context, _ realloc.Query) ([]realloc.Estimate, error) {
		time.Sleep(100 * time.Millisecond)
		return []realloc.Estimate{est("A", 1)}, nil
	})

	got, err := realloc.WithTimeout(stubborn, 5*time.Millisecond).RankCandidates(context.Background(), realloc.Query{})
	assert.ErrorIs(t, err, roster.ErrExternalTimeout)
	assert.Nil(t, got)
}

func TestWithTimeout_PassesFastAnswersAndCallerCancellation(t *testing.T) {
	fast := realloc.WithTimeout(realloc.NewStaticEstimator(est("A", 1)), time.Second)
	got, err := fast.RankCandidates(context.Background(), realloc.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	slow := realloc.NewStaticEstimator(est("A", 1))
	slow.Delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = realloc.WithTimeout(slow, time.Second).RankCandidates(ctx, realloc.Query{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, roster.ErrExternalTimeout)
}

func TestRateLimited_PassesThrough(t *testing.T) {
	base := realloc.NewStaticEstimator(est("A", 1))
	limited := realloc.RateLimited(base, 1000, 1)

	for i := 0; i < 3; i++ {
		got, err := limited.RankCandidates(context.Background(), realloc.Query{PostalCode: "x"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
}

func TestRateLimited_HonoursCancelledContext(t *testing.T) {
	limited := realloc.RateLimited(realloc.NewStaticEstimator(), 0.001, 1)
	ctx := context.Background()
	_, err := limited.RankCandidates(ctx, realloc.Query{})
	require.NoError(t, err, "first call uses the burst")

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = limited.RankCandidates(ctx, realloc.Query{})
	assert.Error(t, err)
}
