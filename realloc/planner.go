/*
Package realloc moves an absent worker's shifts to replacement workers.

PURPOSE:
  When a medical leave is approved, every UPCOMING or IN_PROGRESS shift of
  the worker that falls inside the leave has to be covered by someone else.
  Planner finds candidates through the external travel estimator, keeps the
  ones who are actually free, and reassigns each shift to the best of them.

PIPELINE:
  ┌─────────┐   ┌──────────────────────┐   ┌──────────┐   ┌──────────────────┐
  │ Collect │──▶│ Rank (per shift)     │──▶│ Propose  │──▶│ Commit (per shift)│
  │ shifts  │   │ directory+estimator  │   │ Plan     │   │ ReassignWorker    │
  └─────────┘   │ filter, sort         │   └──────────┘   └──────────────────┘
                └──────────────────────┘

  Ranking drops: the absent worker, workers already on the shift, workers
  with an overlapping non-cancelled shift and workers on approved leave that
  day. Remaining candidates are ordered by total travel time, ties by id.

COMMIT:
  Candidates are tried in order. ReassignWorker re-checks overlap under the
  store's write lock, so a candidate taken by a concurrent reallocation
  fails with WorkerConflict and the next one is tried. A shift nobody can
  take stays with the absent worker and is reported in Plan.Unresolved.
  Shifts are independent: one unresolved shift never blocks the others.

FAILURE MODES:
  property lookup fails      -> shift unresolved
  estimator times out/fails  -> shift unresolved (no candidates)
  every candidate conflicts  -> shift unresolved

SEE ALSO:
  - estimator.go: TravelEstimator contract and wrappers
  - leave/workflow.go: runs Reallocate after approval
*/
package realloc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// PLAN
// =============================================================================

// Candidate is a ranked replacement for one shift.
type Candidate struct {
	WorkerID         roster.WorkerID `json:"worker_id"`
	TotalTravelTime  time.Duration   `json:"total_travel_time"`
	TrafficComponent time.Duration   `json:"traffic_component"`
	OriginLocation   string          `json:"origin_location,omitempty"`
}

// Reassignment is a committed swap.
type Reassignment struct {
	ShiftID roster.ShiftID  `json:"shift_id"`
	From    roster.WorkerID `json:"from"`
	To      roster.WorkerID `json:"to"`
	Rank    int             `json:"rank"` // 0 = first choice
}

// UnresolvedShift is a shift left with the absent worker.
type UnresolvedShift struct {
	ShiftID roster.ShiftID `json:"shift_id"`
	Reason  string         `json:"reason"`
}

// Plan is the outcome of one reallocation run.
type Plan struct {
	LeaveRef             roster.LeaveID                 `json:"leave_ref"`
	WorkerRef            roster.WorkerID                `json:"worker_ref"`
	AffectedShifts       []roster.ShiftID               `json:"affected_shifts"`
	PerShiftCandidates   map[roster.ShiftID][]Candidate `json:"per_shift_candidates"`
	AppliedReassignments []Reassignment                 `json:"applied_reassignments"`
	Unresolved           []UnresolvedShift              `json:"unresolved"`

	// rankErrors remembers why a shift has no candidates so Commit can say so.
	rankErrors map[roster.ShiftID]string
}

// Resolved reports whether every affected shift was reassigned.
func (p *Plan) Resolved() bool { return len(p.Unresolved) == 0 }

// =============================================================================
// DEPENDENCIES
// =============================================================================

// ShiftAccess is what the planner needs from the shift store.
type ShiftAccess interface {
	ListByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error)
	Get(ctx context.Context, id roster.ShiftID) (*roster.Shift, error)
	ReassignWorker(ctx context.Context, id roster.ShiftID, oldWorker, newWorker roster.WorkerID) (*roster.Shift, error)
}

// LeaveLookup finds approved leave overlapping a candidate's day.
type LeaveLookup interface {
	LeavesByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period, state roster.ApprovalState) ([]roster.MedicalLeave, error)
}

// =============================================================================
// PLANNER
// =============================================================================

type Planner struct {
	shifts    ShiftAccess
	leaves    LeaveLookup
	dir       directory.Directory
	estimator TravelEstimator
	events    *notify.Dispatcher
	log       logrus.FieldLogger
}

type Option func(*Planner)

func WithLogger(l logrus.FieldLogger) Option { return func(p *Planner) { p.log = l } }

func WithNotifier(d *notify.Dispatcher) Option { return func(p *Planner) { p.events = d } }

// WithEstimatorTimeout bounds each per-shift estimator call.
func WithEstimatorTimeout(after time.Duration) Option {
	return func(p *Planner) { p.estimator = WithTimeout(p.estimator, after) }
}

func NewPlanner(shifts ShiftAccess, leaves LeaveLookup, dir directory.Directory, estimator TravelEstimator, opts ...Option) *Planner {
	p := &Planner{
		shifts:    shifts,
		leaves:    leaves,
		dir:       dir,
		estimator: estimator,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reallocate proposes and commits a plan for an approved leave.
func (p *Planner) Reallocate(ctx context.Context, leave *roster.MedicalLeave) (*Plan, error) {
	plan, err := p.Propose(ctx, leave)
	if err != nil {
		return nil, err
	}
	p.Commit(ctx, plan)
	return plan, nil
}

// Propose collects and ranks without writing anything.
func (p *Planner) Propose(ctx context.Context, leave *roster.MedicalLeave) (*Plan, error) {
	plan := &Plan{
		LeaveRef:             leave.ID,
		WorkerRef:            leave.WorkerRef,
		AffectedShifts:       []roster.ShiftID{},
		PerShiftCandidates:   make(map[roster.ShiftID][]Candidate),
		AppliedReassignments: []Reassignment{},
		Unresolved:           []UnresolvedShift{},
		rankErrors:           make(map[roster.ShiftID]string),
	}

	affected, err := p.collect(ctx, leave)
	if err != nil {
		return nil, err
	}
	for i := range affected {
		shift := &affected[i]
		plan.AffectedShifts = append(plan.AffectedShifts, shift.ID)

		candidates, err := p.rank(ctx, leave.WorkerRef, shift)
		if err != nil {
			plan.rankErrors[shift.ID] = err.Error()
			p.log.WithError(err).WithFields(logrus.Fields{
				"shift_id": shift.ID,
				"leave_id": leave.ID,
			}).Warn("no candidates for shift")
			candidates = []Candidate{}
		}
		plan.PerShiftCandidates[shift.ID] = candidates
	}
	return plan, nil
}

// Commit applies a proposed plan shift by shift.
func (p *Planner) Commit(ctx context.Context, plan *Plan) {
	var events []notify.Event
	for _, id := range plan.AffectedShifts {
		applied, reason := p.commitShift(ctx, plan, id)
		if applied != nil {
			plan.AppliedReassignments = append(plan.AppliedReassignments, *applied)
			events = append(events, notify.Event{
				Type:          notify.ShiftReassigned,
				ShiftID:       id,
				LeaveID:       plan.LeaveRef,
				WorkerID:      applied.From,
				ReplacementID: applied.To,
			})
			continue
		}
		plan.Unresolved = append(plan.Unresolved, UnresolvedShift{ShiftID: id, Reason: reason})
		events = append(events, notify.Event{
			Type:     notify.ShiftUnresolved,
			ShiftID:  id,
			LeaveID:  plan.LeaveRef,
			WorkerID: plan.WorkerRef,
			Detail:   reason,
		})
	}
	p.events.Emit(ctx, events...)

	p.log.WithFields(logrus.Fields{
		"leave_id":   plan.LeaveRef,
		"worker_id":  plan.WorkerRef,
		"affected":   len(plan.AffectedShifts),
		"reassigned": len(plan.AppliedReassignments),
		"unresolved": len(plan.Unresolved),
	}).Info("reallocation committed")
}

func (p *Planner) commitShift(ctx context.Context, plan *Plan, id roster.ShiftID) (*Reassignment, string) {
	candidates := plan.PerShiftCandidates[id]
	if len(candidates) == 0 {
		if reason, ok := plan.rankErrors[id]; ok {
			return nil, reason
		}
		return nil, "no available candidates"
	}
	conflicts := 0
	for rank, c := range candidates {
		_, err := p.shifts.ReassignWorker(ctx, id, plan.WorkerRef, c.WorkerID)
		if err == nil {
			return &Reassignment{ShiftID: id, From: plan.WorkerRef, To: c.WorkerID, Rank: rank}, ""
		}
		if errors.Is(err, roster.ErrWorkerConflict) {
			conflicts++
			p.log.WithFields(logrus.Fields{"shift_id": id, "worker_id": c.WorkerID}).Debug("candidate taken, trying next")
			continue
		}
		// The shift itself changed (cancelled, completed, worker removed).
		return nil, err.Error()
	}
	return nil, fmt.Sprintf("all %d candidates conflicted", conflicts)
}

// =============================================================================
// COLLECT & RANK
// =============================================================================

func (p *Planner) collect(ctx context.Context, leave *roster.MedicalLeave) ([]roster.Shift, error) {
	list, err := p.shifts.ListByWorker(ctx, leave.WorkerRef, leave.Period())
	if err != nil {
		return nil, fmt.Errorf("failed to load shifts of %s: %w", leave.WorkerRef, err)
	}
	out := list[:0]
	for _, s := range list {
		if s.Status == roster.StatusUpcoming || s.Status == roster.StatusInProgress {
			out = append(out, s)
		}
	}
	roster.SortShifts(out)
	return out, nil
}

func (p *Planner) rank(ctx context.Context, absent roster.WorkerID, shift *roster.Shift) ([]Candidate, error) {
	prop, err := p.dir.ResolveProperty(ctx, shift.PropertyRef)
	if err != nil {
		return nil, fmt.Errorf("property lookup failed: %w", err)
	}
	estimates, err := p.estimator.RankCandidates(ctx, Query{
		PostalCode: prop.PostalCode,
		Date:       shift.Date,
		Start:      shift.Start,
		End:        shift.End,
	})
	if err != nil {
		return nil, fmt.Errorf("travel estimator: %w", err)
	}

	seen := make(map[roster.WorkerID]bool)
	kept := make([]Estimate, 0, len(estimates))
	for _, e := range estimates {
		if e.WorkerID == "" || e.WorkerID == absent || seen[e.WorkerID] || shift.IsAssigned(e.WorkerID) {
			continue
		}
		seen[e.WorkerID] = true
		free, err := p.available(ctx, e.WorkerID, shift)
		if err != nil {
			return nil, err
		}
		if free {
			kept = append(kept, e)
		}
	}
	sortEstimates(kept)

	out := make([]Candidate, len(kept))
	for i, e := range kept {
		out[i] = Candidate(e)
	}
	return out, nil
}

// available reports whether the worker has neither an overlapping active
// shift nor approved leave on the shift's day.
func (p *Planner) available(ctx context.Context, worker roster.WorkerID, shift *roster.Shift) (bool, error) {
	day := calendar.NewPeriod(shift.Date, shift.Date)

	others, err := p.shifts.ListByWorker(ctx, worker, day)
	if err != nil {
		return false, fmt.Errorf("failed to load shifts of candidate %s: %w", worker, err)
	}
	for i := range others {
		if others[i].ID != shift.ID && others[i].Status.Active() && shift.Overlaps(&others[i]) {
			return false, nil
		}
	}

	leaves, err := p.leaves.LeavesByWorker(ctx, worker, day, roster.LeaveApproved)
	if err != nil {
		return false, fmt.Errorf("failed to load leaves of candidate %s: %w", worker, err)
	}
	return len(leaves) == 0, nil
}
