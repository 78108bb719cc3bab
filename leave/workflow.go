/*
Package leave runs the medical-leave approval workflow.

LIFECYCLE:
  ┌─────────┐  Approve (manager)  ┌──────────┐
  │ PENDING │ ──────────────────▶ │ APPROVED │ ──▶ reallocation plan
  └─────────┘                     └──────────┘
       │       Reject (manager)   ┌──────────┐
       └────────────────────────▶ │ REJECTED │     no shift changes
                                  └──────────┘

  A leave is decided exactly once. The decision is a compare-and-set in the
  repository, so when two managers approve at the same time one wins and the
  other gets AlreadyDecided; only the winner triggers reallocation.

  Reallocation runs synchronously inside Approve and its plan is returned to
  the caller. Unresolved shifts do not undo the approval.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/realloc"
	"github.com/warp/shift-engine/roster"
)

// SubmitRequest is a worker's declaration of medical leave.
type SubmitRequest struct {
	WorkerRef      roster.WorkerID
	StartDate      time.Time
	EndDate        time.Time
	CertificateRef string
	Reason         string
}

// Reallocator is satisfied by *realloc.Planner.
type Reallocator interface {
	Reallocate(ctx context.Context, leave *roster.MedicalLeave) (*realloc.Plan, error)
}

// Decision is the result of Approve.
type Decision struct {
	Leave *roster.MedicalLeave `json:"leave"`
	Plan  *realloc.Plan        `json:"plan"`
}

type Workflow struct {
	repo    roster.LeaveRepository
	planner Reallocator
	events  *notify.Dispatcher
	log     logrus.FieldLogger
	now     func() time.Time
	newID   func() roster.LeaveID
}

type Option func(*Workflow)

func WithLogger(l logrus.FieldLogger) Option    { return func(w *Workflow) { w.log = l } }
func WithNotifier(d *notify.Dispatcher) Option  { return func(w *Workflow) { w.events = d } }
func WithClock(now func() time.Time) Option     { return func(w *Workflow) { w.now = now } }
func WithIDs(next func() roster.LeaveID) Option { return func(w *Workflow) { w.newID = next } }

func NewWorkflow(repo roster.LeaveRepository, planner Reallocator, opts ...Option) *Workflow {
	w := &Workflow{
		repo:    repo,
		planner: planner,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		newID:   func() roster.LeaveID { return roster.LeaveID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// =============================================================================
// SUBMISSION & READS
// =============================================================================

// Submit records a PENDING leave. Workers may only submit for themselves.
func (w *Workflow) Submit(ctx context.Context, sess roster.Session, req SubmitRequest) (*roster.MedicalLeave, error) {
	if req.WorkerRef == "" {
		req.WorkerRef = sess.ActorID
	}
	if !sess.CanView(req.WorkerRef) {
		return nil, &roster.ForbiddenError{ActorID: sess.ActorID, Action: "submit leave for " + string(req.WorkerRef)}
	}
	l := roster.MedicalLeave{
		ID:             w.newID(),
		WorkerRef:      req.WorkerRef,
		StartDate:      calendar.Truncate(req.StartDate),
		EndDate:        calendar.Truncate(req.EndDate),
		CertificateRef: req.CertificateRef,
		Reason:         req.Reason,
		State:          roster.LeavePending,
		CreatedAt:      w.now().UTC(),
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := w.repo.InsertLeave(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to store leave: %w", err)
	}
	w.log.WithFields(logrus.Fields{
		"leave_id":  l.ID,
		"worker_id": l.WorkerRef,
		"period":    l.Period().String(),
	}).Info("leave submitted")
	return &l, nil
}

func (w *Workflow) Get(ctx context.Context, sess roster.Session, id roster.LeaveID) (*roster.MedicalLeave, error) {
	l, err := w.repo.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.CanView(l.WorkerRef) {
		return nil, &roster.ForbiddenError{ActorID: sess.ActorID, Action: "view leave " + string(id)}
	}
	return l, nil
}

// ListPending returns the approval queue, oldest first. Managers only.
func (w *Workflow) ListPending(ctx context.Context, sess roster.Session) ([]roster.MedicalLeave, error) {
	if err := sess.RequireManager("list pending leaves"); err != nil {
		return nil, err
	}
	return w.repo.LeavesByState(ctx, roster.LeavePending)
}

// ListByWorker returns the worker's leaves overlapping the period in any state.
func (w *Workflow) ListByWorker(ctx context.Context, sess roster.Session, worker roster.WorkerID, period calendar.Period) ([]roster.MedicalLeave, error) {
	if !sess.CanView(worker) {
		return nil, &roster.ForbiddenError{ActorID: sess.ActorID, Action: "list leaves of " + string(worker)}
	}
	return w.repo.LeavesByWorker(ctx, worker, period, "")
}

// =============================================================================
// DECISIONS
// =============================================================================

// Approve decides the leave and reallocates the worker's shifts.
func (w *Workflow) Approve(ctx context.Context, sess roster.Session, id roster.LeaveID) (*Decision, error) {
	if err := sess.RequireManager("approve leave"); err != nil {
		return nil, err
	}
	l, err := w.repo.Decide(ctx, id, roster.LeaveApproved, sess.ActorID, w.now().UTC(), "")
	if err != nil {
		return nil, err
	}
	log := w.log.WithFields(logrus.Fields{"leave_id": id, "worker_id": l.WorkerRef, "by": sess.ActorID})
	log.Info("leave approved")
	w.events.Emit(ctx, notify.Event{Type: notify.LeaveApproved, LeaveID: id, WorkerID: l.WorkerRef})

	plan, err := w.planner.Reallocate(ctx, l)
	if err != nil {
		// The approval stands; the caller can retry reallocation.
		log.WithError(err).Error("reallocation failed")
		return &Decision{Leave: l}, fmt.Errorf("leave %s approved but reallocation failed: %w", id, err)
	}
	return &Decision{Leave: l, Plan: plan}, nil
}

// Reallocate reruns reallocation for an already approved leave, e.g. after a
// failed first attempt or once more candidates became available.
func (w *Workflow) Reallocate(ctx context.Context, sess roster.Session, id roster.LeaveID) (*Decision, error) {
	if err := sess.RequireManager("reallocate leave"); err != nil {
		return nil, err
	}
	l, err := w.repo.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.State != roster.LeaveApproved {
		return nil, &roster.ValidationError{Field: "state", Message: fmt.Sprintf("leave is %s, not APPROVED", l.State)}
	}
	plan, err := w.planner.Reallocate(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("failed to reallocate leave %s: %w", id, err)
	}
	return &Decision{Leave: l, Plan: plan}, nil
}

// Reject decides the leave without touching any shift.
func (w *Workflow) Reject(ctx context.Context, sess roster.Session, id roster.LeaveID, reason string) (*roster.MedicalLeave, error) {
	if err := sess.RequireManager("reject leave"); err != nil {
		return nil, err
	}
	l, err := w.repo.Decide(ctx, id, roster.LeaveRejected, sess.ActorID, w.now().UTC(), reason)
	if err != nil {
		return nil, err
	}
	w.log.WithFields(logrus.Fields{"leave_id": id, "worker_id": l.WorkerRef, "by": sess.ActorID}).Info("leave rejected")
	w.events.Emit(ctx, notify.Event{Type: notify.LeaveRejected, LeaveID: id, WorkerID: l.WorkerRef, Detail: reason})
	return l, nil
}
