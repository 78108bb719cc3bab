/*
handlers.go - HTTP API handlers for the shift engine

PURPOSE:
  Exposes shift lifecycle, attendance, payroll and medical-leave approval
  via REST. Handles HTTP request/response and JSON, and delegates every
  decision to the domain packages.

ENDPOINTS:
  Shifts:
    POST   /api/shifts                    Create shift
    GET    /api/shifts?from=&to=          List by date range (managers)
    GET    /api/shifts/{id}               Get shift
    POST   /api/shifts/{id}/reschedule    Reschedule
    POST   /api/shifts/{id}/cancel        Cancel
    POST   /api/shifts/{id}/attendance    Mark present (or absent)
    POST   /api/shifts/{id}/complete      Mark completed

  Workers:
    GET    /api/workers/{id}/shifts       Shifts of a worker in a period
    GET    /api/workers/{id}/leaves       Leaves of a worker in a period

  Payroll:
    GET    /api/payroll?period=&workers=  Aggregate pay

  Leaves:
    POST   /api/leaves                    Submit
    GET    /api/leaves/pending            Approval queue (managers)
    GET    /api/leaves/{id}               Get
    GET    /api/leaves/{id}/preview       Ranked candidates, nothing written
    POST   /api/leaves/{id}/approve       Approve and reallocate
    POST   /api/leaves/{id}/reject        Reject
    POST   /api/leaves/{id}/reallocate    Retry reallocation of an approved leave

  Directory & admin:
    POST   /api/properties                Register property location
    GET    /api/properties/{id}           Resolve property
    POST   /api/admin/estimates           Load travel estimates for a postal code
    GET    /api/admin/consistency         Last invariant sweep
    POST   /api/admin/consistency         Run an invariant sweep now
    GET    /api/events                    Notifications emitted so far

ARCHITECTURE:
  Handler owns the wired domain services:
  - Shifts / Attendance: the single writer for shift records
  - Payroll: read-only aggregation over Shifts.View
  - Leaves: approval workflow, which drives Planner on approval
  - Estimator: in-process travel table fed by seeds, scenarios and admin
  - Events: every notification, also forwarded to the configured sink

SESSIONS:
  Every /api route except the scenario listings runs behind
  sessionMiddleware, which builds a roster.Session from X-Actor-ID and
  X-Actor-Role. Authorization decisions are made by the domain packages,
  except scenario load and reset, which are gated by requireManager.

ERROR HANDLING:
  Domain errors map to HTTP status via statusFor:
  - 400: ErrValidation (checked first, so booking overlaps land here)
  - 403: ErrForbidden
  - 404: ErrNotFound
  - 409: ErrInvalidStateTransition, ErrWorkerConflict, ErrAlreadyDecided
  - 504: ErrExternalTimeout
  - 500: anything else (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
  - scheduler.go: Periodic consistency sweep
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/leave"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/payroll"
	"github.com/warp/shift-engine/realloc"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/shifts"
	"github.com/warp/shift-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config tunes the services NewHandler wires. Zero values pick defaults.
type Config struct {
	Rates               payroll.Rates
	EstimatorTimeout    time.Duration
	EstimatorRatePerSec float64
	DirectoryCacheTTL   time.Duration

	// Sink receives every event in addition to the in-memory recorder.
	Sink notify.Sink
	Log  logrus.FieldLogger
	Now  func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Shifts     *shifts.Store
	Attendance *shifts.Tracker
	Payroll    *payroll.Aggregator
	Leaves     *leave.Workflow
	Planner    *realloc.Planner
	Estimator  *realloc.StaticEstimator
	Directory  *directory.Cached
	Events     *notify.Recorder

	log      logrus.FieldLogger
	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
	consistency     ConsistencyDTO
}

// NewHandler wires the domain services on top of the given store.
func NewHandler(store *sqlite.Store, cfg Config) *Handler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rates.Base.IsZero() && cfg.Rates.WeeklyLimit.IsZero() {
		cfg.Rates = payroll.DefaultRates()
	}
	if cfg.DirectoryCacheTTL <= 0 {
		cfg.DirectoryCacheTTL = 10 * time.Minute
	}

	events := &notify.Recorder{}
	var sink notify.Sink = events
	if cfg.Sink != nil {
		sink = notify.Fanout{events, cfg.Sink}
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Log)

	shiftStore := shifts.NewStore(store, shifts.WithLogger(cfg.Log), shifts.WithClock(cfg.Now))
	estimator := realloc.NewStaticEstimator()
	dir := directory.NewCached(store, cfg.DirectoryCacheTTL)

	planner := realloc.NewPlanner(shiftStore, store, dir,
		realloc.RateLimited(estimator, cfg.EstimatorRatePerSec, int(cfg.EstimatorRatePerSec)),
		realloc.WithLogger(cfg.Log),
		realloc.WithNotifier(dispatcher),
		realloc.WithEstimatorTimeout(cfg.EstimatorTimeout),
	)

	return &Handler{
		Store:      store,
		Shifts:     shiftStore,
		Attendance: shifts.NewTracker(shiftStore),
		Payroll:    payroll.NewAggregator(shiftStore, cfg.Rates, cfg.Log),
		Leaves: leave.NewWorkflow(store, planner,
			leave.WithLogger(cfg.Log),
			leave.WithNotifier(dispatcher),
			leave.WithClock(cfg.Now),
		),
		Planner:   planner,
		Estimator: estimator,
		Directory: dir,
		Events:    events,
		log:       cfg.Log,
		validate:  validator.New(),
	}
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// CreateShift books a new UPCOMING shift. Managers only.
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("create shift"); err != nil {
		h.fail(w, r, "Cannot create shift", err)
		return
	}

	var req CreateShiftRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	date, start, end, err := parseSlot(req.Date, req.Start, req.End)
	if err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}

	shift, err := h.Shifts.Create(r.Context(), shifts.NewShift{
		PropertyRef: roster.PropertyID(req.PropertyRef),
		ClientRef:   roster.ClientID(req.ClientRef),
		Date:        date,
		Start:       start,
		End:         end,
		Workers:     workerIDs(req.Workers),
	})
	if err != nil {
		h.fail(w, r, "Failed to create shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(shift))
}

// ListShifts returns every shift in a date range. Managers only.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("list shifts"); err != nil {
		h.fail(w, r, "Cannot list shifts", err)
		return
	}
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	list, err := h.Shifts.ListByDateRange(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to list shifts", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTOs(list))
}

// GetShift returns one shift to a manager or to a worker assigned to it.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	shift, err := h.Shifts.Get(r.Context(), roster.ShiftID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get shift", err)
		return
	}
	if !sess.CanManage() && !shift.IsAssigned(sess.ActorID) {
		h.fail(w, r, "Cannot view shift", &roster.ForbiddenError{ActorID: sess.ActorID, Action: "view shift " + string(shift.ID)})
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// RescheduleShift moves an UPCOMING shift. Managers only.
func (h *Handler) RescheduleShift(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("reschedule shift"); err != nil {
		h.fail(w, r, "Cannot reschedule shift", err)
		return
	}

	var req RescheduleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	date, start, end, err := parseSlot(req.Date, req.Start, req.End)
	if err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}

	shift, err := h.Shifts.Reschedule(r.Context(), roster.ShiftID(chi.URLParam(r, "id")), shifts.Reschedule{
		Date:    date,
		Start:   start,
		End:     end,
		Workers: workerIDs(req.Workers),
	})
	if err != nil {
		h.fail(w, r, "Failed to reschedule shift", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// CancelShift cancels an UPCOMING or IN_PROGRESS shift. Managers only.
func (h *Handler) CancelShift(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("cancel shift"); err != nil {
		h.fail(w, r, "Cannot cancel shift", err)
		return
	}
	shift, err := h.Shifts.Cancel(r.Context(), roster.ShiftID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to cancel shift", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// RecordAttendance marks workers present, or absent with {"absent": true}.
// A worker may check themselves in; anything else needs a manager.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req AttendanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	workers := workerIDs(req.Workers)
	self := len(workers) == 1 && workers[0] == sess.ActorID
	if !self {
		if err := sess.RequireManager("record attendance for others"); err != nil {
			h.fail(w, r, "Cannot record attendance", err)
			return
		}
	}

	id := roster.ShiftID(chi.URLParam(r, "id"))
	var shift *roster.Shift
	var err error
	if req.Absent {
		shift, err = h.Attendance.MarkAbsent(r.Context(), id, workers)
	} else {
		shift, err = h.Attendance.MarkPresent(r.Context(), id, workers)
	}
	if err != nil {
		h.fail(w, r, "Failed to record attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// CompleteShift closes an IN_PROGRESS shift. Managers only.
func (h *Handler) CompleteShift(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("complete shift"); err != nil {
		h.fail(w, r, "Cannot complete shift", err)
		return
	}
	shift, err := h.Attendance.MarkCompleted(r.Context(), roster.ShiftID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to complete shift", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// ListWorkerShifts returns a worker's shifts in a period.
func (h *Handler) ListWorkerShifts(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	worker := roster.WorkerID(chi.URLParam(r, "id"))
	if !sess.CanView(worker) {
		h.fail(w, r, "Cannot list shifts", &roster.ForbiddenError{ActorID: sess.ActorID, Action: "list shifts of " + string(worker)})
		return
	}
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	list, err := h.Shifts.ListByWorker(r.Context(), worker, period)
	if err != nil {
		h.fail(w, r, "Failed to list shifts", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTOs(list))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GetPayroll aggregates pay. Workers only ever see their own record.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	var workers []roster.WorkerID
	for _, part := range strings.Split(r.URL.Query().Get("workers"), ",") {
		if p := strings.TrimSpace(part); p != "" {
			workers = append(workers, roster.WorkerID(p))
		}
	}

	report, err := h.Payroll.Aggregate(r.Context(), sessionFrom(r), payroll.Request{Workers: workers, Period: period})
	if err != nil {
		h.fail(w, r, "Failed to aggregate payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(report))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave records a PENDING medical leave.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}

	l, err := h.Leaves.Submit(r.Context(), sessionFrom(r), leave.SubmitRequest{
		WorkerRef:      roster.WorkerID(req.WorkerID),
		StartDate:      start,
		EndDate:        end,
		CertificateRef: req.CertificateRef,
		Reason:         req.Reason,
	})
	if err != nil {
		h.fail(w, r, "Failed to submit leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(l))
}

// ListPendingLeaves returns the approval queue, oldest first.
func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	list, err := h.Leaves.ListPending(r.Context(), sessionFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to list pending leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(list))
}

// GetLeave returns one leave.
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	l, err := h.Leaves.Get(r.Context(), sessionFrom(r), roster.LeaveID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

// ListWorkerLeaves returns a worker's leaves overlapping a period.
func (h *Handler) ListWorkerLeaves(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	list, err := h.Leaves.ListByWorker(r.Context(), sessionFrom(r), roster.WorkerID(chi.URLParam(r, "id")), period)
	if err != nil {
		h.fail(w, r, "Failed to list leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(list))
}

// PreviewLeave ranks replacements for the leave's shifts without writing.
func (h *Handler) PreviewLeave(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("preview reallocation"); err != nil {
		h.fail(w, r, "Cannot preview reallocation", err)
		return
	}
	l, err := h.Leaves.Get(r.Context(), sess, roster.LeaveID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get leave", err)
		return
	}
	plan, err := h.Planner.Propose(r.Context(), l)
	if err != nil {
		h.fail(w, r, "Failed to preview reallocation", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// ApproveLeave approves and reallocates. When reallocation fails the approval
// still stands; the response carries the leave and a warning.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	decision, err := h.Leaves.Approve(r.Context(), sessionFrom(r), roster.LeaveID(chi.URLParam(r, "id")))
	if err != nil && decision == nil {
		h.fail(w, r, "Failed to approve leave", err)
		return
	}
	dto := DecisionDTO{Leave: toLeaveDTO(decision.Leave), Plan: toPlanDTO(decision.Plan)}
	if err != nil {
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// RejectLeave rejects a PENDING leave with an optional reason.
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req RejectLeaveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	l, err := h.Leaves.Reject(r.Context(), sessionFrom(r), roster.LeaveID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.fail(w, r, "Failed to reject leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

// ReallocateLeave retries reallocation for an APPROVED leave.
func (h *Handler) ReallocateLeave(w http.ResponseWriter, r *http.Request) {
	decision, err := h.Leaves.Reallocate(r.Context(), sessionFrom(r), roster.LeaveID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to reallocate leave", err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionDTO{Leave: toLeaveDTO(decision.Leave), Plan: toPlanDTO(decision.Plan)})
}

// =============================================================================
// DIRECTORY & ADMIN HANDLERS
// =============================================================================

// SaveProperty registers or moves a property. Managers only.
func (h *Handler) SaveProperty(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("save property"); err != nil {
		h.fail(w, r, "Cannot save property", err)
		return
	}
	var req PropertyRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	p := directory.Property{ID: roster.PropertyID(req.ID), PostalCode: req.PostalCode, Address: req.Address}
	if err := h.Store.SaveProperty(r.Context(), p); err != nil {
		h.fail(w, r, "Failed to save property", err)
		return
	}
	h.Directory.Invalidate(p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// GetProperty resolves a property through the directory cache.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Directory.ResolveProperty(r.Context(), roster.PropertyID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get property", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SetEstimates replaces the candidates the built-in estimator serves for a
// postal code. Managers only.
func (h *Handler) SetEstimates(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("set travel estimates"); err != nil {
		h.fail(w, r, "Cannot set estimates", err)
		return
	}
	var req EstimatesRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request", err)
		return
	}
	estimates := toEstimates(req.Estimates)
	h.Estimator.Set(req.PostalCode, estimates...)
	writeJSON(w, http.StatusOK, map[string]any{"postal_code": req.PostalCode, "estimates": len(estimates)})
}

// GetConsistency returns the last invariant sweep. Managers only.
func (h *Handler) GetConsistency(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("read consistency report"); err != nil {
		h.fail(w, r, "Cannot read consistency report", err)
		return
	}
	h.mu.Lock()
	dto := h.consistency
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, dto)
}

// RunConsistency sweeps the default window now. Managers only.
func (h *Handler) RunConsistency(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("run consistency check"); err != nil {
		h.fail(w, r, "Cannot run consistency check", err)
		return
	}
	writeJSON(w, http.StatusOK, h.CheckConsistency(r.Context(), DefaultConsistencyWindow))
}

// CheckConsistency verifies the shift invariants for today ± window days and
// keeps the result for GetConsistency.
func (h *Handler) CheckConsistency(ctx context.Context, window int) ConsistencyDTO {
	today := h.Shifts.Today()
	period := calendar.NewPeriod(today.AddDate(0, 0, -window), today.AddDate(0, 0, window))
	dto := ConsistencyDTO{
		CheckedAt: formatInstant(time.Now()),
		Period:    period.String(),
		OK:        true,
	}
	if err := h.Shifts.CheckInvariants(ctx, period); err != nil {
		dto.OK = false
		dto.Error = err.Error()
	}
	h.mu.Lock()
	h.consistency = dto
	h.mu.Unlock()
	return dto
}

// ListEvents returns every notification emitted since the last reset.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RequireManager("list events"); err != nil {
		h.fail(w, r, "Cannot list events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEvents(h.Events.Events()))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Events.Reset()
	h.Estimator.Reset()
	h.Directory.Flush()

	h.mu.Lock()
	h.currentScenario = ""
	h.consistency = ConsistencyDTO{}
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a domain error to its status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, roster.ErrInvalidStateTransition),
		errors.Is(err, roster.ErrWorkerConflict),
		errors.Is(err, roster.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, roster.ErrExternalTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body and runs the struct's validate tags. An empty body
// decodes as the zero value so optional bodies need no special casing.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &roster.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := h.validate.Struct(dst); err != nil {
		return &roster.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, &roster.ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}

func parseSlot(date, start, end string) (time.Time, calendar.Clock, calendar.Clock, error) {
	d, err := parseDate("date", date)
	if err != nil {
		return time.Time{}, 0, 0, err
	}
	s, err := calendar.ParseClock(start)
	if err != nil {
		return time.Time{}, 0, 0, &roster.ValidationError{Field: "start", Message: err.Error()}
	}
	e, err := calendar.ParseClock(end)
	if err != nil {
		return time.Time{}, 0, 0, &roster.ValidationError{Field: "end", Message: err.Error()}
	}
	return d, s, e, nil
}

// periodParam reads ?period= (a bucket key or "from..to") or ?from=&to=.
func periodParam(r *http.Request) (calendar.Period, error) {
	q := r.URL.Query()
	if p := q.Get("period"); p != "" {
		period, err := calendar.ParsePeriod(p)
		if err != nil {
			return calendar.Period{}, &roster.ValidationError{Field: "period", Message: err.Error()}
		}
		return period, nil
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		return calendar.Period{}, &roster.ValidationError{Field: "period", Message: "period or from and to are required"}
	}
	start, err := parseDate("from", from)
	if err != nil {
		return calendar.Period{}, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return calendar.Period{}, err
	}
	period := calendar.NewPeriod(start, end)
	if !period.Valid() {
		return calendar.Period{}, &roster.ValidationError{Field: "to", Message: fmt.Sprintf("%s is before %s", to, from)}
	}
	return period, nil
}
