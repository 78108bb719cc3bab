/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract: dates travel as
  "YYYY-MM-DD", times of day as "HH:MM", money and hours as decimal strings,
  travel times as whole minutes.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Shifts:     ShiftDTO, CreateShiftRequest, RescheduleRequest, AttendanceRequest
  Payroll:    PayrollReportDTO, PayrollRecordDTO
  Leaves:     LeaveDTO, SubmitLeaveRequest, RejectLeaveRequest, DecisionDTO
  Plans:      PlanDTO, CandidateDTO
  Directory:  PropertyRequest, EstimatesRequest
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run
  h.validate.Struct before touching the domain; domain validation still
  applies afterwards (e.g. start < end).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/payroll"
	"github.com/warp/shift-engine/realloc"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// SHIFTS
// =============================================================================

// ShiftDTO represents a shift in API responses.
type ShiftDTO struct {
	ID              string   `json:"id"`
	PropertyRef     string   `json:"property_ref"`
	ClientRef       string   `json:"client_ref,omitempty"`
	Date            string   `json:"date"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	AssignedWorkers []string `json:"assigned_workers"`
	PresentWorkers  []string `json:"present_workers"`
	Status          string   `json:"status"`
	Rescheduled     bool     `json:"rescheduled"`
	OriginalDate    *string  `json:"original_date,omitempty"`
	OriginalStart   *string  `json:"original_start,omitempty"`
	OriginalEnd     *string  `json:"original_end,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// CreateShiftRequest is the request to book a shift.
type CreateShiftRequest struct {
	PropertyRef string   `json:"property_ref" validate:"required"`
	ClientRef   string   `json:"client_ref"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Start       string   `json:"start" validate:"required"`
	End         string   `json:"end" validate:"required"`
	Workers     []string `json:"workers" validate:"required,min=1,dive,required"`
}

// RescheduleRequest moves a shift. Omitted workers keep the current set.
type RescheduleRequest struct {
	Date    string   `json:"date" validate:"required,datetime=2006-01-02"`
	Start   string   `json:"start" validate:"required"`
	End     string   `json:"end" validate:"required"`
	Workers []string `json:"workers,omitempty" validate:"omitempty,min=1,dive,required"`
}

// AttendanceRequest marks workers present, or absent when Absent is set.
type AttendanceRequest struct {
	Workers []string `json:"workers" validate:"required,min=1,dive,required"`
	Absent  bool     `json:"absent,omitempty"`
}

// =============================================================================
// PAYROLL
// =============================================================================

// PayrollRecordDTO is one worker's pay for the period.
type PayrollRecordDTO struct {
	WorkerID           string                     `json:"worker_id"`
	RegularHours       decimal.Decimal            `json:"regular_hours"`
	OvertimeHours      decimal.Decimal            `json:"overtime_hours"`
	RegularPay         decimal.Decimal            `json:"regular_pay"`
	OvertimePay        decimal.Decimal            `json:"overtime_pay"`
	TotalPay           decimal.Decimal            `json:"total_pay"`
	ContributingShifts []string                   `json:"contributing_shifts"`
	Weekly             map[string]decimal.Decimal `json:"weekly"`
	Monthly            map[string]decimal.Decimal `json:"monthly"`
	Annual             map[string]decimal.Decimal `json:"annual"`
}

// PayrollReportDTO wraps an aggregation run.
type PayrollReportDTO struct {
	PeriodStart  string             `json:"period_start"`
	PeriodEnd    string             `json:"period_end"`
	BaseRate     decimal.Decimal    `json:"base_rate"`
	OvertimeRate decimal.Decimal    `json:"overtime_rate"`
	WeeklyLimit  decimal.Decimal    `json:"weekly_limit"`
	Records      []PayrollRecordDTO `json:"records"`
	TotalPay     decimal.Decimal    `json:"total_pay"`
}

// =============================================================================
// LEAVES & PLANS
// =============================================================================

// LeaveDTO represents a medical leave in API responses.
type LeaveDTO struct {
	ID              string  `json:"id"`
	WorkerID        string  `json:"worker_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	CertificateRef  string  `json:"certificate_ref,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	State           string  `json:"state"`
	DecidedBy       *string `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// SubmitLeaveRequest declares a medical leave. WorkerID defaults to the actor.
type SubmitLeaveRequest struct {
	WorkerID       string `json:"worker_id"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"end_date" validate:"required,datetime=2006-01-02"`
	CertificateRef string `json:"certificate_ref"`
	Reason         string `json:"reason" validate:"max=500"`
}

// RejectLeaveRequest carries the manager's reason.
type RejectLeaveRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CandidateDTO is a ranked replacement.
type CandidateDTO struct {
	WorkerID       string `json:"worker_id"`
	TravelMinutes  int    `json:"travel_minutes"`
	TrafficMinutes int    `json:"traffic_minutes"`
	Origin         string `json:"origin,omitempty"`
}

// PlanDTO is a reallocation plan.
type PlanDTO struct {
	LeaveID              string                    `json:"leave_id"`
	WorkerID             string                    `json:"worker_id"`
	AffectedShifts       []string                  `json:"affected_shifts"`
	PerShiftCandidates   map[string][]CandidateDTO `json:"per_shift_candidates"`
	AppliedReassignments []realloc.Reassignment    `json:"applied_reassignments"`
	Unresolved           []realloc.UnresolvedShift `json:"unresolved"`
}

// DecisionDTO is the approval response.
// Warning is set when the approval stood but reallocation failed.
type DecisionDTO struct {
	Leave   LeaveDTO `json:"leave"`
	Plan    *PlanDTO `json:"plan,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// =============================================================================
// DIRECTORY & ESTIMATES
// =============================================================================

// PropertyRequest registers a property location.
type PropertyRequest struct {
	ID         string `json:"id" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Address    string `json:"address"`
}

// EstimateRequest is one candidate row for the built-in estimator table.
type EstimateRequest struct {
	WorkerID       string `json:"worker_id" validate:"required"`
	TravelMinutes  int    `json:"travel_minutes" validate:"gte=0"`
	TrafficMinutes int    `json:"traffic_minutes" validate:"gte=0"`
	Origin         string `json:"origin"`
}

// EstimatesRequest replaces the candidates served for a postal code.
type EstimatesRequest struct {
	PostalCode string            `json:"postal_code" validate:"required"`
	Estimates  []EstimateRequest `json:"estimates" validate:"dive"`
}

// =============================================================================
// SCENARIOS & MISC
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ConsistencyDTO reports the last invariant sweep.
type ConsistencyDTO struct {
	CheckedAt string `json:"checked_at,omitempty"`
	Period    string `json:"period,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toShiftDTO(s *roster.Shift) ShiftDTO {
	dto := ShiftDTO{
		ID:              string(s.ID),
		PropertyRef:     string(s.PropertyRef),
		ClientRef:       string(s.ClientRef),
		Date:            calendar.FormatDate(s.Date),
		Start:           s.Start.String(),
		End:             s.End.String(),
		AssignedWorkers: workerStrings(s.AssignedWorkers),
		PresentWorkers:  workerStrings(s.PresentWorkers),
		Status:          string(s.Status),
		Rescheduled:     s.Rescheduled,
		CreatedAt:       formatInstant(s.CreatedAt),
		UpdatedAt:       formatInstant(s.UpdatedAt),
	}
	if s.OriginalDate != nil {
		d := calendar.FormatDate(*s.OriginalDate)
		dto.OriginalDate = &d
	}
	if s.OriginalStart != nil {
		c := s.OriginalStart.String()
		dto.OriginalStart = &c
	}
	if s.OriginalEnd != nil {
		c := s.OriginalEnd.String()
		dto.OriginalEnd = &c
	}
	return dto
}

func toShiftDTOs(list []roster.Shift) []ShiftDTO {
	out := make([]ShiftDTO, len(list))
	for i := range list {
		out[i] = toShiftDTO(&list[i])
	}
	return out
}

func toLeaveDTO(l *roster.MedicalLeave) LeaveDTO {
	dto := LeaveDTO{
		ID:              string(l.ID),
		WorkerID:        string(l.WorkerRef),
		StartDate:       calendar.FormatDate(l.StartDate),
		EndDate:         calendar.FormatDate(l.EndDate),
		CertificateRef:  l.CertificateRef,
		Reason:          l.Reason,
		State:           string(l.State),
		RejectionReason: l.RejectionReason,
		CreatedAt:       formatInstant(l.CreatedAt),
	}
	if l.DecidedBy != nil {
		s := string(*l.DecidedBy)
		dto.DecidedBy = &s
	}
	if l.DecidedAt != nil {
		s := formatInstant(*l.DecidedAt)
		dto.DecidedAt = &s
	}
	return dto
}

func toLeaveDTOs(list []roster.MedicalLeave) []LeaveDTO {
	out := make([]LeaveDTO, len(list))
	for i := range list {
		out[i] = toLeaveDTO(&list[i])
	}
	return out
}

func toPlanDTO(p *realloc.Plan) *PlanDTO {
	if p == nil {
		return nil
	}
	dto := &PlanDTO{
		LeaveID:              string(p.LeaveRef),
		WorkerID:             string(p.WorkerRef),
		AffectedShifts:       make([]string, len(p.AffectedShifts)),
		PerShiftCandidates:   make(map[string][]CandidateDTO, len(p.PerShiftCandidates)),
		AppliedReassignments: p.AppliedReassignments,
		Unresolved:           p.Unresolved,
	}
	for i, id := range p.AffectedShifts {
		dto.AffectedShifts[i] = string(id)
	}
	for id, list := range p.PerShiftCandidates {
		cands := make([]CandidateDTO, len(list))
		for i, c := range list {
			cands[i] = CandidateDTO{
				WorkerID:       string(c.WorkerID),
				TravelMinutes:  int(c.TotalTravelTime / time.Minute),
				TrafficMinutes: int(c.TrafficComponent / time.Minute),
				Origin:         c.OriginLocation,
			}
		}
		dto.PerShiftCandidates[string(id)] = cands
	}
	return dto
}

func toPayrollDTO(r *payroll.Report) PayrollReportDTO {
	dto := PayrollReportDTO{
		PeriodStart:  calendar.FormatDate(r.Period.Start),
		PeriodEnd:    calendar.FormatDate(r.Period.End),
		BaseRate:     r.Rates.Base,
		OvertimeRate: r.Rates.Overtime,
		WeeklyLimit:  r.Rates.WeeklyLimit,
		Records:      make([]PayrollRecordDTO, len(r.Records)),
		TotalPay:     r.Totals.TotalPay,
	}
	for i, rec := range r.Records {
		shiftIDs := make([]string, len(rec.ContributingShifts))
		for j, id := range rec.ContributingShifts {
			shiftIDs[j] = string(id)
		}
		dto.Records[i] = PayrollRecordDTO{
			WorkerID:           string(rec.WorkerID),
			RegularHours:       rec.RegularHours,
			OvertimeHours:      rec.OvertimeHours,
			RegularPay:         rec.RegularPay,
			OvertimePay:        rec.OvertimePay,
			TotalPay:           rec.TotalPay,
			ContributingShifts: shiftIDs,
			Weekly:             rec.Weekly,
			Monthly:            rec.Monthly,
			Annual:             rec.Annual,
		}
	}
	return dto
}

func toEstimates(list []EstimateRequest) []realloc.Estimate {
	out := make([]realloc.Estimate, len(list))
	for i, e := range list {
		out[i] = realloc.Estimate{
			WorkerID:         roster.WorkerID(e.WorkerID),
			TotalTravelTime:  time.Duration(e.TravelMinutes) * time.Minute,
			TrafficComponent: time.Duration(e.TrafficMinutes) * time.Minute,
			OriginLocation:   e.Origin,
		}
	}
	return out
}

func toEvents(events []notify.Event) []notify.Event {
	if events == nil {
		return []notify.Event{}
	}
	return events
}

func workerStrings(list []roster.WorkerID) []string {
	out := make([]string, len(list))
	for i, w := range list {
		out[i] = string(w)
	}
	return out
}

func workerIDs(list []string) []roster.WorkerID {
	if list == nil {
		return nil
	}
	out := make([]roster.WorkerID, len(list))
	for i, w := range list {
		out[i] = roster.WorkerID(w)
	}
	return out
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
