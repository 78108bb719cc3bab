/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario registers properties, loads travel
	estimates, books shifts and files leaves relative to today, so the same
	scenario works on any date.

AVAILABLE SCENARIOS:

	leave-week:            A week of shifts, a pending leave, ranked replacements
	overtime-week:         Last week's completed shifts crossing the weekly ceiling
	contested-replacement: Two leaves competing for the same nearest candidate

HOW SCENARIOS WORK:
 1. Reset database, event log, estimator table and directory cache
 2. Register properties
 3. Load travel estimates per postal code
 4. Book shifts through the shift store (same validation as the API)
 5. Optionally record attendance or submit leaves

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "leave-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to loadScenario

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/leave"
	"github.com/warp/shift-engine/realloc"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/shifts"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "leave-week",
		Name:        "Leave Week",
		Description: "alice is booked Monday to Thursday next week and filed a pending leave; bob is nearest but busy on Tuesday",
		Category:    "leave",
	},
	{
		ID:          "overtime-week",
		Name:        "Overtime Week",
		Description: "erin worked five 10h shifts last week (44h regular, 6h overtime); frank had one shift cancelled",
		Category:    "payroll",
	},
	{
		ID:          "contested-replacement",
		Name:        "Contested Replacement",
		Description: "alice and bob are both on leave next Monday; carol is nearest to both sites, dave is the fallback",
		Category:    "leave",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "leave-week":
		load = h.loadLeaveWeekScenario
	case "overtime-week":
		load = h.loadOvertimeWeekScenario
	case "contested-replacement":
		load = h.loadContestedReplacementScenario
	default:
		return &roster.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}

	if err := h.reset(ctx); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadLeaveWeekScenario(ctx context.Context) error {
	monday := nextMonday(h.Shifts.Today())

	if err := h.saveProperties(ctx,
		directory.Property{ID: "canal-loft", PostalCode: "75010", Address: "12 quai de Valmy"},
		directory.Property{ID: "bastille-studio", PostalCode: "75011", Address: "4 rue de la Roquette"},
	); err != nil {
		return err
	}
	h.Estimator.Set("75010",
		estimate("bob", 12, 3, "75019"),
		estimate("carol", 25, 8, "75015"),
		estimate("dave", 41, 15, "92100"),
	)
	h.Estimator.Set("75011", estimate("carol", 15, 4, "75015"), estimate("dave", 30, 10, "92100"))

	alice := []roster.WorkerID{"alice"}
	for _, s := range []shifts.NewShift{
		slot("canal-loft", monday, 9, 13, alice...),
		slot("canal-loft", monday.AddDate(0, 0, 1), 9, 13, alice...),
		slot("canal-loft", monday.AddDate(0, 0, 2), 9, 13, alice...),
		slot("bastille-studio", monday.AddDate(0, 0, 3), 14, 18, alice...),
		slot("bastille-studio", monday.AddDate(0, 0, 1), 10, 14, "bob"),
	} {
		if _, err := h.Shifts.Create(ctx, s); err != nil {
			return err
		}
	}

	_, err := h.Leaves.Submit(ctx, roster.SystemSession(), leave.SubmitRequest{
		WorkerRef:      "alice",
		StartDate:      monday,
		EndDate:        monday.AddDate(0, 0, 3),
		CertificateRef: "cert-alice-001",
		Reason:         "sprained ankle",
	})
	return err
}

func (h *Handler) loadOvertimeWeekScenario(ctx context.Context) error {
	lastMonday := nextMonday(h.Shifts.Today()).AddDate(0, 0, -14)

	if err := h.saveProperties(ctx, directory.Property{ID: "canal-loft", PostalCode: "75010"}); err != nil {
		return err
	}

	for day := 0; day < 5; day++ {
		if err := h.workedShift(ctx, slot("canal-loft", lastMonday.AddDate(0, 0, day), 8, 18, "erin")); err != nil {
			return err
		}
	}
	for day := 0; day < 2; day++ {
		if err := h.workedShift(ctx, slot("canal-loft", lastMonday.AddDate(0, 0, day), 19, 23, "frank")); err != nil {
			return err
		}
	}
	cancelled, err := h.Shifts.Create(ctx, slot("canal-loft", lastMonday.AddDate(0, 0, 2), 19, 23, "frank"))
	if err != nil {
		return err
	}
	_, err = h.Shifts.Cancel(ctx, cancelled.ID)
	return err
}

func (h *Handler) loadContestedReplacementScenario(ctx context.Context) error {
	monday := nextMonday(h.Shifts.Today())

	if err := h.saveProperties(ctx,
		directory.Property{ID: "canal-loft", PostalCode: "75010"},
		directory.Property{ID: "gare-est-flat", PostalCode: "75010"},
	); err != nil {
		return err
	}
	h.Estimator.Set("75010", estimate("carol", 9, 2, "75010"), estimate("dave", 22, 6, "75018"))

	if _, err := h.Shifts.Create(ctx, slot("canal-loft", monday, 9, 12, "alice")); err != nil {
		return err
	}
	if _, err := h.Shifts.Create(ctx, slot("gare-est-flat", monday, 10, 13, "bob")); err != nil {
		return err
	}

	for _, w := range []roster.WorkerID{"alice", "bob"} {
		if _, err := h.Leaves.Submit(ctx, roster.SystemSession(), leave.SubmitRequest{
			WorkerRef: w,
			StartDate: monday,
			EndDate:   monday,
			Reason:    "flu",
		}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveProperties(ctx context.Context, props ...directory.Property) error {
	for _, p := range props {
		if err := h.Store.SaveProperty(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// workedShift books a past shift, checks its workers in and completes it.
func (h *Handler) workedShift(ctx context.Context, in shifts.NewShift) error {
	s, err := h.Shifts.Create(ctx, in)
	if err != nil {
		return err
	}
	if _, err := h.Attendance.MarkPresent(ctx, s.ID, in.Workers); err != nil {
		return err
	}
	_, err = h.Attendance.MarkCompleted(ctx, s.ID)
	return err
}

func slot(property roster.PropertyID, date time.Time, from, to int, workers ...roster.WorkerID) shifts.NewShift {
	return shifts.NewShift{
		PropertyRef: property,
		ClientRef:   "demo-client",
		Date:        date,
		Start:       calendar.NewClock(from, 0),
		End:         calendar.NewClock(to, 0),
		Workers:     workers,
	}
}

func estimate(worker roster.WorkerID, travel, traffic int, origin string) realloc.Estimate {
	return realloc.Estimate{
		WorkerID:         worker,
		TotalTravelTime:  time.Duration(travel) * time.Minute,
		TrafficComponent: time.Duration(traffic) * time.Minute,
		OriginLocation:   origin,
	}
}

// nextMonday is the first Monday strictly after today.
func nextMonday(today time.Time) time.Time {
	days := (8 - int(today.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}
