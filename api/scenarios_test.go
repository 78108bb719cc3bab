/*
scenarios_test.go - Tests for demo scenario loaders

Each scenario is loaded through the API and then driven the way a demo
would: approving leaves, reading payroll. The clock is fixed to a Wednesday
so "next Monday" is 2025-03-10 and last week is ISO week 2025-W09.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-engine/roster"
)

func (s *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, mgr, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) pendingLeaves(t *testing.T) []LeaveDTO {
	t.Helper()
	rec := s.do(t, mgr, http.MethodGet, "/api/leaves/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeAs[[]LeaveDTO](t, rec)
}

func reassignedTo(plan *PlanDTO) map[string]roster.WorkerID {
	out := make(map[string]roster.WorkerID)
	for _, r := range plan.AppliedReassignments {
		out[string(r.ShiftID)] = r.To
	}
	return out
}

func TestScenarios_ListAndCurrent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, actor{}, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), len(scenarios))

	rec = s.do(t, actor{}, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())

	s.loadScenario(t, "leave-week")
	rec = s.do(t, actor{}, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "leave-week", decodeAs[ScenarioDTO](t, rec).ID)

	rec = s.do(t, mgr, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, mgr, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.pendingLeaves(t))
	rec = s.do(t, actor{}, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenarios_LoadAndResetRequireManager(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario(t, "leave-week")

	// GIVEN: a loaded scenario
	// WHEN: anonymous callers and workers try to load or reset
	load := LoadScenarioRequest{ScenarioID: "overtime-week"}
	assert.Equal(t, http.StatusUnauthorized, s.do(t, actor{}, http.MethodPost, "/api/scenarios/reset", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, actor{}, http.MethodPost, "/api/scenarios/load", load).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, worker("alice"), http.MethodPost, "/api/scenarios/reset", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, worker("alice"), http.MethodPost, "/api/scenarios/load", load).Code)

	// THEN: nothing was wiped
	assert.Len(t, s.pendingLeaves(t), 1)
	rec := s.do(t, actor{}, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "leave-week", decodeAs[ScenarioDTO](t, rec).ID)
}

func TestScenario_LeaveWeek(t *testing.T) {
	// GIVEN: alice booked Monday to Thursday with a pending leave
	s := newTestServer(t)
	s.loadScenario(t, "leave-week")

	pending := s.pendingLeaves(t)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].WorkerID)
	assert.Equal(t, "2025-03-10", pending[0].StartDate)

	// WHEN: the manager approves
	rec := s.do(t, mgr, http.MethodPost, "/api/leaves/"+pending[0].ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decodeAs[DecisionDTO](t, rec)
	require.NotNil(t, decision.Plan)
	require.Len(t, decision.Plan.AffectedShifts, 4)
	assert.Empty(t, decision.Plan.Unresolved)

	// THEN: bob covers the days he is free, carol takes Tuesday and the
	// Bastille shift
	rec = s.do(t, worker("alice"), http.MethodGet, "/api/workers/alice/shifts?from=2025-03-10&to=2025-03-13", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]ShiftDTO](t, rec))

	byShift := reassignedTo(decision.Plan)
	want := []roster.WorkerID{"bob", "carol", "bob", "carol"}
	for i, id := range decision.Plan.AffectedShifts {
		assert.Equal(t, want[i], byShift[id], "day %d", i)
	}
}

func TestScenario_OvertimeWeek(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario(t, "overtime-week")

	rec := s.do(t, mgr, http.MethodGet, "/api/payroll?period=2025-W09", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeAs[PayrollReportDTO](t, rec)
	require.Len(t, report.Records, 2)

	erin, frank := report.Records[0], report.Records[1]
	assert.Equal(t, "erin", erin.WorkerID)
	decEqual(t, "44", erin.RegularHours, "erin regular")
	decEqual(t, "6", erin.OvertimeHours, "erin overtime")
	decEqual(t, "530", erin.TotalPay, "erin pay")
	assert.Len(t, erin.ContributingShifts, 5)

	assert.Equal(t, "frank", frank.WorkerID)
	decEqual(t, "8", frank.RegularHours, "frank regular")
	decEqual(t, "80", frank.TotalPay, "cancelled shift is unpaid")
	decEqual(t, "610", report.TotalPay, "total")
}

func TestScenario_ContestedReplacement(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario(t, "contested-replacement")

	pending := s.pendingLeaves(t)
	require.Len(t, pending, 2)

	var got []roster.WorkerID
	for _, l := range pending {
		rec := s.do(t, mgr, http.MethodPost, "/api/leaves/"+l.ID+"/approve", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		plan := decodeAs[DecisionDTO](t, rec).Plan
		require.NotNil(t, plan)
		require.Len(t, plan.AppliedReassignments, 1)
		got = append(got, plan.AppliedReassignments[0].To)
	}
	assert.Equal(t, []roster.WorkerID{"carol", "dave"}, got, "first approval takes carol, the second falls back")

	rec := s.do(t, mgr, http.MethodPost, "/api/admin/consistency", nil)
	assert.True(t, decodeAs[ConsistencyDTO](t, rec).OK)
}
