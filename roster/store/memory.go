// Package store provides in-memory repository implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	shifts map[roster.ShiftID]roster.Shift
	leaves map[roster.LeaveID]roster.MedicalLeave

	// Secondary index so worker lookups do not scan every shift.
	byWorker map[roster.WorkerID]map[roster.ShiftID]bool
}

var _ roster.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		shifts:   make(map[roster.ShiftID]roster.Shift),
		leaves:   make(map[roster.LeaveID]roster.MedicalLeave),
		byWorker: make(map[roster.WorkerID]map[roster.ShiftID]bool),
	}
}

// -----------------------------------------------------------------------------
// Shifts
// -----------------------------------------------------------------------------

func (m *Memory) InsertShift(_ context.Context, s roster.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.shifts[s.ID]; exists {
		return fmt.Errorf("shift %s already exists", s.ID)
	}
	m.putLocked(s)
	return nil
}

func (m *Memory) UpdateShift(_ context.Context, s roster.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.shifts[s.ID]
	if !exists {
		return &roster.NotFoundError{Kind: "shift", ID: string(s.ID)}
	}
	for _, w := range old.AssignedWorkers {
		delete(m.byWorker[w], s.ID)
	}
	m.putLocked(s)
	return nil
}

func (m *Memory) putLocked(s roster.Shift) {
	m.shifts[s.ID] = s.Clone()
	for _, w := range s.AssignedWorkers {
		if m.byWorker[w] == nil {
			m.byWorker[w] = make(map[roster.ShiftID]bool)
		}
		m.byWorker[w][s.ID] = true
	}
}

func (m *Memory) GetShift(_ context.Context, id roster.ShiftID) (*roster.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shifts[id]
	if !ok {
		return nil, &roster.NotFoundError{Kind: "shift", ID: string(id)}
	}
	c := s.Clone()
	return &c, nil
}

func (m *Memory) ShiftsByWorker(_ context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []roster.Shift
	for id := range m.byWorker[worker] {
		s := m.shifts[id]
		if period.Contains(s.Date) {
			result = append(result, s.Clone())
		}
	}
	roster.SortShifts(result)
	return result, nil
}

func (m *Memory) ShiftsByDate(_ context.Context, period calendar.Period) ([]roster.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []roster.Shift
	for _, s := range m.shifts {
		if period.Contains(s.Date) {
			result = append(result, s.Clone())
		}
	}
	roster.SortShifts(result)
	return result, nil
}

// -----------------------------------------------------------------------------
// Leaves
// -----------------------------------------------------------------------------

func (m *Memory) InsertLeave(_ context.Context, l roster.MedicalLeave) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.leaves[l.ID]; exists {
		return fmt.Errorf("leave %s already exists", l.ID)
	}
	m.leaves[l.ID] = l
	return nil
}

func (m *Memory) GetLeave(_ context.Context, id roster.LeaveID) (*roster.MedicalLeave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.leaves[id]
	if !ok {
		return nil, &roster.NotFoundError{Kind: "leave", ID: string(id)}
	}
	return &l, nil
}

// Decide is a compare-and-set on the approval state.
func (m *Memory) Decide(_ context.Context, id roster.LeaveID, state roster.ApprovalState, by roster.WorkerID, at time.Time, reason string) (*roster.MedicalLeave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leaves[id]
	if !ok {
		return nil, &roster.NotFoundError{Kind: "leave", ID: string(id)}
	}
	if l.State != roster.LeavePending {
		return nil, &roster.DecisionError{LeaveID: id, State: l.State}
	}
	l.State = state
	l.DecidedBy = &by
	l.DecidedAt = &at
	if state == roster.LeaveRejected {
		l.RejectionReason = reason
	}
	m.leaves[id] = l
	return &l, nil
}

func (m *Memory) LeavesByWorker(_ context.Context, worker roster.WorkerID, period calendar.Period, state roster.ApprovalState) ([]roster.MedicalLeave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []roster.MedicalLeave
	for _, l := range m.leaves {
		if l.WorkerRef != worker || (state != "" && l.State != state) {
			continue
		}
		if l.Period().Overlaps(period) {
			result = append(result, l)
		}
	}
	sortLeaves(result)
	return result, nil
}

func (m *Memory) LeavesByState(_ context.Context, state roster.ApprovalState) ([]roster.MedicalLeave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []roster.MedicalLeave
	for _, l := range m.leaves {
		if l.State == state {
			result = append(result, l)
		}
	}
	sortLeaves(result)
	return result, nil
}

func sortLeaves(ls []roster.MedicalLeave) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].ID < ls[j].ID
	})
}
