package realloc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/roster"
	"golang.org/x/time/rate"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Query asks for workers able to reach a property for a time window.
type Query struct {
	PostalCode string
	Date       time.Time
	Start      calendar.Clock
	End        calendar.Clock
}

// Estimate is one candidate as ranked by the travel service.
type Estimate struct {
	WorkerID         roster.WorkerID `json:"worker_id"`
	TotalTravelTime  time.Duration   `json:"total_travel_time"`
	TrafficComponent time.Duration   `json:"traffic_component"`
	OriginLocation   string          `json:"origin_location,omitempty"`
}

// TravelEstimator is the external availability / travel-time service.
// Results need not be sorted or filtered; the planner does both.
type TravelEstimator interface {
	RankCandidates(ctx context.Context, q Query) ([]Estimate, error)
}

// EstimatorFunc adapts a function to TravelEstimator.
type EstimatorFunc func(ctx context.Context, q Query) ([]Estimate, error)

func (f EstimatorFunc) RankCandidates(ctx context.Context, q Query) ([]Estimate, error) {
	return f(ctx, q)
}

// =============================================================================
// STATIC ESTIMATOR
// =============================================================================

// StaticEstimator answers from a fixed table keyed by postal code. Default is
// used for postal codes with no entry. Delay simulates a slow service and
// honours context cancellation.
type StaticEstimator struct {
	mu           sync.RWMutex
	byPostalCode map[string][]Estimate
	Default      []Estimate
	Delay        time.Duration
	Err          error
}

func NewStaticEstimator(def ...Estimate) *StaticEstimator {
	return &StaticEstimator{byPostalCode: make(map[string][]Estimate), Default: def}
}

// Set replaces the candidates returned for a postal code.
func (s *StaticEstimator) Set(postalCode string, estimates ...Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPostalCode[postalCode] = estimates
}

// Reset forgets every per-postal-code entry. Default is kept.
func (s *StaticEstimator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPostalCode = make(map[string][]Estimate)
}

func (s *StaticEstimator) RankCandidates(ctx context.Context, q Query) ([]Estimate, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.byPostalCode[q.PostalCode]
	if !ok {
		list = s.Default
	}
	out := make([]Estimate, len(list))
	copy(out, list)
	return out, nil
}

// =============================================================================
// WRAPPERS
// =============================================================================

// WithTimeout bounds every call. A call that runs out of time fails with a
// *roster.TimeoutError, and whatever the estimator returns afterwards is
// discarded, even when it ignores ctx.
func WithTimeout(next TravelEstimator, after time.Duration) TravelEstimator {
	if after <= 0 {
		return next
	}
	type answer struct {
		estimates []Estimate
		err       error
	}
	return EstimatorFunc(func(ctx context.Context, q Query) ([]Estimate, error) {
		ctx, cancel := context.WithTimeout(ctx, after)
		defer cancel()

		// Buffered so a late answer never blocks the goroutine.
		done := make(chan answer, 1)
		go func() {
			out, err := next.RankCandidates(ctx, q)
			done <- answer{estimates: out, err: err}
		}()

		select {
		case a := <-done:
			if ctx.Err() != nil || (a.err != nil && errors.Is(a.err, context.DeadlineExceeded)) {
				return nil, expired(ctx, after)
			}
			return a.estimates, a.err
		case <-ctx.Done():
			return nil, expired(ctx, after)
		}
	})
}

// expired reports why ctx ended: our deadline becomes a TimeoutError, a
// caller cancellation is passed through.
func expired(ctx context.Context, after time.Duration) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return &roster.TimeoutError{Service: "travel estimator", After: after}
}

// RateLimited spaces calls to at most perSecond per second with the given
// burst. Waiting respects the caller's context.
func RateLimited(next TravelEstimator, perSecond float64, burst int) TravelEstimator {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return EstimatorFunc(func(ctx context.Context, q Query) ([]Estimate, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("travel estimator rate limit: %w", err)
		}
		return next.RankCandidates(ctx, q)
	})
}

// sortEstimates orders by travel time, then worker id.
func sortEstimates(list []Estimate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].TotalTravelTime != list[j].TotalTravelTime {
			return list[i].TotalTravelTime < list[j].TotalTravelTime
		}
		return list[i].WorkerID < list[j].WorkerID
	})
}
