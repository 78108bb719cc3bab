/*
scheduler.go - Periodic shift consistency sweep

PURPOSE:
  Every CheckInterval, verifies the booking invariants (no worker on two
  overlapping live shifts, structural shift validity) over a window of days
  around today, and records the outcome for GET /api/admin/consistency.

DESIGN:
  - Runs a background goroutine with a ticker
  - Checks once immediately on Start
  - Never mutates data; violations are logged at error level

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - Window:        Days before and after today (default: 31)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewConsistencyScheduler(handler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CheckConsistency, shared with the admin endpoint
  - shifts/store.go: CheckInvariants
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultConsistencyWindow is the default number of days checked on each
// side of today.
const DefaultConsistencyWindow = 31

// ConsistencyScheduler runs CheckConsistency on a timer.
type ConsistencyScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Window        int
	Enabled       bool

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewConsistencyScheduler creates a new scheduler.
func NewConsistencyScheduler(handler *Handler, log logrus.FieldLogger) *ConsistencyScheduler {
	return &ConsistencyScheduler{
		Handler:       handler,
		CheckInterval: 15 * time.Minute,
		Window:        DefaultConsistencyWindow,
		Enabled:       true,
		log:           log.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (cs *ConsistencyScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.log.Info("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker, cs.stop)

	cs.log.WithField("interval", cs.CheckInterval).Info("started")
}

// Stop stops the scheduler and waits for an in-flight check.
func (cs *ConsistencyScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.log.Info("stopped")
	}
}

func (cs *ConsistencyScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	cs.RunNow()
	for {
		select {
		case <-ticker.C:
			cs.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (cs *ConsistencyScheduler) RunNow() ConsistencyDTO {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result := cs.Handler.CheckConsistency(ctx, cs.Window)
	log := cs.log.WithField("period", result.Period)
	if !result.OK {
		log.WithField("error", result.Error).Error("shift invariants violated")
	} else {
		log.Debug("shift invariants hold")
	}
	return result
}
