/*
Package notify publishes lifecycle events for downstream consumers.

PURPOSE:
  The reallocation planner and the leave workflow announce what they did
  (a worker was replaced, a shift could not be covered, a leave was decided).
  Delivery is fire-and-forget: a failing sink is logged and never rolls back
  the state change that produced the event. Slow sinks sit behind a Queue,
  so Emit only pays for enqueueing.

SINKS:
  LogSink    structured log line per event (always wired)
  KafkaSink  JSON message on a topic, keyed by shift or leave id
  Fanout     delivers to several sinks, collecting every error
  Queue      buffers batches for a worker goroutine with a per-delivery timeout

SEE ALSO:
  - realloc/planner.go: shift_reassigned / shift_unresolved
  - leave/workflow.go: leave_approved / leave_rejected
*/
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/roster"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	ShiftReassigned EventType = "shift_reassigned"
	ShiftUnresolved EventType = "shift_unresolved"
	LeaveApproved   EventType = "leave_approved"
	LeaveRejected   EventType = "leave_rejected"
)

// Event is one notification. Unused references stay empty.
type Event struct {
	Type          EventType       `json:"type"`
	ShiftID       roster.ShiftID  `json:"shift_id,omitempty"`
	LeaveID       roster.LeaveID  `json:"leave_id,omitempty"`
	WorkerID      roster.WorkerID `json:"worker_id,omitempty"`
	ReplacementID roster.WorkerID `json:"replacement_id,omitempty"`
	At            time.Time       `json:"at"`
	Detail        string          `json:"detail,omitempty"`
}

// Key is the partitioning key: the shift when there is one, else the leave.
func (e Event) Key() string {
	if e.ShiftID != "" {
		return string(e.ShiftID)
	}
	return string(e.LeaveID)
}

func (e Event) fields() logrus.Fields {
	f := logrus.Fields{"event": e.Type}
	if e.ShiftID != "" {
		f["shift_id"] = e.ShiftID
	}
	if e.LeaveID != "" {
		f["leave_id"] = e.LeaveID
	}
	if e.WorkerID != "" {
		f["worker_id"] = e.WorkerID
	}
	if e.ReplacementID != "" {
		f["replacement_id"] = e.ReplacementID
	}
	if e.Detail != "" {
		f["detail"] = e.Detail
	}
	return f
}

// Sink delivers events somewhere.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher stamps events and hands them to a sink, swallowing failures.
type Dispatcher struct {
	sink Sink
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewDispatcher(sink Sink, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{sink: sink, log: log, now: time.Now}
}

// Emit publishes events. Errors are logged, never returned.
func (d *Dispatcher) Emit(ctx context.Context, events ...Event) {
	if d == nil || d.sink == nil || len(events) == 0 {
		return
	}
	for i := range events {
		if events[i].At.IsZero() {
			events[i].At = d.now().UTC()
		}
	}
	if err := d.sink.Publish(ctx, events...); err != nil {
		d.log.WithError(err).WithField("events", len(events)).Warn("notification delivery failed")
	}
}

// =============================================================================
// SINKS
// =============================================================================

// LogSink writes one log entry per event.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		s.Log.WithFields(e.fields()).Info("notification")
	}
	return nil
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory. Tests and the in-process
// audit endpoint read from it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// OfType filters the recorded events.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
