package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

// Queue decouples callers from a slow sink. Publish only enqueues; a single
// worker goroutine delivers batches in order, each bounded by its own
// timeout and detached from the caller's context. When the buffer is full
// the batch is dropped and Publish reports ErrQueueFull.
type Queue struct {
	next    Sink
	log     logrus.FieldLogger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	batches chan []Event
	done    chan struct{}
}

// NewQueue starts the delivery worker. Close must be called to stop it.
func NewQueue(next Sink, log logrus.FieldLogger, size int, timeout time.Duration) *Queue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	q := &Queue{
		next:    next,
		log:     log.WithField("component", "notify-queue"),
		timeout: timeout,
		batches: make(chan []Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Publish(_ context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	batch := append([]Event(nil), events...)
	select {
	case q.batches <- batch:
		return nil
	default:
		return fmt.Errorf("%w: dropped %d events", ErrQueueFull, len(events))
	}
}

// Close stops accepting events and waits until everything queued has been
// delivered or has timed out. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.batches)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for batch := range q.batches {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.next.Publish(ctx, batch...)
		cancel()
		if err != nil {
			q.log.WithError(err).WithField("events", len(batch)).Warn("notification delivery failed")
		}
	}
}
