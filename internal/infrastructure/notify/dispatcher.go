// Package notify implements the fire-and-forget notification
// dispatcher. Events are queued and delivered on a background
// goroutine; a full queue drops the event with a log line rather than
// blocking a transition.
package notify

import (
	"context"
	"sync"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"go.uber.org/zap"
)

// Sink delivers one notification to its destination
type Sink interface {
	Deliver(ctx context.Context, n port.Notification) error
}

// Dispatcher implements port.Notifier with an async queue in front of a
// set of sinks. Delivery errors are logged and swallowed; they never
// surface to the caller.
type Dispatcher struct {
	queue  chan port.Notification
	sinks  []Sink
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity
func NewDispatcher(capacity int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if capacity < 1 {
		capacity = 64
	}
	return &Dispatcher{
		queue:  make(chan port.Notification, capacity),
		sinks:  sinks,
		logger: logger,
	}
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.started = true

	go d.deliverLoop(ctx)
	d.logger.Info("Notification dispatcher started", zap.Int("capacity", cap(d.queue)))
}

// Stop drains nothing: queued events not yet delivered are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.cancel()
	<-d.done
	d.started = false
	d.logger.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) deliverLoop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case n := <-d.queue:
			for _, sink := range d.sinks {
				if err := sink.Deliver(ctx, n); err != nil {
					d.logger.Error("Notification delivery failed",
						zap.String("event", n.Event),
						zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Notify implements port.Notifier. It never blocks: when the queue is
// full the event is dropped and logged.
func (d *Dispatcher) Notify(ctx context.Context, n port.Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification queue full, dropping event",
			zap.String("event", n.Event),
			zap.Int("recipients", len(n.RecipientIDs)))
	}
}

// Verify interface compliance
var _ port.Notifier = (*Dispatcher)(nil)
