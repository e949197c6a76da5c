package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atisplatform/approval-engine/internal/application/port"
)

type captureSink struct {
	mu     sync.Mutex
	events []port.Notification
}

func (s *captureSink) Deliver(ctx context.Context, n port.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
	return nil
}

func (s *captureSink) recorded() []port.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]port.Notification{}, s.events...)
}

func waitForEvents(t *testing.T, sink *captureSink, want int) []port.Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := sink.recorded()
		if len(events) >= want {
			return events
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sink received %d events, want %d", len(sink.recorded()), want)
	return nil
}

func TestDispatcher_DeliversQueuedEvents(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(8, zap.NewNop(), sink)
	d.Start(context.Background())
	defer d.Stop()

	d.Notify(context.Background(), port.Notification{Event: "approval.required", RecipientIDs: []string{"a"}})
	d.Notify(context.Background(), port.Notification{Event: "approval.approved", RecipientIDs: []string{"b"}})

	events := waitForEvents(t, sink, 2)
	if events[0].Event != "approval.required" || events[1].Event != "approval.approved" {
		t.Errorf("events delivered out of order: %+v", events)
	}
}

func TestDispatcher_NotifyNeverBlocksWhenFull(t *testing.T) {
	// Not started: nothing drains the queue.
	d := NewDispatcher(1, zap.NewNop(), &captureSink{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), port.Notification{Event: "approval.required"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}

func TestDispatcher_StartStopIdempotent(t *testing.T) {
	d := NewDispatcher(4, zap.NewNop(), &captureSink{})

	d.Start(context.Background())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	// A fresh start after stop keeps working
	sink := &captureSink{}
	d2 := NewDispatcher(4, zap.NewNop(), sink)
	d2.Start(context.Background())
	d2.Notify(context.Background(), port.Notification{Event: "approval.returned"})
	waitForEvents(t, sink, 1)
	d2.Stop()
}
