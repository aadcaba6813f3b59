package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
)

type fakeConnector struct {
	calls atomic.Int32
	err   error
}

func (f *fakeConnector) Connect(_ context.Context) error {
	f.calls.Add(1)
	return f.err
}

func publishDrop(b *bus.Bus) {
	b.Publish(bus.Event{
		Kind:      "conn.state",
		Timestamp: time.Now(),
		Payload:   StateChange{From: StateConnected, To: StateDisconnected},
	})
}

func TestReconnectorRetriesOnDisconnect(t *testing.T) {
	b := bus.New()
	fc := &fakeConnector{}
	r := NewReconnector(fc, b, zap.NewNop(), 5, time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	publishDrop(b)

	deadline := time.Now().Add(time.Second)
	for fc.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fc.calls.Load(); got != 1 {
		t.Errorf("Connect calls = %d, want 1", got)
	}
}

// TestReconnectorBoundedAttempts verifies the attempt counter stops the loop:
// disconnect events beyond the bound must not trigger further dials.
func TestReconnectorBoundedAttempts(t *testing.T) {
	b := bus.New()
	fc := &fakeConnector{err: errors.New("still down")}
	r := NewReconnector(fc, b, zap.NewNop(), 2, time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	for i := 0; i < 6; i++ {
		publishDrop(b)
	}

	time.Sleep(300 * time.Millisecond)
	if got := fc.calls.Load(); got != 2 {
		t.Errorf("Connect calls = %d, want 2 (bounded)", got)
	}
}

func TestReconnectorResetsOnConnected(t *testing.T) {
	b := bus.New()
	fc := &fakeConnector{}
	r := NewReconnector(fc, b, zap.NewNop(), 1, time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	publishDrop(b)
	time.Sleep(100 * time.Millisecond)

	// Successful connection resets the budget.
	b.Publish(bus.Event{
		Kind:      "conn.state",
		Timestamp: time.Now(),
		Payload:   StateChange{From: StateConnecting, To: StateConnected},
	})
	time.Sleep(50 * time.Millisecond)

	publishDrop(b)
	time.Sleep(100 * time.Millisecond)

	if got := fc.calls.Load(); got != 2 {
		t.Errorf("Connect calls = %d, want 2 (budget reset after connected)", got)
	}
}
