package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	b.Publish(Event{Kind: "conn.state", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "conn.state" {
			t.Errorf("got kind %q, want conn.state", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	b.Publish(Event{Kind: "conn.state"})
	b.Publish(Event{Kind: "rt.new_message"})

	select {
	case evt := <-ch:
		if evt.Kind != "rt.new_message" {
			t.Errorf("got kind %q, want rt.new_message", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure connection event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conn.", 10)
	unsub()

	b.Publish(Event{Kind: "conn.state"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

// TestUnsubscribeIsIndependent verifies that releasing one subscription does
// not affect other listeners on the same namespace.
func TestUnsubscribeIsIndependent(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe("rt.", 10)
	ch2, unsub2 := b.Subscribe("rt.", 10)
	defer unsub2()

	unsub1()
	b.Publish(Event{Kind: "rt.typing"})

	select {
	case <-ch1:
		t.Error("received event on released subscription")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case evt := <-ch2:
		if evt.Kind != "rt.typing" {
			t.Errorf("got kind %q, want rt.typing", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("surviving subscriber did not receive event")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
