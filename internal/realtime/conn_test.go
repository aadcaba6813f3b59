package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/wire"
)

// testServer runs a websocket endpoint that forwards every received frame to
// inbound and sends every frame queued on outbound to the client.
func testServer(t *testing.T, inbound chan []byte, outbound chan []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		go func() {
			for {
				select {
				case raw := <-outbound:
					if err := c.Write(ctx, websocket.MessageText, raw); err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			select {
			case inbound <- data:
			default:
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConn(t *testing.T, url string, b *bus.Bus) *Conn {
	t.Helper()
	c := New(Options{URL: url}, b, zap.NewNop())
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectAndReceive(t *testing.T) {
	outbound := make(chan []byte, 4)
	srv := testServer(t, make(chan []byte, 4), outbound)

	b := bus.New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	c := testConn(t, srv.URL, b)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	outbound <- []byte(`{"event":"new_message","data":{"id":"M1","conversationId":"C1","senderId":"U2","content":"hi","messageType":"text","timestamp":1}}`)

	select {
	case evt := <-ch:
		if evt.Kind != wire.KindNewMessage {
			t.Errorf("kind = %q, want %q", evt.Kind, wire.KindNewMessage)
		}
		msg := evt.Payload.(*model.Message)
		if msg.ID != "M1" {
			t.Errorf("message id = %q, want M1", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for decoded event")
	}
}

func TestConnectIdempotent(t *testing.T) {
	srv := testServer(t, make(chan []byte, 4), make(chan []byte, 4))

	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	c := testConn(t, srv.URL, b)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Second call while connected must be a no-op.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	var changes []StateChange
	for len(ch) > 0 {
		evt := <-ch
		changes = append(changes, evt.Payload.(StateChange))
	}
	if len(changes) != 2 {
		t.Fatalf("got %d state changes %v, want 2 (connecting, connected)", len(changes), changes)
	}
	if changes[0].To != StateConnecting || changes[1].To != StateConnected {
		t.Errorf("changes = %v", changes)
	}
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // dial target gone

	b := bus.New()
	c := testConn(t, srv.URL, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Connect(ctx)
	if err == nil {
		t.Fatal("Connect to closed server should fail")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("error type = %T, want *ConnectionError", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", c.State())
	}
}

func TestEmitDeliversFrame(t *testing.T) {
	inbound := make(chan []byte, 4)
	srv := testServer(t, inbound, make(chan []byte, 4))

	b := bus.New()
	c := testConn(t, srv.URL, b)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Emit(wire.EventJoinConversation, wire.ConversationRef{ConversationID: "C1"})

	select {
	case raw := <-inbound:
		want := `{"event":"join_conversation","data":{"conversationId":"C1"}}`
		if string(raw) != want {
			t.Errorf("frame = %s, want %s", raw, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for emitted frame")
	}
}

func TestEmitWhileDisconnectedIsNoop(t *testing.T) {
	b := bus.New()
	c := New(Options{URL: "http://127.0.0.1:0"}, b, zap.NewNop())

	// Must not panic or block.
	c.Emit(wire.EventStartTyping, wire.ConversationRef{ConversationID: "C1"})
}

func TestDisconnectNotifiesOnce(t *testing.T) {
	srv := testServer(t, make(chan []byte, 4), make(chan []byte, 4))

	b := bus.New()
	c := testConn(t, srv.URL, b)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	c.Disconnect()
	// Give the read loop time to observe the close as well.
	time.Sleep(200 * time.Millisecond)

	drops := 0
	for len(ch) > 0 {
		evt := <-ch
		if evt.Payload.(StateChange).To == StateDisconnected {
			drops++
		}
	}
	if drops != 1 {
		t.Errorf("got %d disconnected notifications, want exactly 1", drops)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}
