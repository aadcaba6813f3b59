// Package realtime owns the one live transport session of the engine.
// The connection decodes inbound frames at the boundary and publishes them
// on the bus; it never calls consumers directly.
package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/wire"
)

// ConnectionError indicates the transport was unreachable or the handshake
// failed. Recovery is caller-driven (see Reconnector).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "realtime connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Options configures the connection.
type Options struct {
	// URL is the server base URL; http(s) schemes are rewritten to ws(s).
	URL string
	// Token is appended to the handshake query string.
	Token string
	// WriteTimeout bounds a single Emit write. Zero means 5s.
	WriteTimeout time.Duration
}

// Conn is the process-wide realtime session. It is created once, connected
// and disconnected across the application session, and shared by every
// component; none of them owns it exclusively.
type Conn struct {
	opts    Options
	bus     *bus.Bus
	logger  *zap.Logger
	machine *Machine

	mu      sync.Mutex
	ws      *websocket.Conn
	cancel  context.CancelFunc
	closing bool
}

// New creates a disconnected connection.
func New(opts Options, b *bus.Bus, logger *zap.Logger) *Conn {
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Conn{
		opts:    opts,
		bus:     b,
		logger:  logger,
		machine: NewMachine(b),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	return c.machine.Current()
}

// IsConnected is the synchronous connectivity snapshot, derived from the
// same state machine that feeds conn.state events.
func (c *Conn) IsConnected() bool {
	return c.machine.Current() == StateConnected
}

// Connect establishes the realtime session if not already connected.
// Idempotent: a call while another is in flight, or while connected,
// returns nil without starting a duplicate attempt.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.machine.Current() {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	}
	_ = c.machine.Transition(StateConnecting)
	c.closing = false
	c.mu.Unlock()

	c.logger.Info("connecting", zap.String("url", c.opts.URL))
	ws, _, err := websocket.Dial(ctx, c.dialURL(), nil)
	if err != nil {
		_ = c.machine.Transition(StateDisconnected)
		return &ConnectionError{Err: err}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.cancel = cancel
	c.mu.Unlock()
	_ = c.machine.Transition(StateConnected)

	go c.readLoop(readCtx, ws)
	return nil
}

// Disconnect closes the session. The connection object itself persists and
// can be reconnected; it is never destroyed during the application session.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closing = true
	ws := c.ws
	c.ws = nil
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	// The read loop races us here; the machine ensures only one of the two
	// transitions publishes the change.
	_ = c.machine.Transition(StateDisconnected)
}

// Emit sends a fire-and-forget outbound event. While disconnected it drops
// the event with a log instead of failing: callers that need the guarantee
// check IsConnected first or use the REST fallback.
func (c *Conn) Emit(event string, payload any) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil || !c.IsConnected() {
		c.logger.Warn("emit while disconnected, dropping", zap.String("event", event))
		return
	}

	raw, err := wire.Encode(event, payload)
	if err != nil {
		c.logger.Error("encode outbound event", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, raw); err != nil {
		// The read loop observes the broken transport and publishes the
		// state change; emit itself stays fire-and-forget.
		c.logger.Warn("emit write failed", zap.String("event", event), zap.Error(err))
	}
}

func (c *Conn) dialURL() string {
	u := strings.Replace(c.opts.URL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.TrimRight(u, "/") + "/socket"
	if c.opts.Token != "" {
		u += "?token=" + c.opts.Token
	}
	return u
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.ws == ws {
				c.ws = nil
			}
			c.mu.Unlock()
			if !closing {
				c.logger.Warn("transport closed", zap.Error(err))
			}
			_ = c.machine.Transition(StateDisconnected)
			return
		}

		kind, payload, err := wire.Decode(data)
		if err != nil {
			c.logger.Debug("dropping inbound frame", zap.Error(err))
			continue
		}
		c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
	}
}
