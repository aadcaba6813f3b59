package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/wire"
)

// DefaultIdleWindow is how long after the last keystroke a typing burst ends.
const DefaultIdleWindow = 2 * time.Second

// Emitter is the slice of the connection the notifier needs.
type Emitter interface {
	Emit(event string, payload any)
}

type burst struct {
	timer *time.Timer
}

// Notifier turns local keystrokes into start/stop typing signals. One
// start per burst; the stop fires after the idle window or on Clear.
type Notifier struct {
	mu         sync.Mutex
	bursts     map[string]*burst
	emitter    Emitter
	idleWindow time.Duration
	logger     *zap.Logger
}

// NewNotifier creates a notifier. idleWindow <= 0 uses the default.
func NewNotifier(emitter Emitter, logger *zap.Logger, idleWindow time.Duration) *Notifier {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &Notifier{
		bursts:     make(map[string]*burst),
		emitter:    emitter,
		idleWindow: idleWindow,
		logger:     logger,
	}
}

// Keystroke records local typing activity. The first keystroke of a burst
// emits start_typing; every keystroke re-arms the idle timer.
func (n *Notifier) Keystroke(conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if b, ok := n.bursts[conversationID]; ok {
		b.timer.Reset(n.idleWindow)
		return
	}

	n.emitter.Emit(wire.EventStartTyping, wire.ConversationRef{ConversationID: conversationID})
	b := &burst{}
	b.timer = time.AfterFunc(n.idleWindow, func() {
		n.expire(conversationID)
	})
	n.bursts[conversationID] = b
}

// Clear ends the burst immediately, emitting stop_typing if one was active.
// Call on send and on leaving the conversation.
func (n *Notifier) Clear(conversationID string) {
	n.mu.Lock()
	b, ok := n.bursts[conversationID]
	if ok {
		b.timer.Stop()
		delete(n.bursts, conversationID)
	}
	n.mu.Unlock()

	if ok {
		n.emitter.Emit(wire.EventStopTyping, wire.ConversationRef{ConversationID: conversationID})
	}
}

// Shutdown clears every active burst.
func (n *Notifier) Shutdown() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.bursts))
	for id := range n.bursts {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	for _, id := range ids {
		n.Clear(id)
	}
}

func (n *Notifier) expire(conversationID string) {
	n.mu.Lock()
	_, ok := n.bursts[conversationID]
	if ok {
		delete(n.bursts, conversationID)
	}
	n.mu.Unlock()

	if ok {
		n.emitter.Emit(wire.EventStopTyping, wire.ConversationRef{ConversationID: conversationID})
	}
}
