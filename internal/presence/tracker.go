// Package presence tracks who is typing where. The tracker is the receive
// side, fed by transport events; the notifier is the send side, debouncing
// local keystrokes into start/stop signals.
package presence

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/wire"
)

// Tracker keeps the set of currently typing participants per conversation.
// Entries only leave on an explicit stopped signal; expiry is the sender's
// responsibility.
type Tracker struct {
	mu     sync.RWMutex
	typing map[string][]string // conversation id -> user names, arrival order
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewTracker creates an empty tracker.
func NewTracker(b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		typing: make(map[string][]string),
		bus:    b,
		logger: logger,
	}
}

// Start consumes typing events from the transport until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe(wire.KindTyping, 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				te, ok := evt.Payload.(wire.TypingEvent)
				if !ok {
					continue
				}
				t.Apply(te)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the consumer loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Apply folds one typing signal into the set. Stopped signals for absent
// users are ignored.
func (t *Tracker) Apply(evt wire.TypingEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := t.typing[evt.ConversationID]
	switch evt.Type {
	case "started":
		if !slices.Contains(names, evt.UserName) {
			t.typing[evt.ConversationID] = append(names, evt.UserName)
		}
	case "stopped":
		idx := slices.Index(names, evt.UserName)
		if idx < 0 {
			return
		}
		names = slices.Delete(names, idx, idx+1)
		if len(names) == 0 {
			delete(t.typing, evt.ConversationID)
		} else {
			t.typing[evt.ConversationID] = names
		}
	}
}

// Typers returns who is typing in a conversation, in arrival order.
func (t *Tracker) Typers(conversationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.typing[conversationID])
}
