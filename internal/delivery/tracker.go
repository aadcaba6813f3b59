// Package delivery routes server-side status changes to the open threads
// and drives the outbound read-receipt flow.
package delivery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/wire"
)

// StatusApplier is the slice of a thread the tracker routes into. The
// applier owns the forward-only status rules; unknown ids are its no-op.
type StatusApplier interface {
	ApplyStatus(messageID string, status model.DeliveryStatus)
}

// Emitter is the slice of the connection the tracker needs.
type Emitter interface {
	Emit(event string, payload any)
}

// Unreads is the slice of the summary cache the tracker needs.
type Unreads interface {
	ResetUnread(conversationID string)
}

// Tracker fans delivery-status updates out to whichever thread has the
// conversation open. Updates for closed conversations are dropped; the
// thread refetches status with its history page when reopened.
type Tracker struct {
	mu       sync.RWMutex
	appliers map[string]StatusApplier
	emitter  Emitter
	unreads  Unreads
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewTracker creates a tracker with no open threads.
func NewTracker(emitter Emitter, unreads Unreads, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		appliers: make(map[string]StatusApplier),
		emitter:  emitter,
		unreads:  unreads,
		bus:      b,
		logger:   logger,
	}
}

// Register routes a conversation's status updates to the given applier.
func (t *Tracker) Register(conversationID string, applier StatusApplier) {
	t.mu.Lock()
	t.appliers[conversationID] = applier
	t.mu.Unlock()
}

// Unregister stops routing for a conversation.
func (t *Tracker) Unregister(conversationID string) {
	t.mu.Lock()
	delete(t.appliers, conversationID)
	t.mu.Unlock()
}

// Start consumes status updates from the transport until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe(wire.KindStatusUpdate, 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				update, ok := evt.Payload.(wire.StatusUpdate)
				if !ok {
					continue
				}
				t.Apply(update)
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

// Apply routes one status update. Unknown conversations are ignored.
func (t *Tracker) Apply(update wire.StatusUpdate) {
	t.mu.RLock()
	applier, ok := t.appliers[update.ConversationID]
	t.mu.RUnlock()

	if !ok {
		t.logger.Debug("status update for closed conversation dropped",
			zap.String("conversation_id", update.ConversationID),
			zap.String("message_id", update.MessageID))
		return
	}
	applier.ApplyStatus(update.MessageID, update.Status)
}

// MarkRead reports the given messages as read: emits the read receipt,
// advances them locally, and zeroes the conversation's unread count.
func (t *Tracker) MarkRead(conversationID string, messageIDs []string, userID string) {
	if len(messageIDs) == 0 {
		return
	}

	t.emitter.Emit(wire.EventMarkRead, wire.MarkRead{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
		UserID:         userID,
	})

	t.mu.RLock()
	applier, ok := t.appliers[conversationID]
	t.mu.RUnlock()
	if ok {
		for _, id := range messageIDs {
			applier.ApplyStatus(id, model.StatusRead)
		}
	}

	t.unreads.ResetUnread(conversationID)
}
