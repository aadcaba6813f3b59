package thread

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/delivery"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/realtime"
	"github.com/anhdn/convo/internal/wire"
)

// Registry is the slice of the delivery tracker the manager needs.
type Registry interface {
	Register(conversationID string, applier delivery.StatusApplier)
	Unregister(conversationID string)
}

// Manager owns one reconciler per open conversation and routes inbound
// messages to them. Messages for conversations that are not open are
// dropped; their threads load fresh history on open.
type Manager struct {
	mu   sync.Mutex
	open map[string]*Reconciler

	selfID   string
	selfName string

	transport Transport
	api       API
	registry  Registry
	bus       *bus.Bus
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// NewManager creates a manager with no open conversations.
func NewManager(selfID, selfName string, transport Transport, api API, registry Registry, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		open:      make(map[string]*Reconciler),
		selfID:    selfID,
		selfName:  selfName,
		transport: transport,
		api:       api,
		registry:  registry,
		bus:       b,
		logger:    logger,
	}
}

// Open joins a conversation and returns its thread. Opening an already
// open conversation returns the existing thread untouched.
func (m *Manager) Open(conversationID string) *Reconciler {
	m.mu.Lock()
	if r, ok := m.open[conversationID]; ok {
		m.mu.Unlock()
		return r
	}
	r := NewReconciler(conversationID, m.selfID, m.selfName, m.transport, m.api, m.bus, m.logger)
	m.open[conversationID] = r
	m.mu.Unlock()

	m.transport.Emit(wire.EventJoinConversation, wire.ConversationRef{ConversationID: conversationID})
	m.registry.Register(conversationID, r)
	return r
}

// Close leaves a conversation and discards its thread.
func (m *Manager) Close(conversationID string) {
	m.mu.Lock()
	_, ok := m.open[conversationID]
	delete(m.open, conversationID)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.registry.Unregister(conversationID)
	m.transport.Emit(wire.EventLeaveConversation, wire.ConversationRef{ConversationID: conversationID})
}

// Thread returns the open thread for a conversation, if any.
func (m *Manager) Thread(conversationID string) (*Reconciler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.open[conversationID]
	return r, ok
}

// Start routes inbound messages to open threads and rejoins conversation
// rooms after every reconnect, until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	msgs, unsubMsgs := m.bus.Subscribe(wire.KindNewMessage, 64)
	states, unsubStates := m.bus.Subscribe("conn.", 16)

	go func() {
		defer unsubMsgs()
		defer unsubStates()
		for {
			select {
			case evt := <-msgs:
				msg, ok := evt.Payload.(*model.Message)
				if !ok {
					continue
				}
				m.route(msg)
			case evt := <-states:
				change, ok := evt.Payload.(realtime.StateChange)
				if ok && change.To == realtime.StateConnected {
					m.rejoin()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the routing loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) route(msg *model.Message) {
	m.mu.Lock()
	r, ok := m.open[msg.ConversationID]
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("message for closed conversation dropped",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID))
		return
	}
	r.ReconcileIncoming(msg)
}

func (m *Manager) rejoin() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.transport.Emit(wire.EventJoinConversation, wire.ConversationRef{ConversationID: id})
	}
}
