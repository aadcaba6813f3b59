// Package summary keeps the conversation-list cache: one row per
// conversation, ordered by recency, merged last-writer-wins from single
// pushes and bulk snapshots.
package summary

import (
	"context"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/wire"
)

// KindUpdated is published once per apply call, carrying the affected
// conversation ids as []string.
const KindUpdated = "summary.updated"

// Synchronizer merges last-message pushes into the conversation-list cache.
// Rows keep recency order: the most recently updated conversation comes
// first in Snapshot.
type Synchronizer struct {
	mu        sync.RWMutex
	summaries *orderedmap.OrderedMap[string, *model.ConversationSummary]
	bus       *bus.Bus
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// New creates an empty synchronizer.
func New(b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		summaries: orderedmap.NewOrderedMap[string, *model.ConversationSummary](),
		bus:       b,
		logger:    logger,
	}
}

// Start consumes summary events from the transport until ctx is done.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe("rt.summary", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch payload := evt.Payload.(type) {
				case wire.SummaryUpdate:
					s.ApplySingleUpdate(payload)
				case wire.SummarySnapshot:
					s.ApplyBulkSnapshot(payload)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the consumer loop.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// ApplySingleUpdate merges one conversation's push. Last write wins: the
// preview takes whichever update arrives later, with no timestamp ordering
// enforced. The unread count always takes the server's value, clamped at
// zero. Exactly one list-change event is published per call.
func (s *Synchronizer) ApplySingleUpdate(update wire.SummaryUpdate) {
	s.mu.Lock()
	s.applyLocked(update)
	s.mu.Unlock()

	s.notify([]string{update.ConversationID})
}

// ApplyBulkSnapshot merges a full snapshot response row by row under the
// same rules as single updates, then publishes one list-change event for
// all affected conversations.
func (s *Synchronizer) ApplyBulkSnapshot(snapshot wire.SummarySnapshot) {
	ids := make([]string, 0, len(snapshot.Updates))

	s.mu.Lock()
	for _, update := range snapshot.Updates {
		if update.ConversationID == "" {
			continue
		}
		s.applyLocked(update)
		ids = append(ids, update.ConversationID)
	}
	s.mu.Unlock()

	s.notify(ids)
}

func (s *Synchronizer) applyLocked(update wire.SummaryUpdate) {
	current, exists := s.summaries.Get(update.ConversationID)
	if !exists {
		current = &model.ConversationSummary{ID: update.ConversationID}
	}

	moved := !exists
	if update.LastMessage != nil {
		current.LastMessage = update.LastMessage.ToPreview()
		moved = true
	}

	count := update.UnreadCount
	if count < 0 {
		count = 0
	}
	current.UnreadCount = count

	if moved {
		// Re-insert so recency order follows the newest write.
		s.summaries.Delete(update.ConversationID)
		s.summaries.Set(update.ConversationID, current)
	}
}

// Seed creates rows for conversations the cache has not seen yet, carrying
// their type from the conversation listing. Existing rows keep their fields
// (a seed never overwrites pushed state, only backfills a missing type).
func (s *Synchronizer) Seed(rows []model.ConversationSummary) {
	var added []string

	s.mu.Lock()
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if existing, ok := s.summaries.Get(row.ID); ok {
			if existing.Type == "" {
				existing.Type = row.Type
			}
			continue
		}
		entry := row
		if entry.UnreadCount < 0 {
			entry.UnreadCount = 0
		}
		s.summaries.Set(entry.ID, &entry)
		added = append(added, entry.ID)
	}
	s.mu.Unlock()

	s.notify(added)
}

// ResetUnread zeroes a conversation's unread count, typically after the
// thread was read. Unknown conversations are ignored without an event.
func (s *Synchronizer) ResetUnread(conversationID string) {
	s.mu.Lock()
	current, exists := s.summaries.Get(conversationID)
	if exists {
		current.UnreadCount = 0
	}
	s.mu.Unlock()

	if !exists {
		return
	}
	s.notify([]string{conversationID})
}

// GetSummary returns a copy of one conversation's row.
func (s *Synchronizer) GetSummary(conversationID string) (model.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current, exists := s.summaries.Get(conversationID)
	if !exists {
		return model.ConversationSummary{}, false
	}
	return copySummary(current), true
}

// Snapshot returns all rows, most recently active first.
func (s *Synchronizer) Snapshot() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.ConversationSummary, 0, s.summaries.Len())
	for el := s.summaries.Front(); el != nil; el = el.Next() {
		rows = append(rows, copySummary(el.Value))
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

func (s *Synchronizer) notify(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		Timestamp: time.Now(),
		Payload:   ids,
	})
}

func copySummary(in *model.ConversationSummary) model.ConversationSummary {
	out := *in
	if in.LastMessage != nil {
		preview := *in.LastMessage
		out.LastMessage = &preview
	}
	return out
}
