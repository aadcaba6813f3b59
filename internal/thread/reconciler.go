// Package thread owns the ordered message list of each open conversation:
// optimistic inserts, reconciliation against authoritative records, status
// changes, history pages, and the transport-first send pipeline.
package thread

import (
	"context"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/rest"
	"github.com/anhdn/convo/internal/wire"
)

// Bus kinds published by threads.
const (
	KindUpdated    = "thread.updated"     // payload: conversation id
	KindSendFailed = "thread.send_failed" // payload: localId
)

// DefaultReconnectWait is how long a send waits for the best-effort
// reconnect before falling back to REST.
const DefaultReconnectWait = time.Second

// Transport is the slice of the connection a thread needs.
type Transport interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Emit(event string, payload any)
}

// API is the slice of the REST client a thread needs.
type API interface {
	SendMessage(ctx context.Context, payload rest.SendPayload) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*model.Message, rest.Pagination, error)
	UploadFile(ctx context.Context, localPath string) (*rest.UploadResult, error)
}

// SendFailureError reports that a send exhausted both the realtime and the
// REST path. The optimistic entry stays in the thread as failed.
type SendFailureError struct {
	LocalID string
	Err     error
}

func (e *SendFailureError) Error() string {
	return "send failed for " + e.LocalID + ": " + e.Err.Error()
}

func (e *SendFailureError) Unwrap() error { return e.Err }

// Reconciler keeps one conversation's thread consistent: no two entries
// share an identity, optimistic entries are replaced in place when their
// authoritative record arrives, and statuses only move forward.
type Reconciler struct {
	conversationID string
	selfID         string
	selfName       string

	mu         sync.Mutex
	entries    []*model.Message
	superseded map[string]string // retired localId -> its replacement

	transport     Transport
	api           API
	bus           *bus.Bus
	logger        *zap.Logger
	reconnectWait time.Duration
}

// NewReconciler creates an empty thread for one conversation.
func NewReconciler(conversationID, selfID, selfName string, transport Transport, api API, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		conversationID: conversationID,
		selfID:         selfID,
		selfName:       selfName,
		superseded:     make(map[string]string),
		transport:      transport,
		api:            api,
		bus:            b,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
		reconnectWait:  DefaultReconnectWait,
	}
}

// ConversationID returns the conversation this thread belongs to.
func (r *Reconciler) ConversationID() string { return r.conversationID }

// CreateOptimistic inserts a sending entry at the tail and returns a copy.
// No network round-trip happens here.
func (r *Reconciler) CreateOptimistic(content string, attachments []model.Attachment) model.Message {
	msg := &model.Message{
		LocalID:        uuid.NewString(),
		ConversationID: r.conversationID,
		SenderID:       r.selfID,
		SenderName:     r.selfName,
		Content:        content,
		Type:           typeForAttachments(content, attachments),
		Attachments:    attachments,
		Status:         model.StatusSending,
		CreatedAt:      time.Now().UnixMilli(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, msg)
	r.mu.Unlock()

	r.notify()
	return *msg
}

// ReconcileIncoming folds an authoritative record into the thread: replace
// the matching entry in place, or append when nothing matches. Reconciling
// the same record twice leaves the thread unchanged the second time.
func (r *Reconciler) ReconcileIncoming(incoming *model.Message) {
	if incoming == nil || incoming.ConversationID != r.conversationID {
		return
	}

	r.mu.Lock()
	in := *incoming
	// A late echo of a retried send carries the retired localId; translate
	// it so it reconciles into the live entry instead of duplicating.
	if repl, ok := r.superseded[in.LocalID]; ok {
		in.LocalID = repl
	}

	idx := r.findLocked(&in)
	if idx >= 0 {
		existing := r.entries[idx]
		if in.LocalID == "" {
			in.LocalID = existing.LocalID
		}
		if !existing.Status.CanAdvanceTo(in.Status) && existing.Status != in.Status {
			in.Status = existing.Status
		}
		r.entries[idx] = &in
	} else {
		r.entries = append(r.entries, &in)
	}
	r.mu.Unlock()

	r.notify()
}

func (r *Reconciler) findLocked(in *model.Message) int {
	if in.ID != "" {
		want := model.Identity{ID: in.ID}
		for i, e := range r.entries {
			if want.Same(e.Identity()) {
				return i
			}
		}
	}
	if in.LocalID != "" {
		want := model.Identity{LocalID: in.LocalID}
		for i, e := range r.entries {
			if want.Same(e.Identity()) {
				return i
			}
		}
	}
	// Last resort for our own echoes that lost the localId: the oldest
	// entry still in flight with the same content is taken to be this
	// message. Optimistic entries are always self-sent, so messages from
	// other participants never collapse into one.
	if in.ID != "" && in.Content != "" && in.SenderID == r.selfID {
		for i, e := range r.entries {
			if e.Status == model.StatusSending && e.Content == in.Content {
				return i
			}
		}
	}
	return -1
}

// ApplyStatus advances one entry's delivery status. Regressions and
// unknown ids are ignored.
func (r *Reconciler) ApplyStatus(messageID string, status model.DeliveryStatus) {
	changed := false

	r.mu.Lock()
	for _, e := range r.entries {
		if e.ID != messageID {
			continue
		}
		if e.Status.CanAdvanceTo(status) {
			e.Status = status
			changed = true
		}
		break
	}
	r.mu.Unlock()

	if changed {
		r.notify()
	}
}

// MarkFailed transitions an in-flight optimistic entry to failed.
func (r *Reconciler) MarkFailed(localID string) {
	changed := false

	r.mu.Lock()
	for _, e := range r.entries {
		if e.LocalID == localID && e.Status == model.StatusSending {
			e.Status = model.StatusFailed
			changed = true
			break
		}
	}
	r.mu.Unlock()

	if changed {
		r.notify()
	}
}

// Retry re-enters a failed entry into the send pipeline under a fresh
// localId. The retired localId keeps reconciling to the same entry.
func (r *Reconciler) Retry(ctx context.Context, localID string) error {
	r.mu.Lock()
	var entry *model.Message
	for _, e := range r.entries {
		if e.LocalID == localID {
			entry = e
			break
		}
	}
	if entry == nil || entry.Status != model.StatusFailed {
		r.mu.Unlock()
		return nil
	}

	fresh := uuid.NewString()
	r.superseded[localID] = fresh
	// Repoint earlier retired ids too, so any depth of retry still lands.
	for old, repl := range r.superseded {
		if repl == localID {
			r.superseded[old] = fresh
		}
	}
	entry.LocalID = fresh
	entry.Status = model.StatusSending
	snapshot := *entry
	r.mu.Unlock()

	r.notify()
	return r.deliver(ctx, snapshot)
}

// Send creates the optimistic entry and pushes it out: realtime when
// connected, otherwise one best-effort reconnect then the REST path. Both
// failing marks the entry failed and returns *SendFailureError.
func (r *Reconciler) Send(ctx context.Context, content string) (model.Message, error) {
	msg := r.CreateOptimistic(content, nil)
	return msg, r.deliver(ctx, msg)
}

// ShareFile uploads the file, then sends an attachment message through the
// same pipeline. Upload failures surface as *rest.UploadError before any
// optimistic entry exists.
func (r *Reconciler) ShareFile(ctx context.Context, localPath, caption string) (model.Message, error) {
	result, err := r.api.UploadFile(ctx, localPath)
	if err != nil {
		return model.Message{}, err
	}

	msg := r.CreateOptimistic(caption, []model.Attachment{result.Attachment()})

	if r.ensureConnected(ctx) {
		r.transport.Emit(wire.EventQuickShareFile, wire.QuickShareFile{
			FileID:         result.FileID,
			ConversationID: r.conversationID,
			Message:        caption,
			FileMetadata:   wire.MetadataFor(result.Attachment()),
		})
		return msg, nil
	}

	sent, err := r.api.SendMessage(ctx, rest.SendPayload{
		ConversationID: r.conversationID,
		Content:        caption,
		Type:           string(msg.Type),
		LocalID:        msg.LocalID,
		FileID:         result.FileID,
	})
	if err != nil {
		r.MarkFailed(msg.LocalID)
		r.failNotify(msg.LocalID)
		return msg, &SendFailureError{LocalID: msg.LocalID, Err: err}
	}

	r.ReconcileIncoming(sent)
	return msg, nil
}

// LoadPage fetches one history page and merges it at the head of the
// thread, oldest first. Records already present reconcile in place.
func (r *Reconciler) LoadPage(ctx context.Context, page, pageSize int) (rest.Pagination, error) {
	msgs, pagination, err := r.api.ListMessages(ctx, r.conversationID, page, pageSize)
	if err != nil {
		return rest.Pagination{}, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})

	r.mu.Lock()
	var fresh []*model.Message
	for _, m := range msgs {
		in := *m
		if idx := r.findLocked(&in); idx >= 0 {
			existing := r.entries[idx]
			if in.LocalID == "" {
				in.LocalID = existing.LocalID
			}
			if !existing.Status.CanAdvanceTo(in.Status) && existing.Status != in.Status {
				in.Status = existing.Status
			}
			r.entries[idx] = &in
			continue
		}
		fresh = append(fresh, &in)
	}
	r.entries = append(fresh, r.entries...)
	r.mu.Unlock()

	r.notify()
	return pagination, nil
}

// Messages returns the thread in chronological order, oldest first.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Message, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

func (r *Reconciler) deliver(ctx context.Context, msg model.Message) error {
	if r.ensureConnected(ctx) {
		r.transport.Emit(wire.EventSendMessage, wire.SendMessage{
			ConversationID: r.conversationID,
			Content:        msg.Content,
			Type:           string(msg.Type),
			Timestamp:      msg.CreatedAt,
			LocalID:        msg.LocalID,
		})
		return nil
	}

	r.logger.Info("transport down, sending through fallback", zap.String("local_id", msg.LocalID))
	sent, err := r.api.SendMessage(ctx, rest.SendPayload{
		ConversationID: r.conversationID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		LocalID:        msg.LocalID,
	})
	if err != nil {
		r.MarkFailed(msg.LocalID)
		r.failNotify(msg.LocalID)
		return &SendFailureError{LocalID: msg.LocalID, Err: err}
	}

	r.ReconcileIncoming(sent)
	return nil
}

// ensureConnected makes at most one reconnect attempt with a short wait.
func (r *Reconciler) ensureConnected(ctx context.Context) bool {
	if r.transport.IsConnected() {
		return true
	}
	if err := r.transport.Connect(ctx); err != nil {
		return false
	}
	select {
	case <-time.After(r.reconnectWait):
	case <-ctx.Done():
	}
	return r.transport.IsConnected()
}

func (r *Reconciler) notify() {
	r.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		Timestamp: time.Now(),
		Payload:   r.conversationID,
	})
}

func (r *Reconciler) failNotify(localID string) {
	r.bus.Publish(bus.Event{
		Kind:      KindSendFailed,
		Timestamp: time.Now(),
		Payload:   localID,
	})
}

func typeForAttachments(content string, attachments []model.Attachment) model.MessageType {
	if len(attachments) == 0 {
		return model.TypeText
	}
	mimeType := attachments[0].MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(attachments[0].FileName))
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.TypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return model.TypeAudio
	case strings.HasPrefix(mimeType, "video/"):
		return model.TypeVideo
	default:
		return model.TypeFile
	}
}
