// Package wire defines the transport event schema: a closed set of tagged
// inbound variants and the outbound command payloads. All decoding and
// validation happens here, at the boundary, so the rest of the engine never
// sees untyped data.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/anhdn/convo/internal/model"
)

// Inbound event names.
const (
	EventNewMessage      = "new_message"
	EventNewFileMessage  = "new_file_message"
	EventNewBatchFiles   = "new_batch_files_message"
	EventTyping          = "typing"
	EventStatusUpdate    = "status_update"
	EventSummaryUpdate   = "conversation_last_message_update"
	EventSummarySnapshot = "conversations_last_messages_response"
)

// Bus kinds produced by Decode.
const (
	KindNewMessage      = "rt.new_message"
	KindTyping          = "rt.typing"
	KindStatusUpdate    = "rt.status_update"
	KindSummaryUpdate   = "rt.summary_update"
	KindSummarySnapshot = "rt.summary_snapshot"
)

// Frame is the wire format in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TypingEvent signals a participant starting or stopping to type.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"` // started | stopped
	UserName       string `json:"userName"`
}

// StatusUpdate carries a server-side delivery status change.
type StatusUpdate struct {
	ConversationID string               `json:"conversationId"`
	MessageID      string               `json:"messageId"`
	Status         model.DeliveryStatus `json:"status"`
}

// Preview is the wire shape of a last-message preview.
type Preview struct {
	MessageID   string `json:"messageId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Timestamp   int64  `json:"timestamp"`
}

// SummaryUpdate is a single-conversation last-message push.
type SummaryUpdate struct {
	ConversationID string   `json:"conversationId"`
	LastMessage    *Preview `json:"lastMessage"`
	UnreadCount    int      `json:"unreadCount"`
	Timestamp      int64    `json:"timestamp"`
}

// SummarySnapshot is the bulk response to request_last_messages.
type SummarySnapshot struct {
	Updates []SummaryUpdate `json:"updates"`
}

// fileInfo tolerates both key spellings the server uses: file events carry
// "id", message payloads carry "fileId".
type fileInfo struct {
	ID           string `json:"id"`
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

func (f fileInfo) attachment() model.Attachment {
	id := f.FileID
	if id == "" {
		id = f.ID
	}
	return model.Attachment{
		FileID:       id,
		FileName:     f.FileName,
		FileSize:     f.FileSize,
		MimeType:     f.MimeType,
		DownloadURL:  f.DownloadURL,
		ThumbnailURL: f.ThumbnailURL,
	}
}

type newMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	SenderName     string     `json:"senderName"`
	Content        string     `json:"content"`
	MessageType    string     `json:"messageType"`
	Timestamp      int64      `json:"timestamp"`
	LocalID        string     `json:"localId"`
	FileInfo       *fileInfo  `json:"fileInfo"`
	FilesInfo      []fileInfo `json:"filesInfo"`
}

func (n *newMessage) toMessage() *model.Message {
	var attachments []model.Attachment
	for _, fi := range n.FilesInfo {
		attachments = append(attachments, fi.attachment())
	}
	if len(attachments) == 0 && n.FileInfo != nil {
		attachments = append(attachments, n.FileInfo.attachment())
	}

	msgType := model.MessageType(n.MessageType)
	if n.MessageType == "" {
		msgType = model.TypeText
		if len(attachments) > 0 {
			msgType = model.TypeFile
		}
	}

	createdAt := n.Timestamp
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	return &model.Message{
		ID:             n.ID,
		LocalID:        n.LocalID,
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		Content:        n.Content,
		Type:           msgType,
		Attachments:    attachments,
		Status:         model.StatusSent,
		CreatedAt:      createdAt,
	}
}

// Decode parses a raw inbound frame into its bus kind and typed payload.
// Unknown events and frames missing required fields return an error; the
// read loop logs and drops them.
func Decode(raw []byte) (kind string, payload any, err error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, fmt.Errorf("parse frame: %w", err)
	}

	switch frame.Event {
	case EventNewMessage, EventNewFileMessage, EventNewBatchFiles:
		var n newMessage
		if err := json.Unmarshal(frame.Data, &n); err != nil {
			return "", nil, fmt.Errorf("parse %s: %w", frame.Event, err)
		}
		if n.ID == "" || n.ConversationID == "" {
			return "", nil, fmt.Errorf("%s: missing id or conversationId", frame.Event)
		}
		return KindNewMessage, n.toMessage(), nil

	case EventTyping:
		var te TypingEvent
		if err := json.Unmarshal(frame.Data, &te); err != nil {
			return "", nil, fmt.Errorf("parse typing: %w", err)
		}
		if te.ConversationID == "" || te.UserName == "" {
			return "", nil, fmt.Errorf("typing: missing conversationId or userName")
		}
		if te.Type != "started" && te.Type != "stopped" {
			return "", nil, fmt.Errorf("typing: unknown type %q", te.Type)
		}
		return KindTyping, te, nil

	case EventStatusUpdate:
		var su StatusUpdate
		if err := json.Unmarshal(frame.Data, &su); err != nil {
			return "", nil, fmt.Errorf("parse status_update: %w", err)
		}
		if su.ConversationID == "" || su.MessageID == "" {
			return "", nil, fmt.Errorf("status_update: missing conversationId or messageId")
		}
		switch su.Status {
		case model.StatusSent, model.StatusDelivered, model.StatusRead, model.StatusFailed:
		default:
			return "", nil, fmt.Errorf("status_update: unknown status %q", su.Status)
		}
		return KindStatusUpdate, su, nil

	case EventSummaryUpdate:
		var su SummaryUpdate
		if err := json.Unmarshal(frame.Data, &su); err != nil {
			return "", nil, fmt.Errorf("parse summary update: %w", err)
		}
		if su.ConversationID == "" {
			return "", nil, fmt.Errorf("summary update: missing conversationId")
		}
		return KindSummaryUpdate, su, nil

	case EventSummarySnapshot:
		var ss SummarySnapshot
		if err := json.Unmarshal(frame.Data, &ss); err != nil {
			return "", nil, fmt.Errorf("parse summary snapshot: %w", err)
		}
		return KindSummarySnapshot, ss, nil

	default:
		return "", nil, fmt.Errorf("unknown event %q", frame.Event)
	}
}

// ToPreview converts a wire preview to the model type.
func (p *Preview) ToPreview() *model.MessagePreview {
	if p == nil {
		return nil
	}
	return &model.MessagePreview{
		MessageID:  p.MessageID,
		Content:    p.Content,
		Type:       model.MessageType(p.MessageType),
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Timestamp:  p.Timestamp,
	}
}
