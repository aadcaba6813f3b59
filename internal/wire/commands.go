package wire

import (
	"encoding/json"
	"fmt"

	"github.com/anhdn/convo/internal/model"
)

// Outbound event names.
const (
	EventJoinConversation    = "join_conversation"
	EventLeaveConversation   = "leave_conversation"
	EventSendMessage         = "send_message"
	EventQuickShareFile      = "quick_share_file"
	EventStartTyping         = "start_typing"
	EventStopTyping          = "stop_typing"
	EventMarkRead            = "mark_messages_as_read"
	EventRequestLastMessages = "request_last_messages"
)

// SendMessage is the outbound text send payload.
type SendMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	Timestamp      int64  `json:"timestamp"`
	LocalID        string `json:"localId"`
}

// FileMetadata describes an uploaded file for quick_share_file.
type FileMetadata struct {
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// QuickShareFile is the outbound file share payload.
type QuickShareFile struct {
	FileID         string       `json:"fileId"`
	ConversationID string       `json:"conversationId"`
	Message        string       `json:"message"`
	FileMetadata   FileMetadata `json:"fileMetadata"`
}

// ConversationRef addresses a single conversation (join/leave/typing).
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// MarkRead is the outbound read-receipt payload.
type MarkRead struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	UserID         string   `json:"userId"`
}

// RequestLastMessages asks the server for a bulk summary snapshot.
type RequestLastMessages struct {
	ConversationIDs []string `json:"conversationIds"`
}

// MetadataFor builds the share payload metadata from an attachment.
func MetadataFor(a model.Attachment) FileMetadata {
	return FileMetadata{
		FileID:       a.FileID,
		FileName:     a.FileName,
		FileSize:     a.FileSize,
		MimeType:     a.MimeType,
		DownloadURL:  a.DownloadURL,
		ThumbnailURL: a.ThumbnailURL,
	}
}

// Encode marshals an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	raw, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return raw, nil
}
