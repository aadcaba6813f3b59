package model

// MessageType classifies a message body.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
	TypeVideo MessageType = "video"
	TypeFile  MessageType = "file"
)

// Message is one entry of a conversation thread. ID is empty until the
// server confirms the message; LocalID is empty for messages that never
// were optimistic on this device. A reconciled entry carries both.
type Message struct {
	ID             string
	LocalID        string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	Type           MessageType
	Attachments    []Attachment
	Status         DeliveryStatus
	CreatedAt      int64 // unix millis
}

// Attachment describes a file attached to a message. Immutable once attached.
type Attachment struct {
	FileID       string
	FileName     string
	FileSize     int64
	MimeType     string
	DownloadURL  string
	ThumbnailURL string
}

// ConversationType distinguishes direct chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// MessagePreview is the condensed last-message view kept per conversation.
type MessagePreview struct {
	MessageID  string
	Content    string
	Type       MessageType
	SenderID   string
	SenderName string
	Timestamp  int64
}

// ConversationSummary is the cached list-row state for one conversation.
type ConversationSummary struct {
	ID          string
	Type        ConversationType
	LastMessage *MessagePreview
	UnreadCount int
}
