// Package rest is the request/response fallback collaborator: history pages,
// conversation listing, sends while the realtime transport is down, and
// attachment uploads.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/model"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// UploadError is an attachment upload failure. It happens before any
// message exists, so no optimistic entry is left dangling.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "file upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error { return e.Err }

// Client talks to the messaging REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger,
	}
}

// Conversation is one row of the conversation listing.
type Conversation struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ConversationFilter narrows the conversation listing.
type ConversationFilter struct {
	Type   string
	Search string
	Limit  int
	Offset int
}

// Pagination describes a message page.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	Total    int  `json:"total"`
	HasMore  bool `json:"hasMore"`
}

// SendPayload is the REST send-message request body.
type SendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	LocalID        string `json:"localId,omitempty"`
	FileID         string `json:"fileId,omitempty"`
}

// UploadResult describes an uploaded file.
type UploadResult struct {
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Attachment converts the upload result to a message attachment.
func (u *UploadResult) Attachment() model.Attachment {
	name := u.OriginalName
	if name == "" {
		name = u.FileName
	}
	return model.Attachment{
		FileID:       u.FileID,
		FileName:     name,
		FileSize:     u.FileSize,
		MimeType:     u.MimeType,
		DownloadURL:  u.DownloadURL,
		ThumbnailURL: u.ThumbnailURL,
	}
}

type apiAttachment struct {
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type apiMessage struct {
	ID             string          `json:"id"`
	LocalID        string          `json:"localId"`
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	SenderName     string          `json:"senderName"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	Attachments    []apiAttachment `json:"attachments"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"createdAt"`
}

func (m *apiMessage) toModel() *model.Message {
	var attachments []model.Attachment
	for _, a := range m.Attachments {
		attachments = append(attachments, model.Attachment{
			FileID:       a.FileID,
			FileName:     a.FileName,
			FileSize:     a.FileSize,
			MimeType:     a.MimeType,
			DownloadURL:  a.DownloadURL,
			ThumbnailURL: a.ThumbnailURL,
		})
	}

	status := model.DeliveryStatus(m.Status)
	if m.Status == "" {
		status = model.StatusSent
	}

	var createdAt int64
	if ts, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		createdAt = ts.UnixMilli()
	}

	return &model.Message{
		ID:             m.ID,
		LocalID:        m.LocalID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		Type:           model.MessageType(m.Type),
		Attachments:    attachments,
		Status:         status,
		CreatedAt:      createdAt,
	}
}

// ListConversations fetches the conversation list.
func (c *Client) ListConversations(ctx context.Context, filter ConversationFilter) ([]Conversation, error) {
	query := map[string]string{}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Search != "" {
		query["search"] = filter.Search
	}
	if filter.Limit > 0 {
		query["limit"] = strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query["offset"] = strconv.Itoa(filter.Offset)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/conversations", nil, query)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse conversations: %w", err)
	}
	return resp.Conversations, nil
}

// ListMessages fetches one page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*model.Message, Pagination, error) {
	query := map[string]string{
		"page":     strconv.Itoa(page),
		"pageSize": strconv.Itoa(pageSize),
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, Pagination{}, err
	}

	var resp struct {
		Messages   []apiMessage `json:"messages"`
		Pagination Pagination   `json:"pagination"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Pagination{}, fmt.Errorf("parse messages: %w", err)
	}

	msgs := make([]*model.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		msgs = append(msgs, resp.Messages[i].toModel())
	}
	return msgs, resp.Pagination, nil
}

// SendMessage sends a message through the request/response path and returns
// the confirmed server record.
func (c *Client) SendMessage(ctx context.Context, payload SendPayload) (*model.Message, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/messages", payload, nil)
	if err != nil {
		return nil, err
	}

	var msg apiMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("parse sent message: %w", err)
	}
	return msg.toModel(), nil
}

// UploadFile uploads a local file and returns its server-side description.
// Failures are typed *UploadError so the caller can surface them without an
// optimistic entry ever existing.
func (c *Client) UploadFile(ctx context.Context, localPath string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, &UploadError{Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &UploadError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files", &buf)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UploadError{Err: apiErrorFrom(resp.StatusCode, data)}
	}

	var result UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &UploadError{Err: fmt.Errorf("parse upload response: %w", err)}
	}
	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFrom(resp.StatusCode, data)
	}
	return data, nil
}

func apiErrorFrom(status int, body []byte) *APIError {
	var parsed struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	if parsed.Message == "" {
		parsed.Message = http.StatusText(status)
	}
	return &APIError{Status: status, Message: parsed.Message}
}
