package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/model"
)

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations/C1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %q, want 2", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"messages": [
				{"id":"M1","conversationId":"C1","senderId":"U2","content":"hello","type":"text","status":"read","createdAt":"2026-08-01T10:00:00Z"},
				{"id":"M2","conversationId":"C1","senderId":"U1","content":"","type":"image","status":"delivered","createdAt":"2026-08-01T10:01:00Z",
				 "attachments":[{"fileId":"F1","fileName":"cat.png","fileSize":42,"mimeType":"image/png","downloadUrl":"/f/F1"}]}
			],
			"pagination": {"page":2,"pageSize":20,"total":55,"hasMore":true}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	msgs, page, err := c.ListMessages(context.Background(), "C1", 2, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Status != model.StatusRead {
		t.Errorf("status = %q, want read", msgs[0].Status)
	}
	if msgs[0].CreatedAt == 0 {
		t.Error("createdAt not parsed")
	}
	if len(msgs[1].Attachments) != 1 || msgs[1].Attachments[0].FileID != "F1" {
		t.Errorf("attachments = %+v", msgs[1].Attachments)
	}
	if !page.HasMore || page.Total != 55 {
		t.Errorf("pagination = %+v", page)
	}
}

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "group" {
			t.Errorf("type query = %q, want group", got)
		}
		_, _ = w.Write([]byte(`{"conversations":[{"id":"C1","type":"group","name":"team"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	convs, err := c.ListConversations(context.Background(), ConversationFilter{Type: "group"})
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].Name != "team" {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var payload SendPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload.LocalID != "L1" || payload.Content != "hi" {
			t.Errorf("payload = %+v", payload)
		}
		_, _ = w.Write([]byte(`{"id":"M9","localId":"L1","conversationId":"C1","content":"hi","type":"text","status":"sent","createdAt":"2026-08-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	msg, err := c.SendMessage(context.Background(), SendPayload{
		ConversationID: "C1", Content: "hi", Type: "text", LocalID: "L1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "M9" || msg.LocalID != "L1" {
		t.Errorf("message = %+v", msg)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not a participant"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	_, err := c.SendMessage(context.Background(), SendPayload{ConversationID: "C1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Message != "not a participant" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = f.Close() }()
		if header.Filename != "note.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		_, _ = w.Write([]byte(`{"fileId":"F7","fileName":"abc.txt","originalName":"note.txt","fileSize":5,"mimeType":"text/plain","downloadUrl":"/f/F7"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL, "tok", zap.NewNop())
	result, err := c.UploadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.FileID != "F7" {
		t.Errorf("fileId = %q, want F7", result.FileID)
	}
	att := result.Attachment()
	if att.FileName != "note.txt" {
		t.Errorf("attachment name = %q, want original name", att.FileName)
	}
}

func TestUploadFileMissingLocalFile(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "tok", zap.NewNop())
	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"))
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("error type = %T, want *UploadError", err)
	}
}

func TestUploadFileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"message":"file too large"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, []byte("xxxx"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL, "tok", zap.NewNop())
	_, err := c.UploadFile(context.Background(), path)
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("error type = %T, want *UploadError", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusRequestEntityTooLarge {
		t.Errorf("wrapped error = %v", err)
	}
}
