package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExport_JSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "export me")
	store.AddMessage(ctx, sess.ID, Message{Role: RoleUser, Content: "question"})
	store.AddMessage(ctx, sess.ID, Message{Role: RoleAssistant, Content: "answer"})

	data, err := store.Export(ctx, sess.ID, FormatJSON)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	var doc struct {
		Session  *Session   `json:"session"`
		Messages []*Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if doc.Session.Title != "export me" {
		t.Errorf("session title = %q", doc.Session.Title)
	}
	if len(doc.Messages) != 2 {
		t.Errorf("exported %d messages, want 2", len(doc.Messages))
	}
}

func TestExport_Text(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "notes")
	store.AddMessage(ctx, sess.ID, Message{Role: RoleUser, Content: "what is lore?"})
	store.AddMessage(ctx, sess.ID, Message{
		Role:    RoleAssistant,
		Content: "partial ans",
		Status:  StatusIncomplete,
	})

	data, err := store.Export(ctx, sess.ID, FormatText)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	text := string(data)
	if !strings.Contains(text, "user: what is lore?") {
		t.Errorf("text export missing user line:\n%s", text)
	}
	if !strings.Contains(text, "assistant: partial ans") {
		t.Errorf("text export missing assistant line:\n%s", text)
	}
	if !strings.Contains(text, "[response incomplete]") {
		t.Errorf("text export missing incomplete marker:\n%s", text)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "")
	if _, err := store.Export(ctx, sess.ID, "xml"); err == nil {
		t.Error("Export() with unknown format = nil, want error")
	}
}

func TestExport_MissingSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Export(context.Background(), 123, FormatJSON)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Export() = %v, want ErrNotFound", err)
	}
}
