package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/eternisai/chat-relay/internal/config"
	"github.com/eternisai/chat-relay/internal/conversation"
)

func newTestStore(t *testing.T) (*SessionStore, *Database) {
	t.Helper()

	db, err := InitDatabase(config.SessionBackendSQLite, ":memory:", Options{})
	if err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewSessionStore(db), db
}

func sampleState() *conversation.State {
	state := conversation.NewState()
	state.Put(conversation.Conversation{
		ID:    "chat-1",
		Title: "Rome Travel Plans",
		History: []conversation.Message{
			conversation.SystemMessage("sys"),
			{Role: conversation.RoleUser, Content: "plan a trip"},
			{Role: conversation.RoleAssistant, Content: "sure"},
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	state.SetCredentials(conversation.Credentials{OpenAIAPIKey: "sk-secret", GoogleAPIKey: "AIza-secret"})
	return state
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.Save(ctx, "s1", sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CurrentChatID != "chat-1" {
		t.Errorf("expected current chat-1, got %q", loaded.CurrentChatID)
	}
	conv := loaded.Chats["chat-1"]
	if conv.Title != "Rome Travel Plans" || len(conv.History) != 3 {
		t.Errorf("unexpected conversation %+v", conv)
	}
	if loaded.OpenAIAPIKey != "sk-secret" || loaded.GoogleAPIKey != "AIza-secret" {
		t.Errorf("credentials not restored: %+v", loaded.Credentials())
	}
	if loaded.Dirty() {
		t.Error("loaded state should be clean")
	}
}

func TestSessionStore_NeverPersistsCredentials(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	if err := store.Save(ctx, "s1", sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var raw string
	if err := db.DB.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = $1`, "s1").Scan(&raw); err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.Contains(raw, "sk-secret") || strings.Contains(raw, "AIza-secret") {
		t.Errorf("credentials written to the database: %s", raw)
	}

	// A fresh store over the same rows models a restart.
	restarted := NewSessionStore(db)
	loaded, err := restarted.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.OpenAIAPIKey != "" || loaded.GoogleAPIKey != "" {
		t.Error("credentials survived a restart")
	}
	if _, ok := loaded.Chats["chat-1"]; !ok {
		t.Error("conversations should survive a restart")
	}
}

func TestSessionStore_LoadUnknown(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Chats == nil || len(state.Chats) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestSessionStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	state := sampleState()
	store.Save(ctx, "s1", state)

	state.Rename("chat-1", "Renamed")
	state.SetCredentials(conversation.Credentials{})
	if err := store.Save(ctx, "s1", state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _ := store.Load(ctx, "s1")
	if loaded.Chats["chat-1"].Title != "Renamed" {
		t.Errorf("expected overwrite, got %q", loaded.Chats["chat-1"].Title)
	}
	if loaded.OpenAIAPIKey != "" {
		t.Error("cleared credentials should stay cleared")
	}
}

func TestSessionStore_DeleteAndSweep(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	store.Save(ctx, "old", sampleState())
	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	store.Save(ctx, "new", sampleState())
	store.Save(ctx, "gone", sampleState())

	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	removed, err := store.Sweep(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 swept, got %d", removed)
	}

	old, _ := store.Load(ctx, "old")
	if len(old.Chats) != 0 || old.OpenAIAPIKey != "" {
		t.Error("swept session should be gone with its credentials")
	}
	kept, _ := store.Load(ctx, "new")
	if len(kept.Chats) != 1 {
		t.Error("recent session should survive the sweep")
	}
	gone, _ := store.Load(ctx, "gone")
	if len(gone.Chats) != 0 || gone.GoogleAPIKey != "" {
		t.Error("deleted session should be gone with its credentials")
	}
}

func TestInitDatabase_UnknownBackend(t *testing.T) {
	if _, err := InitDatabase(config.SessionBackendMemory, "", Options{}); err == nil {
		t.Error("expected memory backend to be rejected")
	}
}
