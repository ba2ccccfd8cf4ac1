// SPDX-License-Identifier: AGPL-3.0-only
package session

import (
	"fmt"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, historyLimit int) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"), historyLimit)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strptr(s string) *string { return &s }

func TestConfigDefaultsToUnset(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	cfg, err := h.Config()
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if cfg.CustomPrompt != nil || cfg.Language != nil || cfg.Personality != nil {
		t.Error("Expected all fields unset for a fresh chat")
	}
}

func TestApplyConfigPartialUpdate(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	cfg, err := h.ApplyConfig(ConfigPatch{
		Language:    strptr("pt"),
		SetLanguage: true,
		Personality:    strptr("pirate"),
		SetPersonality: true,
	})
	if err != nil {
		t.Fatalf("ApplyConfig failed: %v", err)
	}
	if cfg.Language == nil || *cfg.Language != "pt" {
		t.Error("Expected language pt")
	}

	// An omitted field must not disturb stored values.
	cfg, err = h.ApplyConfig(ConfigPatch{
		CustomPrompt:    strptr("always answer in haiku"),
		SetCustomPrompt: true,
	})
	if err != nil {
		t.Fatalf("ApplyConfig failed: %v", err)
	}
	if cfg.Language == nil || *cfg.Language != "pt" {
		t.Error("Expected omitted language to keep its stored value")
	}
	if cfg.Personality == nil || *cfg.Personality != "pirate" {
		t.Error("Expected omitted personality to keep its stored value")
	}
	if cfg.CustomPrompt == nil || *cfg.CustomPrompt != "always answer in haiku" {
		t.Error("Expected custom prompt to be set")
	}
}

func TestApplyConfigExplicitClear(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	if _, err := h.ApplyConfig(ConfigPatch{Language: strptr("fr"), SetLanguage: true}); err != nil {
		t.Fatal(err)
	}

	// A set field with a nil value clears it, unlike an omitted field.
	cfg, err := h.ApplyConfig(ConfigPatch{SetLanguage: true})
	if err != nil {
		t.Fatalf("ApplyConfig failed: %v", err)
	}
	if cfg.Language != nil {
		t.Errorf("Expected language cleared, got %q", *cfg.Language)
	}

	cfg, err = h.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != nil {
		t.Error("Expected the clear to persist")
	}
}

func TestResetConfig(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	if _, err := h.ApplyConfig(ConfigPatch{
		CustomPrompt: strptr("x"), SetCustomPrompt: true,
		Language: strptr("de"), SetLanguage: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.ResetConfig(); err != nil {
		t.Fatalf("ResetConfig failed: %v", err)
	}
	cfg, err := h.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CustomPrompt != nil || cfg.Language != nil || cfg.Personality != nil {
		t.Error("Expected all fields unset after reset")
	}
}

func TestNotesLifecycle(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	n1, err := h.AddNote("food", "likes ramen", "alice")
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	n2, err := h.AddNote("food", "allergic to peanuts", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.AddNote("travel", "prefers trains", "alice"); err != nil {
		t.Fatal(err)
	}
	if n1.ID == n2.ID {
		t.Fatal("Expected unique note IDs")
	}

	food, err := h.Notes("food")
	if err != nil {
		t.Fatal(err)
	}
	if len(food) != 2 {
		t.Fatalf("Expected 2 food notes, got %d", len(food))
	}
	if food[0].Content != "likes ramen" {
		t.Error("Expected notes ordered oldest first")
	}

	all, err := h.Notes("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 notes across categories, got %d", len(all))
	}

	ok, err := h.RemoveNote(n1.ID)
	if err != nil || !ok {
		t.Fatalf("Expected removal to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = h.RemoveNote(n1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Expected second removal to report not found")
	}
}

func TestRemoveNoteScopedToChat(t *testing.T) {
	store := newTestStore(t, 0)
	h1 := store.Handle("chat-1")
	h2 := store.Handle("chat-2")

	note, err := h1.AddNote("food", "likes ramen", "alice")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := h2.RemoveNote(note.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Expected removal from another chat to fail")
	}
	notes, _ := h1.Notes("")
	if len(notes) != 1 {
		t.Error("Expected the note to survive a cross-chat removal attempt")
	}
}

func TestCategoryDisappearsWithLastNote(t *testing.T) {
	h := newTestStore(t, 0).Handle("chat-1")

	note, err := h.AddNote("fitness", "runs on tuesdays", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.RemoveNote(note.ID); err != nil {
		t.Fatal(err)
	}
	notes, err := h.Notes("fitness")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Error("Expected an emptied category to vanish")
	}
}

func TestHistoryRetentionLimit(t *testing.T) {
	h := newTestStore(t, 5).Handle("chat-1")

	for i := 0; i < 8; i++ {
		if err := h.AppendHistory("user", "alice", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	entries, err := h.RecentHistory(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("Expected history trimmed to 5 entries, got %d", len(entries))
	}
	if entries[0].Content != "message 3" || entries[4].Content != "message 7" {
		t.Error("Expected the newest entries, oldest first")
	}

	// A smaller explicit limit returns the tail of the window.
	entries, err = h.RecentHistory(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Content != "message 6" {
		t.Error("Expected the 2 most recent entries")
	}
}

func TestClearRemovesAllChatState(t *testing.T) {
	store := newTestStore(t, 0)
	h := store.Handle("chat-1")
	other := store.Handle("chat-2")

	h.ApplyConfig(ConfigPatch{Language: strptr("es"), SetLanguage: true})
	h.AddNote("food", "likes ramen", "alice")
	h.AppendHistory("user", "alice", "hello")
	other.AddNote("food", "hates cilantro", "bob")

	if err := h.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	cfg, _ := h.Config()
	if cfg.Language != nil {
		t.Error("Expected config cleared")
	}
	notes, _ := h.Notes("")
	if len(notes) != 0 {
		t.Error("Expected notes cleared")
	}
	entries, _ := h.RecentHistory(0)
	if len(entries) != 0 {
		t.Error("Expected history cleared")
	}
	otherNotes, _ := other.Notes("")
	if len(otherNotes) != 1 {
		t.Error("Expected other chats untouched")
	}
}
