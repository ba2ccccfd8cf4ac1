// SPDX-License-Identifier: AGPL-3.0-only
package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/balibots/balijarbas/internal/agent"
	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/session"
	"github.com/balibots/balijarbas/internal/tools"
)

// silentProvider answers every inference with an empty response, so turns
// terminate immediately.
type silentProvider struct{}

func (silentProvider) Name() string { return "silent" }

func (silentProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{}, nil
}

func (silentProvider) BuildNextInput(turns []llm.Turn, resp *llm.Response, results []llm.ToolResult) []llm.Turn {
	return turns
}

type nopRunner struct{}

func (nopRunner) RunScheduled(ctx context.Context, inv *scheduler.Invocation) error { return nil }

func newTestBridge(t *testing.T) (*Bridge, *session.Store, *scheduler.Scheduler) {
	t.Helper()
	logger := logging.New(logging.Options{Level: logging.Error})

	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.db"), 0)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sched := scheduler.New(logger)
	sched.SetRunner(nopRunner{})
	t.Cleanup(sched.Stop)

	dispatcher := tools.NewDispatcher(sched, nil, nil, logger)
	orch := agent.New(silentProvider{}, dispatcher, store, config.DefaultConfig(), logger)
	return New(orch, store, sched, logger), store, sched
}

func TestHandleMessageValidation(t *testing.T) {
	b, _, _ := newTestBridge(t)
	ctx := context.Background()

	if err := b.HandleMessage(ctx, InboundMessage{Sender: "alice", Text: "hi"}); err == nil {
		t.Error("Expected an error for a missing chat_id")
	}
	if err := b.HandleMessage(ctx, InboundMessage{ChatID: "chat-1", Sender: "alice"}); err == nil {
		t.Error("Expected an error for a contentless message")
	}
	if err := b.HandleMessage(ctx, InboundMessage{ChatID: "chat-1", Sender: "alice", Text: "hi"}); err != nil {
		t.Errorf("Expected a valid message accepted: %v", err)
	}
}

func TestHandleMessageRunsTurn(t *testing.T) {
	b, store, _ := newTestBridge(t)

	err := b.HandleMessage(context.Background(), InboundMessage{ChatID: "chat-1", Sender: "alice", Text: "hello there"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	entries, err := store.Handle("chat-1").RecentHistory(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Content != "hello there" {
		t.Error("Expected the turn to record the inbound message")
	}
}

func TestLeftChatTearsDownState(t *testing.T) {
	b, store, sched := newTestBridge(t)
	h := store.Handle("chat-1")

	h.AddNote("food", "likes ramen", "alice")
	h.AppendHistory("user", "alice", "hello")
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	if _, err := sched.Create("chat-1", "task", future, false, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Create("chat-2", "survivor", future, false, "bob"); err != nil {
		t.Fatal(err)
	}

	err := b.HandleMessage(context.Background(), InboundMessage{ChatID: "chat-1", Event: "left_chat"})
	if err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	notes, _ := h.Notes("")
	if len(notes) != 0 {
		t.Error("Expected notes cleared on teardown")
	}
	entries, _ := h.RecentHistory(0)
	if len(entries) != 0 {
		t.Error("Expected history cleared on teardown")
	}
	if n := len(sched.List("chat-1")); n != 0 {
		t.Error("Expected pending invocations canceled on teardown")
	}
	if n := len(sched.List("chat-2")); n != 1 {
		t.Error("Expected other chats untouched")
	}
}

func TestHandlerAcceptsAndRejects(t *testing.T) {
	b, _, _ := newTestBridge(t)
	handler := b.Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"valid message", `{"chat_id":"chat-1","sender":"alice","text":"hi"}`, http.StatusAccepted},
		{"missing chat_id", `{"sender":"alice","text":"hi"}`, http.StatusBadRequest},
		{"malformed json", `{broken`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.name, tc.want, rec.Code)
		}
	}

	// Only POST is routed.
	req := httptest.NewRequest(http.MethodGet, "/inbound", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusAccepted {
		t.Error("Expected GET rejected")
	}
}
