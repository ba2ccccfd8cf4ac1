// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/session"
)

type nopRunner struct{}

func (nopRunner) RunScheduled(ctx context.Context, inv *scheduler.Invocation) error { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Handle) {
	t.Helper()
	logger := logging.New(logging.Options{Level: logging.Error})

	sched := scheduler.New(logger)
	sched.SetRunner(nopRunner{})
	t.Cleanup(sched.Stop)

	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.db"), 0)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	d := NewDispatcher(sched, nil, nil, logger)
	return d, store.Handle("chat-1")
}

func dispatch(t *testing.T, d *Dispatcher, name, arguments string, h *session.Handle) map[string]interface{} {
	t.Helper()
	out := d.Dispatch(context.Background(), llm.ToolCall{ID: "call_1", Name: name, Arguments: arguments},
		h, Caller{ChatID: "chat-1", Sender: "alice"})

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("Dispatch(%s) returned invalid JSON %q: %v", name, out, err)
	}
	if _, ok := payload["success"]; !ok {
		t.Fatalf("Dispatch(%s) result is missing the success flag: %s", name, out)
	}
	return payload
}

func TestDispatchUnknownToolReturnsErrorPayload(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d, "launch_rocket", `{}`, h)
	if payload["success"] != false {
		t.Error("Expected an unsuccessful payload")
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "unknown tool: launch_rocket") {
		t.Errorf("Unexpected error message: %v", payload["error"])
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d, "add_note", `{not json`, h)
	if payload["success"] != false {
		t.Error("Expected malformed arguments to produce an error payload, not a failure")
	}
}

func TestCatalogReducedDropsFunctionTools(t *testing.T) {
	d, _ := newTestDispatcher(t)

	full := d.Catalog()
	if len(full) != 9 {
		t.Errorf("Expected 9 function tools without capability or search, got %d", len(full))
	}
	names := map[string]bool{}
	for _, decl := range full {
		names[decl.Name] = true
	}
	for _, want := range []string{"schedule_task", "add_note", "set_chat_config"} {
		if !names[want] {
			t.Errorf("Expected %s in the full catalog", want)
		}
	}

	if got := d.Reduced().Catalog(); len(got) != 0 {
		t.Errorf("Expected an empty reduced catalog without capability or search, got %d tools", len(got))
	}
	// Reducing must not mutate the original.
	if got := d.Catalog(); len(got) != 9 {
		t.Errorf("Expected the full dispatcher untouched, got %d tools", len(got))
	}
}

func TestReducedDispatcherRejectsFunctionTools(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d.Reduced(), "add_note", `{"category":"food","content":"x"}`, h)
	if payload["success"] != false {
		t.Error("Expected the reduced dispatcher to treat function tools as unknown")
	}
}

func TestScheduleTaskValidation(t *testing.T) {
	d, h := newTestDispatcher(t)

	cases := []struct {
		name string
		args string
		want string
	}{
		{"missing prompt", `{"at":"2030-01-01 10:00"}`, "prompt is required"},
		{"missing trigger", `{"prompt":"do it"}`, "either 'at' or 'cron' is required"},
		{"both triggers", `{"prompt":"do it","at":"2030-01-01 10:00","cron":"@daily"}`, "not both"},
		{"past timestamp", `{"prompt":"do it","at":"2001-01-01 10:00"}`, "future"},
		{"bad cron", `{"prompt":"do it","cron":"never"}`, "invalid recurrence expression"},
	}
	for _, tc := range cases {
		payload := dispatch(t, d, "schedule_task", tc.args, h)
		if payload["success"] != false {
			t.Errorf("%s: expected failure", tc.name)
			continue
		}
		if msg, _ := payload["error"].(string); !strings.Contains(msg, tc.want) {
			t.Errorf("%s: expected error containing %q, got %q", tc.name, tc.want, msg)
		}
	}
}

func TestScheduleListCancelRoundTrip(t *testing.T) {
	d, h := newTestDispatcher(t)

	at := time.Now().Add(time.Hour).Format("2006-01-02 15:04")
	payload := dispatch(t, d, "schedule_task", `{"prompt":"remind me","at":"`+at+`"}`, h)
	if payload["success"] != true {
		t.Fatalf("Expected schedule to succeed: %v", payload["error"])
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("Expected a task ID in the result")
	}

	payload = dispatch(t, d, "list_scheduled_tasks", `{}`, h)
	tasks, _ := payload["tasks"].([]interface{})
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 listed task, got %d", len(tasks))
	}

	payload = dispatch(t, d, "cancel_scheduled_task", `{"id":"`+id+`"}`, h)
	if payload["success"] != true {
		t.Fatalf("Expected cancel to succeed: %v", payload["error"])
	}

	payload = dispatch(t, d, "list_scheduled_tasks", `{}`, h)
	tasks, _ = payload["tasks"].([]interface{})
	if len(tasks) != 0 {
		t.Errorf("Expected no tasks after cancel, got %d", len(tasks))
	}
}

func TestAddNoteNormalizesCategory(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d, "add_note", `{"category":"  Shopping ","content":"milk"}`, h)
	if payload["success"] != true {
		t.Fatalf("Expected add_note to succeed: %v", payload["error"])
	}

	payload = dispatch(t, d, "list_notes", `{"category":"shopping"}`, h)
	notes, _ := payload["notes"].(map[string]interface{})
	bucket, _ := notes["shopping"].([]interface{})
	if len(bucket) != 1 {
		t.Error("Expected the note filed under the normalized category key")
	}
	if _, exists := notes["  Shopping "]; exists {
		t.Error("Expected no bucket under the raw category key")
	}
}

func TestRemoveNoteUnknownID(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d, "remove_note", `{"id":"nope"}`, h)
	if payload["success"] != false {
		t.Error("Expected removal of an unknown note to fail")
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "not found") {
		t.Errorf("Unexpected error message: %q", msg)
	}
}

func TestSetChatConfigNullVersusOmitted(t *testing.T) {
	d, h := newTestDispatcher(t)

	payload := dispatch(t, d, "set_chat_config", `{"language":"pt","personality":"pirate"}`, h)
	if payload["success"] != true {
		t.Fatalf("Expected set to succeed: %v", payload["error"])
	}

	// Omitting personality keeps it; setting language to null clears it.
	payload = dispatch(t, d, "set_chat_config", `{"language":null}`, h)
	cfg, _ := payload["config"].(map[string]interface{})
	if cfg["language"] != nil {
		t.Errorf("Expected language cleared by explicit null, got %v", cfg["language"])
	}
	if cfg["personality"] != "pirate" {
		t.Errorf("Expected omitted personality untouched, got %v", cfg["personality"])
	}

	payload = dispatch(t, d, "get_chat_config", `{}`, h)
	cfg, _ = payload["config"].(map[string]interface{})
	if cfg["language"] != nil || cfg["personality"] != "pirate" {
		t.Error("Expected the null/omitted distinction to persist")
	}

	payload = dispatch(t, d, "reset_chat_config", `{}`, h)
	if payload["success"] != true {
		t.Fatal("Expected reset to succeed")
	}
	payload = dispatch(t, d, "get_chat_config", `{}`, h)
	cfg, _ = payload["config"].(map[string]interface{})
	if cfg["personality"] != nil {
		t.Error("Expected all fields unset after reset")
	}
}
