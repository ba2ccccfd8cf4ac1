// SPDX-License-Identifier: AGPL-3.0-only

// Package bridge is the turn-initiation entry point: it receives inbound
// platform messages and starts independent decision-loop turns. Replies
// never flow back through here; the agent delivers them via capability
// calls.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/balibots/balijarbas/internal/agent"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/session"
)

// InboundMessage is one delivery from the messaging-platform collaborator.
type InboundMessage struct {
	ChatID   string `json:"chat_id"`
	Sender   string `json:"sender"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`

	// Event is "message" (default) or "left_chat", which tears down the
	// conversation's stored state and pending scheduled invocations.
	Event string `json:"event,omitempty"`
}

// Bridge wires inbound deliveries to the orchestrator.
type Bridge struct {
	orch   *agent.Orchestrator
	store  *session.Store
	sched  *scheduler.Scheduler
	logger *logging.Logger
}

// New creates a bridge.
func New(orch *agent.Orchestrator, store *session.Store, sched *scheduler.Scheduler, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Bridge{orch: orch, store: store, sched: sched, logger: logger}
}

// HandleMessage processes one inbound delivery synchronously. Turns for the
// same chat are not serialized against each other; concurrent deliveries run
// as independent turns.
func (b *Bridge) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("inbound message missing chat_id")
	}

	if msg.Event == "left_chat" {
		return b.teardownChat(msg.ChatID)
	}

	if msg.Text == "" && msg.ImageURL == "" {
		return fmt.Errorf("inbound message has no content")
	}

	return b.orch.RunTurn(ctx, agent.UserTurn{
		ChatID:   msg.ChatID,
		Sender:   msg.Sender,
		Text:     msg.Text,
		ImageURL: msg.ImageURL,
		ReplyTo:  msg.ReplyTo,
	})
}

// teardownChat drops the chat's persisted state and cancels its pending
// scheduled invocations.
func (b *Bridge) teardownChat(chatID string) error {
	canceled := b.sched.CancelAll(chatID)
	b.logger.Infof("Tearing down chat %s (%d scheduled invocations canceled)", chatID, canceled)
	return b.store.Handle(chatID).Clear()
}

// Handler returns the webhook endpoint. Each accepted delivery runs as its
// own goroutine; the response never waits for the turn.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbound", func(w http.ResponseWriter, r *http.Request) {
		var msg InboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if msg.ChatID == "" {
			http.Error(w, "chat_id is required", http.StatusBadRequest)
			return
		}

		go func() {
			if err := b.HandleMessage(context.Background(), msg); err != nil {
				b.logger.Errorf("Turn for chat %s failed: %v", msg.ChatID, err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}
