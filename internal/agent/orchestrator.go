// SPDX-License-Identifier: AGPL-3.0-only

// Package agent drives the decision loop: it alternates model inference and
// tool dispatch for one conversational turn until the model produces a
// terminal action or the tool-call budget runs out.
package agent

import (
	"context"
	"encoding/json"

	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/session"
	"github.com/balibots/balijarbas/internal/tools"
)

// UserTurn is one inbound conversational turn.
type UserTurn struct {
	ChatID      string
	Sender      string
	Text        string
	ImageURL    string
	ImageDetail string
	ReplyTo     string
}

// Orchestrator runs decision loops against a shared provider and dispatcher.
type Orchestrator struct {
	provider   llm.Provider
	dispatcher *tools.Dispatcher
	store      *session.Store
	cfg        *config.Config
	logger     *logging.Logger
}

// New creates an orchestrator. The provider and dispatcher are shared
// read-only across all turns.
func New(provider llm.Provider, dispatcher *tools.Dispatcher, store *session.Store, cfg *config.Config, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Orchestrator{
		provider:   provider,
		dispatcher: dispatcher,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunTurn executes one full decision loop for an inbound message. Any
// provider failure aborts the turn; the caller owns user-facing fallback.
func (o *Orchestrator) RunTurn(ctx context.Context, turn UserTurn) error {
	h := o.store.Handle(turn.ChatID)

	chatCfg, err := h.Config()
	if err != nil {
		return err
	}

	history, err := h.RecentHistory(o.cfg.Session.HistoryLimit)
	if err != nil {
		return err
	}

	turns := historyTurns(history)
	turns = append(turns, buildUserTurn(turn))

	caller := tools.Caller{ChatID: turn.ChatID, Sender: turn.Sender}
	sent, err := o.runLoop(ctx, h, caller, buildSystemPrompt(chatCfg), turns, o.dispatcher, o.cfg.AI.MaxToolCalls)

	// Best-effort history bookkeeping, never fatal. The inbound message is
	// recorded even when the turn aborted so the next turn sees it.
	o.recordUserMessage(h, turn)
	o.recordSentMessages(h, sent)

	return err
}

// runLoop is the Deciding/Dispatching cycle. It returns the send-message
// capability calls observed, for history bookkeeping during finalization.
func (o *Orchestrator) runLoop(ctx context.Context, h *session.Handle, caller tools.Caller, system string, turns []llm.Turn, dispatcher *tools.Dispatcher, budget int) ([]llm.ToolCall, error) {
	catalog := dispatcher.Catalog()
	var sent []llm.ToolCall
	callCount := 0

	for {
		resp, err := o.provider.Complete(ctx, llm.Request{
			Model:  o.cfg.AI.Model,
			System: system,
			Turns:  turns,
			Tools:  catalog,
		})
		if err != nil {
			return sent, err
		}

		if resp.Empty() {
			o.logger.Debugf("Model returned nothing to do for chat %s", caller.ChatID)
			return sent, nil
		}
		if len(resp.ToolCalls) == 0 {
			// Text without tool calls is terminal; replies to the user
			// happen via capability calls, so there is nothing to deliver.
			o.logger.Debugf("Model finished with text only for chat %s", caller.ChatID)
			return sent, nil
		}

		// Dispatch sequentially in the order the model returned the calls;
		// later calls may assume earlier side effects already landed.
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if dispatcher.IsSendMessage(call.Name) {
				sent = append(sent, call)
			}
			out := dispatcher.Dispatch(ctx, call, h, caller)
			results = append(results, llm.ToolResult{CallID: call.ID, Content: out})
			callCount++
		}

		turns = o.provider.BuildNextInput(turns, resp, results)

		if callCount >= budget {
			o.logger.Warnf("Tool call budget (%d) exhausted for chat %s, finalizing", budget, caller.ChatID)
			return sent, nil
		}
	}
}

// recordUserMessage appends the inbound message to history. Best-effort.
func (o *Orchestrator) recordUserMessage(h *session.Handle, turn UserTurn) {
	text := turn.Text
	if text == "" && turn.ImageURL != "" {
		text = "[image]"
	}
	if text == "" {
		return
	}
	if err := h.AppendHistory("user", turn.Sender, text); err != nil {
		o.logger.Warnf("Failed to record user message for chat %s: %v", turn.ChatID, err)
	}
}

// recordSentMessages appends an assistant-authored history entry for each
// send-message action. Argument parse failures are swallowed; history
// recording is advisory, never fatal.
func (o *Orchestrator) recordSentMessages(h *session.Handle, sent []llm.ToolCall) {
	for _, call := range sent {
		var args struct {
			Text    string `json:"text"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			o.logger.Debugf("Skipping unparseable send action arguments: %v", err)
			continue
		}
		text := args.Text
		if text == "" {
			text = args.Message
		}
		if text == "" {
			continue
		}
		if err := h.AppendHistory("assistant", "", text); err != nil {
			o.logger.Warnf("Failed to record assistant message for chat %s: %v", h.ChatID(), err)
		}
	}
}
