// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"

	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/tools"
)

const scheduledInstructions = `You are executing a scheduled task for a chat.
Perform the task described below. To tell the chat anything, call the send_message tool; plain text output is never delivered.`

// RunScheduled implements scheduler.Runner. A fired invocation gets a
// reduced tool catalog (capability and web search only, so a task cannot
// chain-schedule more tasks) and a single dispatch round.
func (o *Orchestrator) RunScheduled(ctx context.Context, inv *scheduler.Invocation) error {
	h := o.store.Handle(inv.ChatID)
	caller := tools.Caller{ChatID: inv.ChatID, Sender: inv.CreatedBy}
	dispatcher := o.dispatcher.Reduced()

	turns := []llm.Turn{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("[scheduled task for chat %s]\n%s", inv.ChatID, inv.Prompt),
	}}

	resp, err := o.provider.Complete(ctx, llm.Request{
		Model:  o.cfg.AI.Model,
		System: scheduledInstructions,
		Turns:  turns,
		Tools:  dispatcher.Catalog(),
	})
	if err != nil {
		return err
	}

	var sent []llm.ToolCall
	for _, call := range resp.ToolCalls {
		if dispatcher.IsSendMessage(call.Name) {
			sent = append(sent, call)
		}
		out := dispatcher.Dispatch(ctx, call, h, caller)
		o.logger.Debugf("Scheduled invocation %s tool %s: %s", inv.ID, call.Name, out)
	}
	o.recordSentMessages(h, sent)

	o.logger.Infof("Scheduled invocation %s completed (%d tool calls)", inv.ID, len(resp.ToolCalls))
	return nil
}
