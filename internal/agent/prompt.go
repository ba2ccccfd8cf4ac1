// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/session"
)

const baseInstructions = `You are a helpful assistant living inside a group chat.
You decide whether a message deserves a reply. To reply, call the send_message tool; plain text output is never delivered to the chat.
Stay brief and conversational. If you have nothing useful to add, do nothing.`

// buildSystemPrompt combines the base instructions with the chat's
// configuration and the current timestamp.
func buildSystemPrompt(cfg session.ChatConfig) string {
	var b strings.Builder
	b.WriteString(baseInstructions)

	if cfg.CustomPrompt != nil && *cfg.CustomPrompt != "" {
		b.WriteString("\n\nChat instructions: ")
		b.WriteString(*cfg.CustomPrompt)
	}
	if cfg.Language != nil && *cfg.Language != "" {
		b.WriteString("\nAlways reply in ")
		b.WriteString(*cfg.Language)
		b.WriteString(".")
	}
	if cfg.Personality != nil && *cfg.Personality != "" {
		b.WriteString("\nPersonality: ")
		b.WriteString(*cfg.Personality)
	}

	b.WriteString("\n\nCurrent time: ")
	b.WriteString(time.Now().Format("Monday, 2 January 2006 15:04 MST"))
	return b.String()
}

// buildUserTurn wraps an inbound message into a canonical user turn: a
// structured metadata header, the free-text body, and an optional image part.
func buildUserTurn(turn UserTurn) llm.Turn {
	var b strings.Builder
	fmt.Fprintf(&b, "[chat %s] [from %s]", turn.ChatID, turn.Sender)
	if turn.ReplyTo != "" {
		fmt.Fprintf(&b, " [in reply to: %s]", turn.ReplyTo)
	}
	b.WriteString("\n")
	b.WriteString(turn.Text)

	out := llm.Turn{Role: llm.RoleUser, Content: b.String()}
	if turn.ImageURL != "" {
		out.Parts = []llm.Part{
			{Text: b.String()},
			{Image: &llm.ImagePart{URL: turn.ImageURL, Detail: turn.ImageDetail}},
		}
	}
	return out
}

// historyTurns maps recorded history to canonical turns so the model sees
// the recent transcript. Leading assistant entries are dropped: the history
// window can open mid-exchange, and Anthropic rejects conversations whose
// first message is assistant-role.
func historyTurns(entries []session.HistoryEntry) []llm.Turn {
	for len(entries) > 0 && entries[0].Role == "assistant" {
		entries = entries[1:]
	}

	turns := make([]llm.Turn, 0, len(entries))
	for _, e := range entries {
		role := llm.RoleUser
		content := e.Content
		if e.Role == "assistant" {
			role = llm.RoleAssistant
		} else if e.Sender != "" {
			content = fmt.Sprintf("[from %s] %s", e.Sender, e.Content)
		}
		turns = append(turns, llm.Turn{Role: role, Content: content})
	}
	return turns
}
