// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"fmt"
	"strings"

	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/session"
)

// addNoteParams holds parameters for the add_note tool.
type addNoteParams struct {
	Category string `json:"category" description:"the category to file the note under, e.g. 'shopping'"`
	Content  string `json:"content" description:"the note text"`
}

// listNotesParams holds parameters for the list_notes tool.
type listNotesParams struct {
	Category string `json:"category,omitempty" description:"only list notes in this category"`
}

// noteIDParams holds the ID parameter for remove_note.
type noteIDParams struct {
	ID string `json:"id" description:"the ID of the note to remove"`
}

// normalizeCategory case-folds and trims a category key so 'Shopping ' and
// 'shopping' address the same bucket.
func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func (d *Dispatcher) handleAddNote(call llm.ToolCall, h *session.Handle, caller Caller) string {
	var params addNoteParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}

	category := normalizeCategory(params.Category)
	if category == "" {
		return errorResult("category is required")
	}
	if params.Content == "" {
		return errorResult("content is required")
	}

	note, err := h.AddNote(category, params.Content, caller.Sender)
	if err != nil {
		d.logger.Warnf("Failed to add note for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to save note")
	}
	return successResult(map[string]interface{}{"note": note})
}

func (d *Dispatcher) handleListNotes(call llm.ToolCall, h *session.Handle) string {
	var params listNotesParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}

	notes, err := h.Notes(normalizeCategory(params.Category))
	if err != nil {
		d.logger.Warnf("Failed to list notes for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to list notes")
	}

	// Group by category so empty categories can never appear.
	grouped := map[string][]session.Note{}
	for _, n := range notes {
		grouped[n.Category] = append(grouped[n.Category], n)
	}
	return successResult(map[string]interface{}{"notes": grouped})
}

func (d *Dispatcher) handleRemoveNote(call llm.ToolCall, h *session.Handle) string {
	var params noteIDParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.ID == "" {
		return errorResult("id is required")
	}

	removed, err := h.RemoveNote(params.ID)
	if err != nil {
		d.logger.Warnf("Failed to remove note for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to remove note")
	}
	if !removed {
		return errorResult(fmt.Sprintf("note %s not found", params.ID))
	}
	return successResult(map[string]interface{}{"removed": params.ID})
}
