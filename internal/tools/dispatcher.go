// SPDX-License-Identifier: AGPL-3.0-only

// Package tools holds the canonical tool catalog and routes model-requested
// tool invocations to their handlers. Handlers dispatch side effects against
// the conversation's session state, the scheduler or the capability backend,
// and always return a serialized JSON outcome.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/balibots/balijarbas/internal/capability"
	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/search"
	"github.com/balibots/balijarbas/internal/session"
)

// Caller identifies who initiated the turn a tool call belongs to.
type Caller struct {
	ChatID string
	Sender string
}

// Dispatcher routes tool calls by exact name match against a fixed catalog.
type Dispatcher struct {
	sched      *scheduler.Scheduler
	capability *capability.Client
	search     *search.Client
	logger     *logging.Logger

	// reduced drops the scheduling, notes and config tools. Scheduled
	// invocations run with a reduced dispatcher so a fired task cannot
	// chain-schedule more tasks.
	reduced bool
}

// NewDispatcher creates the full-catalog dispatcher. capClient and
// searchClient may be nil; their tools are then absent from the catalog.
func NewDispatcher(sched *scheduler.Scheduler, capClient *capability.Client, searchClient *search.Client, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Dispatcher{
		sched:      sched,
		capability: capClient,
		search:     searchClient,
		logger:     logger,
	}
}

// Reduced returns a dispatcher limited to capability and web-search tools.
func (d *Dispatcher) Reduced() *Dispatcher {
	r := *d
	r.reduced = true
	return &r
}

// Catalog returns the tool declarations offered to the model.
func (d *Dispatcher) Catalog() []llm.ToolDecl {
	var decls []llm.ToolDecl

	if d.capability != nil {
		decls = append(decls, d.capability.Tools()...)
	}
	if d.search != nil {
		decls = append(decls, llm.ToolDecl{
			Kind:        llm.KindWebSearch,
			Name:        "web_search",
			Description: "Searches the web and returns titles, URLs and snippets",
			Parameters:  buildSchema(webSearchParams{}),
		})
	}
	if d.reduced {
		return decls
	}

	for _, def := range []struct {
		name, description string
		params            interface{}
	}{
		{"schedule_task", "Schedules a future task for this chat. Provide 'at' (timestamp) for a one-time task or 'cron' (cron expression) for a recurring one.", scheduleTaskParams{}},
		{"list_scheduled_tasks", "Lists this chat's pending scheduled tasks", listParams{}},
		{"cancel_scheduled_task", "Cancels a scheduled task by ID", taskIDParams{}},
		{"add_note", "Saves a note under a category for this chat", addNoteParams{}},
		{"list_notes", "Lists this chat's notes, optionally filtered by category", listNotesParams{}},
		{"remove_note", "Removes a note by ID", noteIDParams{}},
		{"set_chat_config", "Updates this chat's configuration. Omitted fields are unchanged; fields set to null are cleared.", setChatConfigParams{}},
		{"get_chat_config", "Returns this chat's current configuration", listParams{}},
		{"reset_chat_config", "Resets this chat's configuration to defaults", listParams{}},
	} {
		decls = append(decls, llm.ToolDecl{
			Kind:        llm.KindFunction,
			Name:        def.name,
			Description: def.description,
			Parameters:  buildSchema(def.params),
		})
	}
	return decls
}

// IsSendMessage reports whether a tool call is the capability backend's
// designated send/acknowledge action.
func (d *Dispatcher) IsSendMessage(name string) bool {
	return d.capability != nil && name == capability.SendMessageTool
}

// Dispatch routes one tool call and returns its serialized result. Unmatched
// names produce an error payload rather than failing the call, keeping the
// decision loop's control flow uniform.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall, h *session.Handle, caller Caller) string {
	d.logger.Debugf("Dispatching tool %s for chat %s", call.Name, caller.ChatID)

	if !d.reduced {
		switch call.Name {
		case "schedule_task":
			return d.handleScheduleTask(call, caller)
		case "list_scheduled_tasks":
			return d.handleListScheduledTasks(caller)
		case "cancel_scheduled_task":
			return d.handleCancelScheduledTask(call, caller)
		case "add_note":
			return d.handleAddNote(call, h, caller)
		case "list_notes":
			return d.handleListNotes(call, h)
		case "remove_note":
			return d.handleRemoveNote(call, h)
		case "set_chat_config":
			return d.handleSetChatConfig(call, h)
		case "get_chat_config":
			return d.handleGetChatConfig(h)
		case "reset_chat_config":
			return d.handleResetChatConfig(h)
		}
	}

	if call.Name == "web_search" && d.search != nil {
		return d.handleWebSearch(ctx, call)
	}

	if d.capability != nil && d.hasCapabilityTool(call.Name) {
		return d.handleCapabilityCall(ctx, call)
	}

	return errorResult(fmt.Sprintf("unknown tool: %s", call.Name))
}

func (d *Dispatcher) hasCapabilityTool(name string) bool {
	for _, t := range d.capability.Tools() {
		if t.Name == name {
			return true
		}
	}
	return false
}

// handleCapabilityCall forwards a tool call to the capability backend.
// Backend failures are surfaced to the model as result data.
func (d *Dispatcher) handleCapabilityCall(ctx context.Context, call llm.ToolCall) string {
	var args map[string]interface{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	out, err := d.capability.Call(ctx, call.Name, args)
	if err != nil {
		d.logger.Warnf("Capability call %s failed: %v", call.Name, err)
		return errorResult(err.Error())
	}
	return out
}

// webSearchParams holds parameters for the web_search tool.
type webSearchParams struct {
	Query string `json:"query" description:"the search query"`
	Count int    `json:"count,omitempty" description:"number of results to return (default 5)"`
}

func (d *Dispatcher) handleWebSearch(ctx context.Context, call llm.ToolCall) string {
	var params webSearchParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.Query == "" {
		return errorResult("query is required")
	}

	results, err := d.search.Search(ctx, params.Query, params.Count)
	if err != nil {
		d.logger.Warnf("Web search failed: %v", err)
		return errorResult(err.Error())
	}
	return successResult(map[string]interface{}{"results": results})
}
