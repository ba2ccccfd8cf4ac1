// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"fmt"
	"time"

	"github.com/balibots/balijarbas/internal/llm"
)

// scheduleTaskParams holds parameters for the schedule_task tool.
type scheduleTaskParams struct {
	Prompt string `json:"prompt" description:"what the assistant should do when the task fires"`
	At     string `json:"at,omitempty" description:"timestamp for a one-time task, e.g. '2026-09-01 18:30' or RFC3339"`
	Cron   string `json:"cron,omitempty" description:"cron expression for a recurring task, e.g. '0 9 * * MON'"`
}

// taskIDParams holds the ID parameter for cancel_scheduled_task.
type taskIDParams struct {
	ID string `json:"id" description:"the ID of the scheduled task"`
}

// listParams is the empty parameter set for listing tools.
type listParams struct{}

func (d *Dispatcher) handleScheduleTask(call llm.ToolCall, caller Caller) string {
	var params scheduleTaskParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.Prompt == "" {
		return errorResult("prompt is required")
	}

	var trigger string
	recurring := false
	switch {
	case params.Cron != "" && params.At != "":
		return errorResult("provide either 'at' or 'cron', not both")
	case params.Cron != "":
		trigger = params.Cron
		recurring = true
	case params.At != "":
		trigger = params.At
	default:
		return errorResult("either 'at' or 'cron' is required")
	}

	inv, err := d.sched.Create(caller.ChatID, params.Prompt, trigger, recurring, caller.Sender)
	if err != nil {
		return errorResult(err.Error())
	}

	return successResult(map[string]interface{}{
		"id":       inv.ID,
		"next_run": inv.NextRun.Format(time.RFC3339),
	})
}

func (d *Dispatcher) handleListScheduledTasks(caller Caller) string {
	invs := d.sched.List(caller.ChatID)

	tasks := make([]map[string]interface{}, 0, len(invs))
	for _, inv := range invs {
		task := map[string]interface{}{
			"id":        inv.ID,
			"prompt":    inv.Prompt,
			"recurring": inv.Recurring,
			"next_run":  inv.NextRun.Format(time.RFC3339),
		}
		if inv.Recurring {
			task["cron"] = inv.Schedule
		}
		tasks = append(tasks, task)
	}
	return successResult(map[string]interface{}{"tasks": tasks})
}

func (d *Dispatcher) handleCancelScheduledTask(call llm.ToolCall, caller Caller) string {
	var params taskIDParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.ID == "" {
		return errorResult("id is required")
	}

	if err := d.sched.Cancel(params.ID, caller.ChatID); err != nil {
		return errorResult(err.Error())
	}
	return successResult(map[string]interface{}{"canceled": params.ID})
}
