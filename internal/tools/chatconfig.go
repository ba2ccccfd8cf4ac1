// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/session"
)

// setChatConfigParams holds parameters for the set_chat_config tool. All
// fields are optional; the raw JSON decides whether a field was provided.
type setChatConfigParams struct {
	CustomPrompt *string `json:"custom_prompt,omitempty" description:"extra instructions prepended to the system prompt; null to clear"`
	Language     *string `json:"language,omitempty" description:"preferred reply language; null to clear"`
	Personality  *string `json:"personality,omitempty" description:"assistant personality; null to clear"`
}

// handleSetChatConfig performs a partial-field update. A field omitted from
// the request leaves its current value untouched; a field explicitly set to
// null clears it. The distinction comes from key presence in the raw JSON,
// since a decoded nil pointer cannot tell the two apart.
func (d *Dispatcher) handleSetChatConfig(call llm.ToolCall, h *session.Handle) string {
	var params setChatConfigParams
	if err := decodeArgs(call.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}

	var raw map[string]json.RawMessage
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	patch := session.ConfigPatch{}
	if _, ok := raw["custom_prompt"]; ok {
		patch.SetCustomPrompt = true
		patch.CustomPrompt = params.CustomPrompt
	}
	if _, ok := raw["language"]; ok {
		patch.SetLanguage = true
		patch.Language = params.Language
	}
	if _, ok := raw["personality"]; ok {
		patch.SetPersonality = true
		patch.Personality = params.Personality
	}

	cfg, err := h.ApplyConfig(patch)
	if err != nil {
		d.logger.Warnf("Failed to update config for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to update chat configuration")
	}
	return successResult(map[string]interface{}{"config": cfg})
}

func (d *Dispatcher) handleGetChatConfig(h *session.Handle) string {
	cfg, err := h.Config()
	if err != nil {
		d.logger.Warnf("Failed to read config for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to read chat configuration")
	}
	return successResult(map[string]interface{}{"config": cfg})
}

func (d *Dispatcher) handleResetChatConfig(h *session.Handle) string {
	if err := h.ResetConfig(); err != nil {
		d.logger.Warnf("Failed to reset config for chat %s: %v", h.ChatID(), err)
		return errorResult("failed to reset chat configuration")
	}
	return successResult(map[string]interface{}{"config": session.ChatConfig{}})
}
