// SPDX-License-Identifier: AGPL-3.0-only
package llm

import (
	"strings"

	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/errors"
)

// NewProviderFromConfig builds the Provider selected by cfg.AI.Provider.
// Construction is eager and happens once per process; the result is shared
// read-only across all turns. An unknown kind or a missing credential is a
// configuration error.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	switch strings.ToLower(cfg.AI.Provider) {
	case "anthropic":
		apiKey := cfg.AI.AnthropicAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, errors.Configuration("Anthropic API key is not set")
		}
		return NewAnthropicProvider(apiKey), nil
	case "openai", "":
		apiKey := cfg.AI.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, errors.Configuration("OpenAI API key is not set")
		}
		return NewOpenAIProvider(apiKey, cfg.AI.BaseURL), nil
	default:
		return nil, errors.Configuration("unknown provider kind: " + cfg.AI.Provider)
	}
}
