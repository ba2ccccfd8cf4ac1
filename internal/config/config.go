// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the bridge.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	AI         AIConfig         `yaml:"ai"`
	Capability CapabilityConfig `yaml:"capability"`
	Search     SearchConfig     `yaml:"search"`
	Session    SessionConfig    `yaml:"session"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the inbound webhook listener settings.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AIConfig holds LLM provider settings.
type AIConfig struct {
	// Provider selects the backend: "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// APIKey is a generic key used when a provider-specific one is not set.
	APIKey          string `yaml:"api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// BaseURL overrides the OpenAI endpoint for OpenAI-compatible servers
	// (Ollama, vLLM, Groq, LiteLLM).
	BaseURL string `yaml:"base_url"`

	// Model is the default model identifier.
	Model string `yaml:"model"`

	// MaxToolCalls caps the total tool invocations across one turn.
	MaxToolCalls int `yaml:"max_tool_calls"`
}

// CapabilityConfig describes the capability-execution backend, reached as an
// MCP server either over SSE or as a spawned subprocess.
type CapabilityConfig struct {
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Endpoint    string   `yaml:"endpoint"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	BearerToken string   `yaml:"bearer_token"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	APIKey string `yaml:"api_key"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	// DBPath is the SQLite database for chat config, notes and history.
	DBPath string `yaml:"db_path"`

	// HistoryLimit is the maximum retained history entries per chat.
	HistoryLimit int `yaml:"history_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Name:    "balijarbas",
			Version: "1.0.0",
			Address: "localhost",
			Port:    8322,
		},
		AI: AIConfig{
			Provider:     "openai",
			Model:        "gpt-4o",
			MaxToolCalls: 8,
		},
		Capability: CapabilityConfig{
			Label:       "messaging",
			Description: "Messaging platform actions",
		},
		Session: SessionConfig{
			DBPath:       home + "/.balijarbas/sessions.db",
			HistoryLimit: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFile overlays cfg with values from a YAML config file.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// FromEnv overlays cfg with values from environment variables.
func FromEnv(cfg *Config) {
	if v := os.Getenv("BALIJARBAS_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("BALIJARBAS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BALIJARBAS_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicAPIKey = v
	}
	if v := os.Getenv("BALIJARBAS_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("BALIJARBAS_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("BALIJARBAS_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AI.MaxToolCalls = n
		}
	}
	if v := os.Getenv("BALIJARBAS_CAPABILITY_ENDPOINT"); v != "" {
		cfg.Capability.Endpoint = v
	}
	if v := os.Getenv("BALIJARBAS_CAPABILITY_TOKEN"); v != "" {
		cfg.Capability.BearerToken = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("BALIJARBAS_DB_PATH"); v != "" {
		cfg.Session.DBPath = v
	}
	if v := os.Getenv("BALIJARBAS_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Session.HistoryLimit = n
		}
	}
	if v := os.Getenv("BALIJARBAS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BALIJARBAS_LOG_FILE"); v != "" {
		cfg.Logging.FilePath = v
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "openai", "anthropic", "":
	default:
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}

	if c.AI.MaxToolCalls <= 0 {
		return fmt.Errorf("max tool calls must be positive, got %d", c.AI.MaxToolCalls)
	}

	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.Session.HistoryLimit)
	}

	if c.Session.DBPath == "" {
		return fmt.Errorf("session DB path is required")
	}

	if c.Capability.Endpoint != "" && c.Capability.Command != "" {
		return fmt.Errorf("capability endpoint and command are mutually exclusive")
	}

	return nil
}
