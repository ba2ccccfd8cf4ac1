// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/balibots/balijarbas/internal/config"
)

// TestCreateApp tests application wiring with a custom config.
func TestCreateApp(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 9999
	cfg.AI.APIKey = "test-key"
	cfg.Session.DBPath = filepath.Join(t.TempDir(), "sessions.db")
	cfg.Logging.Level = "error"

	app, err := createApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	defer app.Stop()

	if app.httpServer.Addr != "127.0.0.1:9999" {
		t.Errorf("Unexpected listen address: %s", app.httpServer.Addr)
	}
	if app.capability != nil {
		t.Error("Expected no capability client without a configured backend")
	}
}

// TestCreateAppSingleInstance verifies the lock rejects a second instance
// on the same database.
func TestCreateAppSingleInstance(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.APIKey = "test-key"
	cfg.Session.DBPath = filepath.Join(t.TempDir(), "sessions.db")
	cfg.Logging.Level = "error"

	app, err := createApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	defer app.Stop()

	if _, err := createApp(context.Background(), cfg); err == nil {
		t.Fatal("Expected a second instance on the same database to be rejected")
	}
}

func TestApplyCommandLineFlagsToConfig(t *testing.T) {
	*aiProvider = "anthropic"
	*aiModel = "claude-sonnet-4-20250514"
	*maxToolCalls = 3
	*port = 9005
	defer func() {
		*aiProvider = ""
		*aiModel = ""
		*maxToolCalls = 0
		*port = 0
	}()

	cfg := config.DefaultConfig()
	applyCommandLineFlagsToConfig(cfg)

	if cfg.AI.Provider != "anthropic" || cfg.AI.Model != "claude-sonnet-4-20250514" {
		t.Error("Expected AI flags applied")
	}
	if cfg.AI.MaxToolCalls != 3 {
		t.Error("Expected tool call budget flag applied")
	}
	if cfg.Server.Port != 9005 {
		t.Error("Expected port flag applied")
	}
}
