// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balibots/balijarbas/internal/agent"
	"github.com/balibots/balijarbas/internal/bridge"
	"github.com/balibots/balijarbas/internal/capability"
	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
	"github.com/balibots/balijarbas/internal/scheduler"
	"github.com/balibots/balijarbas/internal/search"
	"github.com/balibots/balijarbas/internal/session"
	"github.com/balibots/balijarbas/internal/singleton"
	"github.com/balibots/balijarbas/internal/tools"
)

var (
	configPath   = flag.String("config", "", "Path to YAML configuration file")
	address      = flag.String("address", "", "The address to bind the webhook listener to")
	port         = flag.Int("port", 0, "The port to bind the webhook listener to")
	logLevel     = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile      = flag.String("log-file", "", "Log file path (default: stdout)")
	version      = flag.Bool("version", false, "Show version information and exit")
	aiProvider   = flag.String("ai-provider", "", "AI provider: openai or anthropic (default: openai)")
	aiBaseURL    = flag.String("ai-base-url", "", "Custom base URL for OpenAI-compatible endpoints (e.g. Ollama, vLLM, Groq)")
	aiModel      = flag.String("ai-model", "", "AI model to use (default: gpt-4o)")
	maxToolCalls = flag.Int("max-tool-calls", 0, "Maximum tool calls per conversational turn (default: 8)")
	capEndpoint  = flag.String("capability-endpoint", "", "Capability server SSE endpoint URL")
	capCommand   = flag.String("capability-command", "", "Capability server command to spawn (stdio transport)")
	dbPath       = flag.String("db-path", "", "Path to SQLite session database (default: ~/.balijarbas/sessions.db)")
)

func main() {
	flag.Parse()

	cfg := loadConfig()

	if *version {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	waitForShutdown(cancel, app)
}

// loadConfig loads configuration from defaults, file, environment and flags.
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()

	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			log.Fatalf("Invalid configuration file: %v", err)
		}
	}

	config.FromEnv(cfg)
	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.FilePath = *logFile
	}
	if *aiProvider != "" {
		cfg.AI.Provider = *aiProvider
	}
	if *aiBaseURL != "" {
		cfg.AI.BaseURL = *aiBaseURL
	}
	if *aiModel != "" {
		cfg.AI.Model = *aiModel
	}
	if *maxToolCalls > 0 {
		cfg.AI.MaxToolCalls = *maxToolCalls
	}
	if *capEndpoint != "" {
		cfg.Capability.Endpoint = *capEndpoint
	}
	if *capCommand != "" {
		cfg.Capability.Command = *capCommand
	}
	if *dbPath != "" {
		cfg.Session.DBPath = *dbPath
	}
}

// Application represents the running application
type Application struct {
	store      *session.Store
	sched      *scheduler.Scheduler
	capability *capability.Client
	httpServer *http.Server
	lock       *singleton.Lock
	logger     *logging.Logger
}

// createApp constructs and wires all components.
func createApp(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefaultLogger(logger)

	lock, acquired, err := singleton.TryAcquire(cfg.Session.DBPath)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another instance is already using %s", cfg.Session.DBPath)
	}

	store, err := session.NewStore(cfg.Session.DBPath, cfg.Session.HistoryLimit)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("create session store: %w", err)
	}

	provider, err := llm.NewProviderFromConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	logger.Infof("Using %s provider with model %s", provider.Name(), cfg.AI.Model)

	capClient, err := capability.Connect(ctx, &cfg.Capability, cfg.Server.Version, logger)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	if capClient == nil {
		logger.Warnf("No capability server configured; the agent cannot send messages")
	}

	var searchClient *search.Client
	if cfg.Search.APIKey != "" {
		searchClient = search.NewClient(cfg.Search.APIKey)
	}

	sched := scheduler.New(logger)
	dispatcher := tools.NewDispatcher(sched, capClient, searchClient, logger)
	orch := agent.New(provider, dispatcher, store, cfg, logger)
	sched.SetRunner(orch)

	br := bridge.New(orch, store, sched, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: br.Handler()}

	return &Application{
		store:      store,
		sched:      sched,
		capability: capClient,
		httpServer: httpServer,
		lock:       lock,
		logger:     logger,
	}, nil
}

// buildLogger creates the logger described by the configuration.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		logger, err := logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, fmt.Errorf("create file logger: %w", err)
		}
		return logger, nil
	}
	return logging.New(logging.Options{Level: level}), nil
}

// Start starts the application
func (a *Application) Start(ctx context.Context) error {
	a.sched.Start(ctx)
	a.logger.Infof("Scheduler started")

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Errorf("Webhook listener failed: %v", err)
		}
	}()
	a.logger.Infof("Webhook listener started on %s", a.httpServer.Addr)

	return nil
}

// Stop stops the application
func (a *Application) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnf("Error shutting down webhook listener: %v", err)
	}

	a.sched.Stop()
	a.logger.Infof("Scheduler stopped")

	if a.capability != nil {
		if err := a.capability.Close(); err != nil {
			a.logger.Warnf("Error closing capability session: %v", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warnf("Error closing session store: %v", err)
	}

	return a.lock.Release()
}

// waitForShutdown waits for termination signals and performs cleanup
func waitForShutdown(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh
	app.logger.Infof("Received termination signal, shutting down...")

	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-time.After(10 * time.Second):
		app.logger.Warnf("Shutdown timed out")
	}
}
