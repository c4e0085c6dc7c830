package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bcnelson/stackplane/internal/access"
	"github.com/bcnelson/stackplane/internal/actionstate"
	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/api"
	"github.com/bcnelson/stackplane/internal/api/handler"
	"github.com/bcnelson/stackplane/internal/auth"
	"github.com/bcnelson/stackplane/internal/config"
	"github.com/bcnelson/stackplane/internal/execute"
	"github.com/bcnelson/stackplane/internal/github"
	"github.com/bcnelson/stackplane/internal/metrics"
	"github.com/bcnelson/stackplane/internal/service"
	"github.com/bcnelson/stackplane/internal/statuscache"
	"github.com/bcnelson/stackplane/internal/storage/sql"
	"github.com/bcnelson/stackplane/internal/updates"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to a .env file loaded before the environment")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration", err)
	}

	setupLogging(&cfg.Log)

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fatal("Failed to create data directory", err)
			}
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fatal("Failed to initialize storage", err)
	}
	defer store.Close()

	// Initialize agent client (or file shim for testing)
	var agentClient agent.Client
	if cfg.UseFileShim() {
		slog.Info("Using file shim for stack agents", "path", cfg.Agent.FileShim)
		agentClient = agent.NewFileShim(cfg.Agent.FileShim)
	} else {
		agentClient = agent.NewHTTPClient(cfg.Agent.Passkey, cfg.Agent.Timeout)
	}

	m := metrics.New()
	cache := statuscache.New(store, agentClient, m)
	gate := access.New(store, cfg.Auth.TransparentMode)
	states := actionstate.New()
	hub := updates.NewHub(gate)
	executor := execute.New(gate, states, store, agentClient, cache, hub, m)
	refresher := service.NewRefreshService(store, cache, cfg.Monitoring.Interval, cfg.Monitoring.Concurrency)

	var verifier auth.TokenVerifier
	if cfg.OIDC.Enabled {
		v, err := auth.NewOIDCVerifier(context.Background(), cfg.OIDC.IssuerURL, cfg.OIDC.ClientID, cfg.OIDC.GetAllowedDomains())
		if err != nil {
			fatal("Failed to initialize OIDC verifier", err)
		}
		verifier = v
		slog.Info("OIDC bearer tokens enabled", "issuer", cfg.OIDC.IssuerURL)
	}

	deps := &handler.Deps{
		Store:       store,
		Gate:        gate,
		States:      states,
		Cache:       cache,
		Agent:       agentClient,
		Executor:    executor,
		GitHub:      github.New(cfg.GitHub.Token, cfg.GitHub.APIURL, cfg.GitHub.GetOwners()),
		WebhookHost: cfg.Webhook.ListenerHost(),
		Refresher:   refresher,
	}

	// Create router
	router := api.NewRouter(deps, api.Options{
		BootstrapKey: cfg.Auth.BootstrapAPIKey,
		Verifier:     verifier,
		Hub:          hub,
		Metrics:      m,
	})

	// Actions may run for as long as the agent timeout allows.
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Agent.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go refresher.Run(ctx)

	slog.Info("Starting stackplane", "addr", "http://"+cfg.Server.Addr())

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fatal("Server forced to shutdown", err)
	}

	slog.Info("Server stopped")
}

func setupLogging(cfg *config.LogConfig) {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
