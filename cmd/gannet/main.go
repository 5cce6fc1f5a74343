// Gannet - Landings consolidation and export overuse detection.
// Copyright (c) 2026 opensource.fisheries
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-fisheries/gannet/internal/api"
	"github.com/opensource-fisheries/gannet/internal/bus"
	"github.com/opensource-fisheries/gannet/internal/cache"
	"github.com/opensource-fisheries/gannet/internal/consolidate"
	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/repository"
	"github.com/opensource-fisheries/gannet/internal/rules"
	"github.com/opensource-fisheries/gannet/internal/vessel"
	"github.com/opensource-fisheries/gannet/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("GANNET_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting gannet",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Distributed deployments get PostgreSQL, Redis, and NATS
	if os.Getenv("GANNET_DISTRIBUTED") == "true" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize reference data cache
	ref := refdata.New(refdata.RepositoryLoaders(repo))
	if err := ref.Refresh(ctx); err != nil {
		slog.Warn("initial reference data refresh failed, starting with empty snapshot", "error", err)
	}
	ref.StartAutoRefresh(ctx, cfg.RefData.RefreshInterval)
	slog.Info("reference data cache initialized", "refresh_interval", cfg.RefData.RefreshInterval)

	// Initialize Alert Rule Engine
	alerts, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer alerts.Close()

	if err := loadRulesFromDatabase(ctx, repo, alerts); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", alerts.RulesCount())

	// Initialize Consolidation Engine
	resolver := vessel.NewResolver(ref)
	approvals := consolidate.NewApprovalChecker(repo, cacheImpl, 5*time.Minute)
	engine := consolidate.NewEngine(repo, ref, resolver, approvals, alerts, busImpl)
	slog.Info("consolidation engine initialized")

	// Initialize certificate event worker
	certWorker := worker.NewWorker(busImpl, engine)
	if err := certWorker.Start(); err != nil {
		slog.Error("failed to start certificate worker", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, alerts, ref, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("gannet is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the worker first so in-flight consolidations finish
	if err := certWorker.Stop(); err != nil {
		slog.Error("failed to stop certificate worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("gannet shutdown complete")
}

// loadRulesFromDatabase loads alert rules from the database into the engine.
// When the database has none, the builtin rule set is loaded instead; it is
// not persisted, so rules created via POST /rules replace it on reload.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database, loading builtin rule set")
	return engine.LoadRules(rules.BuiltinRules())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🐦 GANNET                   ║")
	fmt.Println("  ║   Landings Consolidation & Overuse Engine ║")
	fmt.Println("  ║      Every catch accounted for.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /landings                  - Ingest a landing record")
	fmt.Println("    POST /certificates              - Submit an export certificate")
	fmt.Println("    POST /certificates/{number}/void - Void a certificate")
	fmt.Println("    POST /jobs/consolidate          - Run a consolidation batch")
	fmt.Println("    POST /jobs/retrospective        - Re-run open landing groups")
	fmt.Println("    GET  /consolidated              - List consolidated landings")
	fmt.Println("    GET  /consolidated/{pln}/{date} - Get one consolidated landing")
	fmt.Println("    POST /refdata/refresh           - Refresh reference data")
	fmt.Println("    GET  /rules                     - List alert rules")
	fmt.Println("    POST /rules                     - Create an alert rule")
	fmt.Println("    POST /rules/reload              - Hot-reload rules from database")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
