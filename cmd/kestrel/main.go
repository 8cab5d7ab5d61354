// Kestrel - Behavioral fraud scoring for every transaction.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/seed"
	"github.com/opensource-finance/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for distributed mode via environment
	if os.Getenv("KESTREL_DISTRIBUTED") == "true" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	if expr := os.Getenv("KESTREL_ALERT_EXPRESSION"); expr != "" {
		cfg.Alert.Expression = expr
	}
	if os.Getenv("KESTREL_SEED_DEMO") == "false" {
		cfg.SeedDemo = false
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"seed_demo", cfg.SeedDemo,
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

	// Initialize Alert Policy
	policy, err := alert.NewPolicy(cfg.Alert)
	if err != nil {
		slog.Error("failed to initialize alert policy", "error", err)
		os.Exit(1)
	}
	slog.Info("alert policy initialized", "expression", policy.Expression())

	// Seed demo data, or reload previously persisted profiles
	var profiles []domain.UserProfile
	if cfg.SeedDemo {
		profiles = seed.Profiles()
		if err := seedRepository(ctx, repo, profiles); err != nil {
			slog.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
		slog.Info("demo data seeded", "profiles", len(profiles))
	} else {
		stored, err := repo.ListProfiles(ctx)
		if err != nil {
			slog.Error("failed to load profiles", "error", err)
			os.Exit(1)
		}
		for _, p := range stored {
			profiles = append(profiles, *p)
		}
		slog.Info("profiles loaded from repository", "profiles", len(profiles))
	}

	// Initialize Engine
	eng := engine.New(profiles, policy,
		engine.WithRepository(repo),
		engine.WithEventBus(busImpl),
	)
	slog.Info("scoring engine initialized", "profiles", len(profiles))

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, eng, repo, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// seedRepository persists the demo profiles and transactions. The demo
// transactions are display data; they are not replayed through the engine.
func seedRepository(ctx context.Context, repo domain.Repository, profiles []domain.UserProfile) error {
	for i := range profiles {
		if err := repo.SaveProfile(ctx, &profiles[i]); err != nil {
			return fmt.Errorf("failed to seed profile %s: %w", profiles[i].ID, err)
		}
	}

	for _, tx := range seed.Transactions() {
		if err := repo.SaveTransaction(ctx, &tx); err != nil {
			return fmt.Errorf("failed to seed transaction %s: %w", tx.ID, err)
		}
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║      Behavioral Fraud Scoring Engine      ║")
	fmt.Println("  ║       Every transaction, watched.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions/score        - Score a transaction")
	fmt.Println("    POST /transactions/{id}/confirm - Confirm legit or fraud")
	fmt.Println("    GET  /transactions/{id}         - Get transaction by ID")
	fmt.Println("    GET  /profiles                  - List user profiles")
	fmt.Println("    GET  /profiles/{id}             - Get profile by ID")
	fmt.Println("    GET  /alerts                    - List raised alerts")
	fmt.Println("    GET  /policy                    - Show alert policy")
	fmt.Println("    PUT  /policy                    - Update alert policy")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
