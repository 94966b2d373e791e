// Kestrel - AI-channel revenue attribution for commerce.
// Copyright (c) 2025 opensource.commerce
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-commerce/kestrel/internal/api"
	"github.com/opensource-commerce/kestrel/internal/bus"
	"github.com/opensource-commerce/kestrel/internal/cache"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/history"
	"github.com/opensource-commerce/kestrel/internal/repository"
	"github.com/opensource-commerce/kestrel/internal/rules"
	"github.com/opensource-commerce/kestrel/internal/worker"
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

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if tz := os.Getenv("KESTREL_TIMEZONE"); tz != "" {
		cfg.Dashboard.Timezone = tz
	}
	if lang := os.Getenv("KESTREL_LANGUAGE"); lang != "" {
		cfg.Dashboard.Language = lang
	}
	if currency := os.Getenv("KESTREL_PRIMARY_CURRENCY"); currency != "" {
		cfg.Dashboard.PrimaryCurrency = currency
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
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

	// Initialize acquisition history service
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized")

	// Initialize per-shop rule registry. Merchant CEL rules are compiled
	// lazily on a shop's first classification.
	registry := rules.NewRegistry(repo)
	defer registry.Close()
	slog.Info("rule registry initialized")

	// Built-in rule tables; merchant rules are layered on per shop.
	baseCfg := domain.DefaultAttributionConfig()
	baseCfg.Language = cfg.Dashboard.Language

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		shopIDs := splitList(os.Getenv("KESTREL_SHOPS"))
		if len(shopIDs) == 0 {
			slog.Warn("async worker enabled but KESTREL_SHOPS is empty; skipping")
		} else {
			asyncWorker = worker.NewWorker(busImpl, repo, registry, baseCfg)
			workerCfg := worker.Config{
				ShopIDs:     shopIDs,
				WorkerCount: 5,
			}
			if err := asyncWorker.Start(workerCfg); err != nil {
				slog.Error("failed to start async worker", "error", err)
			} else {
				slog.Info("async worker started", "shop_count", len(shopIDs))
			}
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, registry, historySvc, baseCfg, cfg.Dashboard, Version)

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
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║     AI Revenue Attribution Engine         ║")
	fmt.Println("  ║      Every order knows its source.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /orders                    - Ingest and classify an order")
	fmt.Println("    GET  /orders/{id}               - Get a classified order")
	fmt.Println("    POST /classify                  - Dry-run classification")
	fmt.Println("    GET  /dashboard                 - Aggregated dashboard")
	fmt.Println("    GET  /dashboard/export/{table}  - Export a table as CSV")
	fmt.Println("    GET  /rules/domains             - List domain rules")
	fmt.Println("    POST /rules/domains             - Create a domain rule")
	fmt.Println("    GET  /rules/utm                 - List utm_source rules")
	fmt.Println("    POST /rules/utm                 - Create a utm_source rule")
	fmt.Println("    GET  /rules/custom              - List CEL rules")
	fmt.Println("    POST /rules/custom              - Create a CEL rule")
	fmt.Println("    POST /rules/reload              - Hot-reload rules")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
