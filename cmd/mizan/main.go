// Mizan - Student analytics and behavior scoring for tahfidz schools.
// Copyright (c) 2026 Tahfidz Hub
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

	"github.com/tahfidz-hub/mizan/internal/analytics"
	"github.com/tahfidz-hub/mizan/internal/api"
	"github.com/tahfidz-hub/mizan/internal/automation"
	"github.com/tahfidz-hub/mizan/internal/bus"
	"github.com/tahfidz-hub/mizan/internal/cache"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/insight"
	"github.com/tahfidz-hub/mizan/internal/notify"
	"github.com/tahfidz-hub/mizan/internal/repository"
	"github.com/tahfidz-hub/mizan/internal/scheduler"
	"github.com/tahfidz-hub/mizan/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := domain.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("starting mizan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"notifier", cfg.Dispatch.Notifier,
		"school_count", len(cfg.SchoolIDs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	analyticsSvc := analytics.NewService(repo, cacheImpl, insight.New(cfg.Analytics), cfg.Cache.InsightTTL, logger)

	// Rules live in the repository; configure them via POST /automation/rules.
	store := automation.NewRuleStore(repo)
	for _, schoolID := range cfg.SchoolIDs {
		n, err := store.Reload(ctx, repo, schoolID)
		if err != nil {
			slog.Warn("failed to load automation rules", "school_id", schoolID, "error", err)
			continue
		}
		slog.Info("automation rules loaded", "school_id", schoolID, "rules_count", n)
	}

	engine, err := automation.NewEngine(store, 100, logger)
	if err != nil {
		slog.Error("failed to initialize automation engine", "error", err)
		os.Exit(1)
	}

	notifier, err := notify.New(cfg.Dispatch.Notifier, busImpl, logger)
	if err != nil {
		slog.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	dispatcher := automation.NewDispatcher(notifier, cacheImpl, repo, cfg.Dispatch, logger)

	var (
		asyncWorker *worker.Worker
		jobs        *scheduler.Scheduler
	)
	if len(cfg.SchoolIDs) == 0 {
		slog.Warn("MIZAN_SCHOOLS is empty: automation worker and scheduler are disabled")
	} else {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, dispatcher, analyticsSvc, logger)
		if err := asyncWorker.Start(worker.Config{SchoolIDs: cfg.SchoolIDs}); err != nil {
			slog.Error("failed to start automation worker", "error", err)
			os.Exit(1)
		}

		if cfg.Schedule.Enabled {
			jobs = scheduler.New(busImpl, repo, store, cfg.Schedule, cfg.SchoolIDs, logger)
			jobs.Start(ctx)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Analytics: analyticsSvc,
		Engine:    engine,
		Version:   Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("mizan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop producers before the consumers they feed.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if jobs != nil {
		jobs.Stop()
	}
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop automation worker", "error", err)
		}
	}

	slog.Info("mizan shutdown complete")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  Mizan - student analytics engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Schools:  %s\n", strings.Join(cfg.SchoolIDs, ", "))
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /students/{id}/insight         - Student insight")
	fmt.Println("    GET  /students/{id}/progress        - Unit progress")
	fmt.Println("    GET  /students/{id}/behavior        - Behavior summary")
	fmt.Println("    GET  /students/{id}/risk            - Risk assessment")
	fmt.Println("    GET  /groups/{id}/insight           - Halaqah insight")
	fmt.Println("    GET  /system/insight                - School insight")
	fmt.Println("    POST /events                        - Record a domain event")
	fmt.Println("    GET  /automation/rules              - List automation rules")
	fmt.Println("    POST /automation/rules              - Create or update a rule")
	fmt.Println("    POST /automation/rules/{id}/toggle  - Enable or disable a rule")
	fmt.Println("    POST /automation/rules/reload       - Reload rules from database")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println()
}
