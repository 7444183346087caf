package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"betterlox/internal/config"
	"betterlox/internal/domain"
	"betterlox/internal/scheduler"
	"betterlox/internal/trigger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "trigger a single sync and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	client := trigger.New(trigger.Config{
		URL:      cfg.Trigger.URL,
		Limit:    cfg.Trigger.Limit,
		SyncType: domain.SyncType(cfg.Trigger.Type),
		Defer:    cfg.Trigger.Defer,
		Token:    cfg.Server.AdminToken,
		Timeout:  cfg.Trigger.Timeout,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		summary, err := client.Trigger(ctx)
		if err != nil {
			logger.Error("sync failed", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("sync finished", "count", summary.Synced, "type", summary.ItemType)
		return
	}

	sched := scheduler.NewScheduler(client, cfg.Trigger.Schedule, cfg.Trigger.Timeout, logger)

	logger.Info("starting sync trigger",
		"url", cfg.Trigger.URL,
		"schedule", cfg.Trigger.Schedule,
		"limit", cfg.Trigger.Limit,
		"type", cfg.Trigger.Type,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
