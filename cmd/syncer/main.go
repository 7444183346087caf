package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"betterlox/internal/api"
	"betterlox/internal/config"
	"betterlox/internal/metrics"
	"betterlox/internal/publisher"
	"betterlox/internal/service"
	"betterlox/internal/source/activity"
	"betterlox/internal/storage/postgres"
	"betterlox/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:                cfg.RabbitMQ.URL,
		Exchange:           cfg.RabbitMQ.Exchange,
		RatingsRoutingKey:  cfg.RabbitMQ.RatingsRoutingKey,
		RatingsQueue:       cfg.RabbitMQ.RatingsQueue,
		RequestsRoutingKey: cfg.RabbitMQ.RequestsRoutingKey,
		RequestsQueue:      cfg.RabbitMQ.RequestsQueue,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	metrics.Register()

	attemptStore := postgres.NewSyncAttemptStore(db)
	ratingStore := postgres.NewRatingStore(db)
	movieStore := postgres.NewMovieStore(db)
	cursorStore := postgres.NewCursorStore(db)
	userStore := postgres.NewUserStore(db)
	txManager := postgres.NewTransactionManager(db)

	feed := activity.New(activity.Config{
		BaseURL:           cfg.Feed.BaseURL,
		PageSize:          cfg.Feed.PageSize,
		Timeout:           cfg.Feed.Timeout,
		MaxRetries:        cfg.Feed.Retry.MaxRetries,
		RetryUnit:         cfg.Feed.Retry.Unit,
		RequestsPerSecond: cfg.Feed.RequestsPerSecond,
		BreakerTimeout:    cfg.Feed.BreakerTimeout,
	}, logger)

	runner := tracker.NewRunner(attemptStore, logger, tracker.WithTimeout(cfg.Sync.AttemptTimeout))

	syncService := service.NewSyncService(
		feed,
		ratingStore,
		movieStore,
		cursorStore,
		userStore,
		attemptStore,
		txManager,
		rabbitMQ,
		runner,
		logger,
		cfg.Sync,
	)

	handler := api.NewHandler(syncService, db, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, cfg.Server.AdminToken, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting ratings syncer",
		"source", feed.Name(),
		"addr", cfg.Server.Addr,
		"max_pages_recent", cfg.Sync.MaxPagesRecent,
		"concurrency", cfg.Sync.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := rabbitMQ.ConsumeSyncRequests(gctx, func(ctx context.Context, msg publisher.SyncRequestMessage) error {
			attempt, err := syncService.HandleSyncRequest(ctx, msg.AttemptID)
			if err != nil {
				return err
			}
			logger.Info("deferred sync finished", "attempt_id", attempt.ID, "status", attempt.Status)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("syncer error", "error", err)
		os.Exit(1)
	}
	logger.Info("syncer stopped")
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
