package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Gardner-Chu/order-automation-system/internal/api"
	"github.com/Gardner-Chu/order-automation-system/internal/config"
	"github.com/Gardner-Chu/order-automation-system/internal/database"
	"github.com/Gardner-Chu/order-automation-system/internal/dedup"
	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/extraction"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/internal/listener"
	"github.com/Gardner-Chu/order-automation-system/internal/storage"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment")
	seedPath := pflag.String("mailboxes", "", "YAML mailbox seed file (overrides MAILBOX_SEED_PATH)")
	syncOnce := pflag.Bool("sync-once", false, "run a single sweep and exit")
	noListener := pflag.Bool("no-listener", false, "do not start the timer listener")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *seedPath != "" {
		cfg.MailboxSeedPath = *seedPath
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting order ingestion service")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	if cfg.MailboxSeedPath != "" {
		if err := seedMailboxes(ctx, db, cfg.MailboxSeedPath, logger); err != nil {
			logger.Error("failed to seed mailboxes", "error", err)
			os.Exit(1)
		}
	}

	// Create components
	objects, err := storage.NewFileStore(cfg.StorageDir, cfg.StoragePublicURL, logger)
	if err != nil {
		logger.Error("failed to open object storage", "error", err)
		os.Exit(1)
	}

	extractor := extraction.NewClient(extraction.Config{
		BaseURL: cfg.LLMAPIURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})

	registry := listener.NewRegistry()
	pipeline := ingest.NewPipeline(db, extractor, registry, logger)

	mailListener := listener.New(db, email.NewIMAPDialer(logger), objects, pipeline, registry, listener.Config{
		Retry: listener.RetryPolicy{
			ConnectAttempts: cfg.IMAPConnectAttempts,
			ConnectDelay:    cfg.IMAPConnectDelay,
			UploadAttempts:  cfg.UploadAttempts,
			UploadDelay:     cfg.UploadDelay,
			AuthTimeout:     cfg.IMAPAuthTimeout,
		},
		RestartDelay: cfg.RestartDelay,
	}, logger)

	// Create duplicate filter (optional)
	if cfg.DedupEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, duplicate checks will fail open", "error", err)
		}
		mailListener.SetFilter(dedup.NewRedisFilter(rdb))
		logger.Info("duplicate filter enabled", "addr", opts.Addr)
	}

	if *syncOnce {
		result := mailListener.TriggerManualSync(ctx)
		logger.Info("sync finished", "success", result.Success, "message", result.Message)
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	router := api.NewRouter(api.Deps{
		Listener: mailListener,
		Pipeline: pipeline,
		Store:    db,
		Objects:  objects,
		Files:    objects.FileSystem(),
		Interval: cfg.ListenerInterval,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.ListenerAutostart && !*noListener {
		mailListener.Start(cfg.ListenerInterval)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig)
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down http server", "error", err)
	}

	mailListener.Stop()
	if err := mailListener.Wait(shutdownCtx); err != nil {
		logger.Warn("listener did not finish the running sweep", "error", err)
	}

	logger.Info("service stopped")
}

func seedMailboxes(ctx context.Context, db *database.DB, path string, logger *slog.Logger) error {
	configs, err := config.LoadMailboxSeed(path)
	if err != nil {
		return err
	}

	for _, mc := range configs {
		if err := email.FillServer(mc); err != nil {
			return err
		}
		if err := db.UpsertMailboxConfig(ctx, mc); err != nil {
			return err
		}
		logger.Info("mailbox configured", "name", mc.Name, "host", mc.Host, "active", mc.IsActive)
	}
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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
