package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/zerogap/internal/api"
	"github.com/hugh/zerogap/internal/api/handlers"
	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/journal"
	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/scheduler"
	"github.com/hugh/zerogap/internal/session"
	"github.com/hugh/zerogap/pkg/config"
	"github.com/hugh/zerogap/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const journalBuffer = 64

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting zerogap console",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"backend", cfg.Backend.URL,
	)

	backend := client.New(cfg.Backend.URL, cfg.Backend.Timeout(), logger)
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	// Redis is optional: notifications are also published when it is reachable
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("failed to connect to Redis", "error", err)
			redisClient.Close()
			redisClient = nil
		} else {
			sinks = append(sinks, notify.NewRedisSink(redisClient, cfg.Notify.RedisChannel))
		}
	}

	var (
		store  *journal.Store
		writer *journal.Writer
	)
	if cfg.Journal.Enabled() {
		db, err := journal.Connect(&cfg.Journal, logger)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		if err := journal.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate journal", "error", err)
			os.Exit(1)
		}
		store = journal.NewStore(db)
		writer = journal.NewWriter(store, logger, journalBuffer)
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}()
	}

	var archiver reports.Archiver
	if cfg.Reports.ArchiveEnabled() {
		s3Archiver, err := reports.NewS3Archiver(context.Background(), reports.S3Config{
			Bucket:     cfg.Reports.S3Bucket,
			Region:     cfg.Reports.S3Region,
			Endpoint:   cfg.Reports.S3Endpoint,
			AccessKey:  cfg.Reports.S3AccessKey,
			SecretKey:  cfg.Reports.S3SecretKey,
			Prefix:     cfg.Reports.S3Prefix,
			RoleARN:    cfg.Reports.S3RoleARN,
			ExternalID: cfg.Reports.S3ExternalID,
		}, logger)
		if err != nil {
			logger.Error("failed to configure report archive", "error", err)
			os.Exit(1)
		}
		archiver = s3Archiver
	}

	deps := session.Deps{
		Backend: backend,
		Sinks:   sinks,
		Logger:  logger,
	}
	if writer != nil {
		deps.Journal = writer
	}
	sess := session.New(session.Config{
		PollInterval:   cfg.Poll.Interval(),
		HistoryDelay:   cfg.Poll.HistoryDelay(),
		HistoryLimit:   cfg.Poll.HistoryLimit,
		DismissAfter:   cfg.Notify.DismissAfter(),
		NotifyFailures: cfg.Notify.Failures,
	}, deps)
	if writer != nil {
		sess.AddCloser(writer.Close)
	}

	var schedule handlers.Schedule
	if cfg.Schedule.Enabled() {
		sched, err := scheduler.New(scheduler.Config{
			Cron:    cfg.Schedule.Cron,
			Target:  cfg.Schedule.Target,
			Threads: cfg.Schedule.Threads,
		}, sess.Controller, logger)
		if err != nil {
			logger.Error("failed to configure scheduled rescans", "error", err)
			os.Exit(1)
		}
		sched.Start()
		sess.AddCloser(sched.Stop)
		schedule = sched
	}

	// Initial history load; failures surface as a notification
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout())
		defer cancel()
		_ = sess.History.Reload(ctx)
	}()

	routerCfg := api.RouterConfig{
		Session:        sess,
		Fetcher:        reports.NewFetcher(backend, archiver, logger),
		Backend:        handlers.PingFunc(backend.Health),
		Schedule:       schedule,
		Redis:          redisClient,
		Logger:         logger,
		ReportsDir:     cfg.Reports.Dir,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	}
	if store != nil {
		routerCfg.Journal = store
		routerCfg.JournalPinger = store
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	sess.Close()

	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("server stopped")
}
