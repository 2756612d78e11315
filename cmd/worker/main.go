package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/worker"
	"github.com/waterwheel-project/waterwheel/internal/worker/configcache"
	"github.com/waterwheel-project/waterwheel/internal/worker/engine"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/cache"
	"github.com/waterwheel-project/waterwheel/pkg/config"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
	"github.com/waterwheel-project/waterwheel/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)
	ctx := context.Background()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	b, err := bus.Dial(cfg.AMQPAddr, log)
	if err != nil {
		log.Error("failed to dial message bus", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure
	}
	defer b.Close() //nolint:errcheck
	log.Info("message bus connected")

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	signer := auth.NewSigner([]byte(cfg.JWTSigningKey), cfg.JWTTTL)
	taskDefCache := cache.NewTaskDefCache(redisClient)
	resolver := configcache.New(taskDefCache, cfg.ServerAddr, signer, b, log)

	eng, err := engine.New(engine.Kind(cfg.TaskEngine))
	if err != nil {
		log.Error("failed to select task engine", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	log.Info("task engine selected", "engine", cfg.TaskEngine)

	workerID := uuid.New()
	w := worker.New(workerID, b, resolver, eng, log, cfg.MaxTasks)

	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		if err := w.Run(runCtx); err != nil {
			log.Error("worker dispatch loop stopped with error", "error", err)
		}
	}()
	go func() {
		if err := resolver.RunInvalidation(runCtx); err != nil {
			log.Error("config cache invalidation loop stopped with error", "error", err)
		}
	}()

	log.Info("worker started", "worker_id", workerID, "max_tasks", cfg.MaxTasks)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	log.Info("worker stopped")
}
