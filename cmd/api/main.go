package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/waterwheel-project/waterwheel/internal/api"
	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/config"
	"github.com/waterwheel-project/waterwheel/pkg/database"
	"github.com/waterwheel-project/waterwheel/pkg/httpx"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
	"github.com/waterwheel-project/waterwheel/pkg/telemetry"
)

// main boots the int-api surface: heartbeat ingestion and the read-only
// task/project-config lookups workers use to resolve what to run.
// No other routes are exposed here.
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

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
	}
	defer pool.Close() //nolint:errcheck
	log.Info("database pool connected")

	st := store.New(pool)

	b, err := bus.Dial(cfg.AMQPAddr, log)
	if err != nil {
		log.Error("failed to dial message bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer b.Close() //nolint:errcheck
	log.Info("message bus connected")

	signer := auth.NewSigner([]byte(cfg.JWTSigningKey), cfg.JWTTTL)

	a := api.New(st, signer, log)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	r.Get("/health", httpx.HealthHandler(httpx.HealthChecks{
		Database: pool,
		Redis:    noopChecker{},
		EventBus: b,
	}))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	a.Routes(r)

	srv := httpx.NewServer(cfg.ServerAddr, r)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// noopChecker satisfies httpx.HealthChecker for dependencies this binary
// doesn't hold a connection to (int-api never touches redis directly).
type noopChecker struct{}

func (noopChecker) Ping(context.Context) error { return nil }
