package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/cluster"
	"github.com/waterwheel-project/waterwheel/internal/rendezvous"
	"github.com/waterwheel-project/waterwheel/internal/server"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/config"
	"github.com/waterwheel-project/waterwheel/pkg/database"
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

	// A non-empty seed list means this deployment is clustered; a bare node
	// skips gossip entirely and owns every trigger (spec.md §4.9).
	var cl *cluster.Cluster
	var rv *rendezvous.Client
	if len(cfg.ClusterSeedNodes) > 0 {
		host, _ := os.Hostname()
		nodeID := fmt.Sprintf("%s/%d", host, time.Now().Unix())
		cl, err = cluster.New(cluster.Config{
			ClusterID:  cfg.ClusterID,
			NodeID:     nodeID,
			GossipBind: cfg.ClusterGossipBind,
			GossipAddr: cfg.ClusterGossipAddr,
			SeedNodes:  cfg.ClusterSeedNodes,
		}, log)
		if err != nil {
			log.Error("failed to join gossip cluster", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		rv = cl.Rendezvous()
		log.Info("joined gossip cluster", "node_id", nodeID, "seeds", cfg.ClusterSeedNodes)
	} else {
		rv = rendezvous.New([]string{cfg.ClusterID})
		log.Info("running single-instance, no gossip cluster")
	}

	srv := server.New(cfg, st, b, cl, rv, signer, log)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := srv.Run(runCtx); err != nil {
			log.Error("scheduler server stopped with error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down scheduler...")
	cancel()
	if cl != nil {
		if err := cl.Leave(5); err != nil {
			log.Warn("failed to leave gossip cluster cleanly", "error", err)
		}
	}
	log.Info("scheduler stopped")
}
