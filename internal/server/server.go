// Package server wires the scheduling kernel's core loops (spec.md §4.3–
// §4.9) onto one shared Server value, passed by reference everywhere — per
// DESIGN NOTES §9, no package-level globals carry request- or process-scoped
// state. Grounded on the teacher's pkg/app.Application aggregate, extended
// from one DB/Redis/EventBus bag into the full set of dependencies the
// scheduling core's loops share.
package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/cluster"
	"github.com/waterwheel-project/waterwheel/internal/dispatch"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/progress"
	"github.com/waterwheel-project/waterwheel/internal/rendezvous"
	"github.com/waterwheel-project/waterwheel/internal/requeue"
	"github.com/waterwheel-project/waterwheel/internal/retry"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/internal/supervisor"
	"github.com/waterwheel-project/waterwheel/internal/token"
	"github.com/waterwheel-project/waterwheel/internal/trigger"
	"github.com/waterwheel-project/waterwheel/internal/updates"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/config"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Server is the shared handle every scheduler-side core loop runs against.
// Single instance per process, constructed once in cmd/scheduler's main and
// never copied.
type Server struct {
	Config  *config.Config
	Store   *store.Store
	Bus     *bus.Bus
	Post    *postoffice.PostOffice
	Cluster *cluster.Cluster // nil for single-instance deployments
	Rendez  *rendezvous.Client
	Signer  *auth.Signer
	Log     logger.Logger
}

// New assembles a Server from already-dialed dependencies. Cluster may be
// nil, in which case Rendez must be a single-node client (spec.md §4.9,
// "single-instance deployments skip the gossip entirely").
func New(cfg *config.Config, st *store.Store, b *bus.Bus, cl *cluster.Cluster, rv *rendezvous.Client, signer *auth.Signer, log logger.Logger) *Server {
	return &Server{
		Config:  cfg,
		Store:   st,
		Bus:     b,
		Post:    postoffice.New(),
		Cluster: cl,
		Rendez:  rv,
		Signer:  signer,
		Log:     log,
	}
}

// breakerDefaults is the circuit breaker tuning shared by every core loop:
// 5 failures inside a minute trips the breaker and exits the process.
func breakerDefaults() *supervisor.Breaker {
	return supervisor.NewBreaker(5, time.Minute)
}

// Run boots every scheduler-side core loop under a supervised goroutine and
// blocks until ctx is cancelled. Each loop gets its own breaker so one
// flapping component doesn't mask another's failures.
func (s *Server) Run(ctx context.Context) error {
	triggerEngine := trigger.New(s.Store, s.Post, s.Log)

	if s.Cluster == nil {
		// Single-instance: this node owns every trigger outright.
		if err := triggerEngine.Boot(ctx); err != nil {
			return fmt.Errorf("server: boot trigger engine: %w", err)
		}
	} else {
		ids, err := s.Store.ListAllTriggerIDs(ctx)
		if err != nil {
			return fmt.Errorf("server: list trigger ids at boot: %w", err)
		}
		owned := s.Rendez.OwnedSet(s.Cluster.NodeID(), uuidStrings(ids))
		if err := triggerEngine.LoadOwned(ctx, ownedUUIDs(ids, owned)); err != nil {
			return fmt.Errorf("server: load owned triggers: %w", err)
		}
	}

	tokenProcessor := token.New(s.Store, s.Post, s.Log)
	if err := tokenProcessor.Boot(ctx); err != nil {
		return fmt.Errorf("server: boot token processor: %w", err)
	}

	dispatcher := dispatch.New(s.Store, s.Bus, s.Post, s.Log)
	progressProcessor := progress.New(s.Store, s.Bus, s.Post, s.Log)
	watchdog := requeue.New(s.Store, s.Post, s.Log, s.Config.RequeueInterval, requeueStaleAfter(s.Config))
	retryScheduler := retry.New(s.Store, s.Post, s.Log)
	if err := retryScheduler.Boot(ctx); err != nil {
		return fmt.Errorf("server: boot retry scheduler: %w", err)
	}
	fanIn := updates.New(s.Bus, s.Post, s.Log)

	supervisor.Spawn(ctx, s.Log, "trigger", breakerDefaults(), exitProcess, triggerEngine.Run)
	supervisor.Spawn(ctx, s.Log, "token", breakerDefaults(), exitProcess, tokenProcessor.Run)
	supervisor.Spawn(ctx, s.Log, "dispatch", breakerDefaults(), exitProcess, dispatcher.Run)
	supervisor.Spawn(ctx, s.Log, "progress", breakerDefaults(), exitProcess, progressProcessor.Run)
	supervisor.Spawn(ctx, s.Log, "requeue", breakerDefaults(), exitProcess, watchdog.Run)
	supervisor.Spawn(ctx, s.Log, "retry", breakerDefaults(), exitProcess, retryScheduler.Run)
	supervisor.Spawn(ctx, s.Log, "updates.triggers", breakerDefaults(), exitProcess, fanIn.RunTriggerUpdates)
	supervisor.Spawn(ctx, s.Log, "updates.tokens", breakerDefaults(), exitProcess, fanIn.RunTokenUpdates)

	if s.Cluster != nil {
		supervisor.Spawn(ctx, s.Log, "cluster", breakerDefaults(), exitProcess, func(ctx context.Context) error {
			return s.Cluster.Run(ctx, s.Store, s.Post)
		})
	}

	<-ctx.Done()
	return nil
}

func requeueStaleAfter(cfg *config.Config) time.Duration {
	return time.Duration(cfg.RequeueMissedHeartbeats) * cfg.TaskHeartbeat
}

func exitProcess(code int) {
	os.Exit(code)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func ownedUUIDs(ids []uuid.UUID, owned map[string]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if owned[id.String()] {
			out = append(out, id)
		}
	}
	return out
}
