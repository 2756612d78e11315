// Package configcache implements the worker-side config cache of spec.md
// §4.10/§5 ("in-process caches on workers ... guarded by a lock; cache
// invalidation is driven by config-update fanout messages"): a Redis-backed
// TaskDefCache fronting the scheduler's `GET /int-api/tasks/{id}`, kept
// fresh by the config fanout consumer. Grounded on
// original_source/src/worker/config_cache.rs.
package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/cache"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Resolver fronts TaskDefCache with an HTTP fallback to the scheduler's
// int-api, and subscribes to the config fanout exchange to invalidate
// stale entries. It implements worker.TaskDefResolver.
type Resolver struct {
	cache      *cache.TaskDefCache
	httpClient *http.Client
	apiAddr    string
	signer     *auth.Signer
	bus        *bus.Bus
	log        logger.Logger

	mu sync.Mutex
}

// New constructs a Resolver.
func New(c *cache.TaskDefCache, apiAddr string, signer *auth.Signer, b *bus.Bus, log logger.Logger) *Resolver {
	return &Resolver{
		cache:      c,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiAddr:    apiAddr,
		signer:     signer,
		bus:        b,
		log:        log,
	}
}

// Resolve returns the cached task definition, fetching and caching it from
// the scheduler on a miss.
func (r *Resolver) Resolve(ctx context.Context, taskID uuid.UUID) (*cache.CachedTaskDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := r.cache.Get(ctx, taskID)
	if err == nil {
		return def, nil
	}
	if !cache.IsMiss(err) {
		r.log.Warn("configcache: cache read failed, falling back to http", "task_id", taskID, "error", err)
	}

	def, err = r.fetch(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, def); err != nil {
		r.log.Warn("configcache: failed to populate cache after fetch", "task_id", taskID, "error", err)
	}
	return def, nil
}

func (r *Resolver) fetch(ctx context.Context, taskID uuid.UUID) (*cache.CachedTaskDef, error) {
	tok, err := r.signer.Mint(auth.ScopeTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("configcache: mint token: %w", err)
	}

	url := fmt.Sprintf("%s/int-api/tasks/%s", r.apiAddr, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("configcache: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("configcache: fetch task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("configcache: fetch task %s: unexpected status %d", taskID, resp.StatusCode)
	}

	var def cache.CachedTaskDef
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		return nil, fmt.Errorf("configcache: decode task definition: %w", err)
	}
	return &def, nil
}

// RunInvalidation consumes the config fanout exchange and drops any task
// definition it names, until ctx is cancelled.
func (r *Resolver) RunInvalidation(ctx context.Context) error {
	queue, ch, err := r.bus.AnonymousExclusiveQueue(bus.ExchangeConfig)
	if err != nil {
		return fmt.Errorf("configcache: declare config queue: %w", err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("configcache: consume config updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("configcache: config consumer channel closed")
			}
			msg, err := bus.Decode[messages.ConfigUpdateMessage](d)
			if err != nil {
				r.log.Error("configcache: failed to decode config update, dropping", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			if msg.Kind == "task_def" {
				if err := r.cache.Invalidate(ctx, msg.UUID); err != nil {
					r.log.Warn("configcache: failed to invalidate task def", "task_id", msg.UUID, "error", err)
				}
			}
			_ = d.Ack(false)
		}
	}
}
