// Package supervisor implements the circuit-breaker-backed task spawner of
// spec.md §2/§5: every core loop runs under a supervised goroutine that
// restarts it on return or panic, up to N failures inside a rolling window
// W, after which the process exits non-zero so the surrounding orchestrator
// restarts it clean. Grounded on original_source/src/circuit_breaker.rs.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Breaker trips after MaxFailures occur within Window. It is a handful of
// counters and a timer — no third-party circuit-breaker library is wired
// (see DESIGN.md): the shape here mirrors the original's hand-rolled
// breaker rather than reaching for a generic one.
type Breaker struct {
	MaxFailures int
	Window      time.Duration

	mu       sync.Mutex
	failures []time.Time
}

// NewBreaker returns a Breaker tripping after maxFailures within window.
func NewBreaker(maxFailures int, window time.Duration) *Breaker {
	return &Breaker{MaxFailures: maxFailures, Window: window}
}

// RecordFailure records a failure and reports whether the breaker has now
// tripped (maxFailures reached within window).
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-b.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	b.failures = kept

	return len(b.failures) >= b.MaxFailures
}

// Exiter lets tests substitute a non-fatal hook for the real process exit.
type Exiter func(code int)

// Spawn runs fn in a loop under a dedicated goroutine: on return (whether
// from error, a graceful nil, or a recovered panic), the breaker records a
// failure. If the breaker trips, Exiter is invoked with a non-zero code; a
// clean return with ctx already cancelled is treated as graceful shutdown
// and does not count as a failure.
func Spawn(ctx context.Context, log logger.Logger, name string, breaker *Breaker, exit Exiter, fn func(context.Context) error) {
	go func() {
		for {
			err := runOnce(ctx, log, name, fn)

			if ctx.Err() != nil {
				log.Info("supervisor: loop stopped on shutdown", "loop", name)
				return
			}

			if err == nil {
				// A loop returning nil without ctx cancellation is itself
				// unexpected for a long-running core flow; treat it the
				// same as an error for breaker purposes.
				err = fmt.Errorf("supervisor: loop %s returned without error but context is not done", name)
			}

			log.Error("supervisor: loop failed, considering restart", "loop", name, "error", err)

			if breaker.RecordFailure() {
				log.Error("supervisor: circuit breaker tripped, exiting process", "loop", name,
					"max_failures", breaker.MaxFailures, "window", breaker.Window)
				exit(1)
				return
			}
		}
	}()
}

func runOnce(ctx context.Context, log logger.Logger, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("supervisor: loop panicked", "loop", name, "panic", p)
			err = fmt.Errorf("supervisor: loop %s panicked: %v", name, p)
		}
	}()
	return fn(ctx)
}
