package worker

import "sync/atomic"

// Counter is the worker's running-task gauge, using the scoped
// increment/decrement-on-every-exit pattern of the original's counter.rs
// (spec.md Design Notes §9): Boost returns a release function the caller
// must defer immediately, so the gauge cannot drift under a panic or an
// early return.
type Counter struct {
	running int64
}

// Boost increments the gauge and returns a function that decrements it
// exactly once.
func (c *Counter) Boost() (release func()) {
	atomic.AddInt64(&c.running, 1)
	var released int32
	return func() {
		if atomic.CompareAndSwapInt32(&released, 0, 1) {
			atomic.AddInt64(&c.running, -1)
		}
	}
}

// Running returns the current in-flight task count. The worker process
// sends no heartbeats, so this count is not reported to the int-api.
func (c *Counter) Running() int {
	return int(atomic.LoadInt64(&c.running))
}
