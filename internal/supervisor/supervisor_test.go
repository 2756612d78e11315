package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreakerTripsAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	if b.RecordFailure() {
		t.Fatal("tripped too early")
	}
	if b.RecordFailure() {
		t.Fatal("tripped too early")
	}
	if !b.RecordFailure() {
		t.Fatal("expected breaker to trip on 3rd failure")
	}
}

func TestBreakerWindowExpires(t *testing.T) {
	b := NewBreaker(2, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if b.RecordFailure() {
		t.Fatal("expected stale failure to have expired out of the window")
	}
}

func TestSpawnExitsOnRepeatedFailure(t *testing.T) {
	log := discardLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exitCode atomic.Int32
	exited := make(chan struct{})
	exit := func(code int) {
		exitCode.Store(int32(code))
		close(exited)
	}

	Spawn(ctx, log, "test-loop", NewBreaker(2, time.Minute), exit, func(context.Context) error {
		return errAlwaysFails
	})

	select {
	case <-exited:
		if exitCode.Load() != 1 {
			t.Fatalf("exit code = %d, want 1", exitCode.Load())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for breaker to trip")
	}
}
