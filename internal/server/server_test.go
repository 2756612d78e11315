package server

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/pkg/config"
)

func TestOwnedUUIDsFiltersByMembership(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b}
	owned := map[string]bool{a.String(): true}

	got := ownedUUIDs(ids, owned)
	if len(got) != 1 || got[0] != a {
		t.Fatalf("got %v, want [%v]", got, a)
	}
}

func TestUUIDStringsRoundTrips(t *testing.T) {
	a := uuid.New()
	got := uuidStrings([]uuid.UUID{a})
	if len(got) != 1 || got[0] != a.String() {
		t.Fatalf("got %v, want [%v]", got, a.String())
	}
}

func TestRequeueStaleAfterMultipliesHeartbeat(t *testing.T) {
	cfg := &config.Config{RequeueMissedHeartbeats: 3, TaskHeartbeat: 10 * time.Second}
	if got := requeueStaleAfter(cfg); got != 30*time.Second {
		t.Fatalf("got %v, want 30s", got)
	}
}
