package cluster

import (
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestDiffAddedAndRemoved(t *testing.T) {
	prev := map[string]bool{"a": true, "b": true}
	next := map[string]bool{"b": true, "c": true}

	added, removed := diff(prev, next)
	sort.Strings(added)
	sort.Strings(removed)

	if len(added) != 1 || added[0] != "c" {
		t.Fatalf("expected added=[c], got %v", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("expected removed=[a], got %v", removed)
	}
}

func TestDiffNoChange(t *testing.T) {
	set := map[string]bool{"a": true, "b": true}
	added, removed := diff(set, set)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no diff, got added=%v removed=%v", added, removed)
	}
}

func TestParseUUIDsSkipsInvalid(t *testing.T) {
	valid := uuid.New()
	out := parseUUIDs([]string{valid.String(), "not-a-uuid"})
	if len(out) != 1 || out[0] != valid {
		t.Fatalf("expected exactly the valid uuid to survive, got %v", out)
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("0.0.0.0:7946")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "0.0.0.0" || port != 7946 {
		t.Fatalf("got host=%s port=%d", host, port)
	}

	if _, _, err := splitHostPort("bad"); err == nil {
		t.Fatal("expected error for malformed addr")
	}
}
