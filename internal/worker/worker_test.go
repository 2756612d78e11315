package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEffectiveTimeoutUsesTaskValueWhenSmaller(t *testing.T) {
	got := effectiveTimeout(60)
	if got != 60*time.Second {
		t.Fatalf("got %v, want 60s", got)
	}
}

func TestEffectiveTimeoutCapsAtDefault(t *testing.T) {
	got := effectiveTimeout(60 * 60) // 1 hour, exceeds the 29-minute ceiling
	if got != defaultTaskTimeout {
		t.Fatalf("got %v, want %v", got, defaultTaskTimeout)
	}
}

func TestEffectiveTimeoutZeroUsesDefault(t *testing.T) {
	if got := effectiveTimeout(0); got != defaultTaskTimeout {
		t.Fatalf("got %v, want %v", got, defaultTaskTimeout)
	}
}

func TestNewClampsMaxTasksBelowOne(t *testing.T) {
	w := New(uuid.New(), nil, nil, nil, nil, 0)
	if w.maxTasks != 1 {
		t.Fatalf("got maxTasks %d, want 1", w.maxTasks)
	}

	w = New(uuid.New(), nil, nil, nil, nil, -3)
	if w.maxTasks != 1 {
		t.Fatalf("got maxTasks %d, want 1", w.maxTasks)
	}
}

func TestNewKeepsConfiguredMaxTasks(t *testing.T) {
	w := New(uuid.New(), nil, nil, nil, nil, 8)
	if w.maxTasks != 8 {
		t.Fatalf("got maxTasks %d, want 8", w.maxTasks)
	}
}
