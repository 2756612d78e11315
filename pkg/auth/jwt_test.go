package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-key"), time.Minute)
	taskID := uuid.New()

	tok, err := s.Mint(ScopeTask, taskID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Verify(tok, ScopeTask, taskID); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsWrongResource(t *testing.T) {
	s := NewSigner([]byte("test-key"), time.Minute)
	tok, err := s.Mint(ScopeTask, uuid.New())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Verify(tok, ScopeTask, uuid.New()); err == nil {
		t.Fatal("expected verification to fail for a different resource id")
	}
}

func TestVerifyRejectsWrongScope(t *testing.T) {
	s := NewSigner([]byte("test-key"), time.Minute)
	id := uuid.New()
	tok, err := s.Mint(ScopeTask, id)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Verify(tok, ScopeProject, id); err == nil {
		t.Fatal("expected verification to fail for a different scope")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewSigner([]byte("test-key"), -time.Minute) // already expired
	id := uuid.New()
	tok, err := s.Mint(ScopeTask, id)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Verify(tok, ScopeTask, id); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s1 := NewSigner([]byte("key-one"), time.Minute)
	s2 := NewSigner([]byte("key-two"), time.Minute)
	id := uuid.New()

	tok, err := s1.Mint(ScopeTask, id)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s2.Verify(tok, ScopeTask, id); err == nil {
		t.Fatal("expected verification under a different key to fail")
	}
}
