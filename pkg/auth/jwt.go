// Package auth mints and verifies the bearer JWTs guarding the int-api
// surface (spec.md §6): each token is scoped to exactly one resource id
// (a task id or a project id), replacing the teacher's cookie/session
// stack, which has no browser login flow to anchor to in this domain.
// Grounded on the resource-scoped token convention referenced by
// original_source/src/server/execute.rs's token minting calls.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any verification failure: expired,
// malformed, wrong signature, or scoped to a different resource.
var ErrInvalidToken = errors.New("auth: invalid token")

// Scope is the resource kind a token is bound to.
type Scope string

const (
	ScopeTask    Scope = "task"
	ScopeProject Scope = "project"
)

// claims is the token payload: a resource scope and id, plus the standard
// registered claims for expiry.
type claims struct {
	Scope      Scope     `json:"scope"`
	ResourceID uuid.UUID `json:"resource_id"`
	jwt.RegisteredClaims
}

// Signer mints and verifies resource-scoped bearer tokens with one HMAC key.
type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner constructs a Signer. ttl bounds how long a minted token is
// valid; the worker's config resolver mints one per resource lookup and the
// int-api verifies it, so a short TTL (e.g. 5 minutes) is appropriate.
func NewSigner(key []byte, ttl time.Duration) *Signer {
	return &Signer{key: key, ttl: ttl}
}

// Mint produces a signed token scoped to (scope, resourceID).
func (s *Signer) Mint(scope Scope, resourceID uuid.UUID) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Scope:      scope,
		ResourceID: resourceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature, expiry, and that it is scoped to
// exactly (wantScope, wantResourceID).
func (s *Signer) Verify(tokenString string, wantScope Scope, wantResourceID uuid.UUID) error {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Method)
		}
		return s.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Scope != wantScope || c.ResourceID != wantResourceID {
		return fmt.Errorf("%w: scope/resource mismatch", ErrInvalidToken)
	}
	return nil
}
