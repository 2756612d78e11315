package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestBearerTokenExtractsSuffix(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/int-api/tasks/x", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	if got := bearerToken(r); got != "abc.def.ghi" {
		t.Fatalf("got %q, want %q", got, "abc.def.ghi")
	}
}

func TestBearerTokenMissingHeaderReturnsEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/int-api/tasks/x", nil)
	if got := bearerToken(r); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestBearerTokenWrongSchemeReturnsEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/int-api/tasks/x", nil)
	r.Header.Set("Authorization", "Basic "+uuid.New().String())
	if got := bearerToken(r); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
