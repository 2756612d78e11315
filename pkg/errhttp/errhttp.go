// Package errhttp maps sentinel errors from the store and auth packages to
// HTTP status codes. Add a case to mapErrorToStatus for each new sentinel.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/database"
	"github.com/waterwheel-project/waterwheel/pkg/httpx"

	"github.com/waterwheel-project/waterwheel/internal/store"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, mapErrorToStatus(err), err.Error())
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized // 401
	case database.IsIntegrityError(err):
		return http.StatusConflict // 409
	default:
		return http.StatusInternalServerError // 500
	}
}
