// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/epgd/internal/fetch"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with the given status code
func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeNotFound writes a 404 Not Found response
func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// writeFetchError maps the fetch error taxonomy onto HTTP status codes:
// client mistakes are 4xx, upstream grabber failures are 502, a breached
// ceiling is 504, and our own filesystem trouble is 500.
func writeFetchError(w http.ResponseWriter, err error) {
	var (
		validationErr *fetch.ValidationError
		setupErr      *fetch.SetupError
		wsErr         *fetch.WorkspaceError
		execErr       *fetch.ExecutionError
		timeoutErr    *fetch.TimeoutError
		artifactErr   *fetch.ArtifactMissingError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &timeoutErr):
		writeError(w, http.StatusGatewayTimeout, err)
	case errors.As(err, &setupErr), errors.As(err, &execErr), errors.As(err, &artifactErr):
		writeError(w, http.StatusBadGateway, err)
	case errors.As(err, &wsErr):
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
