package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/pkg/log"
)

// Reasons reported with 400 responses.
const (
	reasonMalformed       = "malformed_request"
	reasonMissingDeviceID = "missing_device_id"
	reasonInsufficient    = "insufficient_fields"
	reasonBodyTooLarge    = "body_too_large"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// requestError marks a body that could not be read as JSON.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return fmt.Sprintf("invalid request body: %v", e.err) }

func (e *requestError) Unwrap() error { return e.err }

// writeError maps err to a status code and a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status, reason := classify(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
}

func classify(err error) (int, string) {
	var (
		reqErr   *requestError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, reasonBodyTooLarge
	case errors.As(err, &reqErr), errors.Is(err, core.ErrMalformedRequest):
		return http.StatusBadRequest, reasonMalformed
	case errors.Is(err, core.ErrMissingDeviceID):
		return http.StatusBadRequest, reasonMissingDeviceID
	case errors.Is(err, core.ErrInsufficientFields):
		return http.StatusBadRequest, reasonInsufficient
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, core.ErrNoReceivers):
		return http.StatusServiceUnavailable, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}
