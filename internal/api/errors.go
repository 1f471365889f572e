package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nmoncrief/meshgate/internal/auth"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/store"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"

	// Device gateway failures.
	ErrCodeCapacity    = "capacity_exhausted"
	ErrCodeUnreachable = "device_unreachable"
	ErrCodeNotAcked    = "device_not_acked"
	ErrCodeTimeout     = "device_timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps service errors onto HTTP responses. Device failures
// become gateway statuses: 502 when meshgate cannot reach the companion
// device, 504 when the device or a remote node does not answer in time.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mesh.ErrEmptyName):
		writeBadRequest(w, "channel name must not be empty")
	case errors.Is(err, mesh.ErrNoFreeSlot):
		writeError(w, http.StatusBadRequest, ErrCodeCapacity, "all channel slots are occupied")
	case errors.Is(err, mesh.ErrChannelExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "channel already exists")
	case errors.Is(err, store.ErrDuplicatePublicKey):
		writeError(w, http.StatusConflict, ErrCodeConflict, "public key already registered")
	case errors.Is(err, mesh.ErrChannelNotFound):
		writeNotFound(w, "channel not found")
	case errors.Is(err, mesh.ErrContactNotFound):
		writeNotFound(w, "contact not found on device")
	case errors.Is(err, store.ErrRepeaterNotFound):
		writeNotFound(w, "repeater not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, mesh.ErrNotAcked):
		writeError(w, http.StatusGatewayTimeout, ErrCodeNotAcked, "device did not acknowledge the write")
	case errors.Is(err, mesh.ErrConnectionFailed):
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, "companion device unreachable")
	case errors.Is(err, mesh.ErrTimeout),
		errors.Is(err, mesh.ErrNoResponse),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device operation timed out")
	default:
		writeInternalError(w, "internal server error")
	}
}
