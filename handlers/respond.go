package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"animeshelf/internal/upstream"
	"animeshelf/internal/validation"
	"animeshelf/services/catalog"
	"animeshelf/services/profiles"
	"animeshelf/services/recommend"
	"animeshelf/services/users"
)

const maxBodyBytes = 1 << 20

const unauthenticatedMessage = "You must be logged in."

// statusClientClosedRequest is reported when the caller went away before the
// response was ready.
const statusClientClosedRequest = 499

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, catalog.ErrEmptyQuery),
		errors.Is(err, profiles.ErrInvalidEpisode),
		errors.Is(err, users.ErrInvalidVerificationCode):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrUnauthenticated),
		errors.Is(err, users.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, profiles.ErrProfileNotFound),
		errors.Is(err, profiles.ErrEntryNotFound),
		errors.Is(err, users.ErrAccountNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrEmailInUse),
		errors.Is(err, profiles.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, upstream.ErrStatus),
		errors.Is(err, recommend.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// serviceError logs err once and writes the matching response.
func serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusUnauthorized:
		if errors.Is(err, users.ErrUnauthenticated) {
			message = unauthenticatedMessage
		}
	case http.StatusInternalServerError:
		message = "internal error"
	}

	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		"op", op, "status", status, "path", r.URL.Path, "error", err)
	jsonError(w, message, status)
}
