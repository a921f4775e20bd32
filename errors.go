package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

var (
	ErrValidation         = errors.New("invalid request")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	ErrMissingToken          = errors.New("missing token")
	ErrMalformedHeader       = errors.New("malformed authorization header")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")

	ErrMisconfiguredUpstream = errors.New("products upstream is not configured")
	ErrUpstreamUnavailable   = errors.New("products upstream unavailable")
)

// APIError represents a structured API error response
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// isTokenError reports whether err came out of the auth gate or token verifier.
func isTokenError(err error) bool {
	for _, target := range []error{ErrMissingToken, ErrMalformedHeader, ErrTokenMalformed, ErrTokenInvalidSignature, ErrTokenExpired} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify maps an error onto status, code and the message shown to clients.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrValidation):
		// validation messages are built from fixed strings, never user input
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusBadRequest, "DUPLICATE_EMAIL", ErrDuplicateEmail.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrInvalidCredentials.Error()
	case isTokenError(err):
		// one message for every sub-case so clients cannot tell them apart
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", ErrUserNotFound.Error()
	case errors.Is(err, ErrMisconfiguredUpstream):
		return http.StatusInternalServerError, "UPSTREAM_MISCONFIGURED", ErrMisconfiguredUpstream.Error()
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", ErrUpstreamUnavailable.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// writeAppError translates err at the route boundary. Server-side failures
// are logged with their cause; the client only sees the classified message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", append(reqAttrs(r), "status", status, "error", err)...)
	} else {
		slog.Debug("request rejected", append(reqAttrs(r), "status", status, "reason", err.Error())...)
	}
	writeError(w, status, code, message)
}
