// Package httpserver contains the HTTP handlers and middleware of the interview API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error to an HTTP status and envelope code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyTranscript):
		return http.StatusBadRequest, "EMPTY_TRANSCRIPT"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrRequestFailed), errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusServiceUnavailable, "UPSTREAM_FAILED"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, "CONFIGURATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: err.Error(), Details: details}})
}
