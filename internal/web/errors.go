// Package web holds the HTTP plumbing shared by every sub-application: error mapping, JSON helpers, sessions,
// request identities and access logging.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/storage"
)

// MaxBodySize bounds JSON request bodies.
const MaxBodySize = 1 << 20

var (
	ErrRateLimited = errors.New("rate limited")
	ErrUpstream    = errors.New("upstream failure")
	ErrTimeout     = errors.New("upstream timeout")
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// GetCode maps an error kind to its HTTP status.
func GetCode(err error) int {
	if e, ok := oauth.AsError(err); ok {
		return e.Status
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, storage.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, oauth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, oauth.ErrInsufficientScope):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, db.ErrNotFound), errors.Is(err, storage.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, db.ErrConflict), errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kind(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "upstream_failure"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// WriteError answers with the status GetCode picks for err. Internal errors are logged and never described.
func WriteError(w http.ResponseWriter, err error) {
	code := GetCode(err)
	body := ErrorBody{Error: kind(code)}

	if e, ok := oauth.AsError(err); ok {
		body = ErrorBody{Error: e.Code, Description: e.Description}
	} else if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
	} else {
		body.Description = err.Error()
	}

	if code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedhost"`)
	}
	WriteJSON(w, code, body)
}

// WriteStatus answers with a bare error kind for code.
func WriteStatus(w http.ResponseWriter, code int, description string) {
	WriteJSON(w, code, ErrorBody{Error: kind(code), Description: description})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// DecodeJSON reads a JSON body into v. Malformed bodies yield service.ErrInvalidInput.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize))
	if err := dec.Decode(v); err != nil {
		return errors.Join(service.ErrInvalidInput, err)
	}
	return nil
}

// NoStore marks a response as not cacheable, as required for token responses.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
