// Package providers holds what the external capability clients (embeddings,
// image generation, prompt rewriting) have in common.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed call to an external provider.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"
	KindRateLimit       ErrorKind = "rate_limit"
	KindBadRequest      ErrorKind = "bad_request"
	KindContentRejected ErrorKind = "content_rejected"
	KindServer          ErrorKind = "server"
	KindTransport       ErrorKind = "transport"
)

// APIError is returned by every provider client for non-success outcomes.
type APIError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Transport wraps a network-level failure.
func Transport(provider string, err error) *APIError {
	return &APIError{Provider: provider, Kind: KindTransport, Message: err.Error(), Err: err}
}

// contentPolicyMarkers identify 400 responses that mean "prompt refused", not "request malformed".
var contentPolicyMarkers = []string{"content_policy", "safety system", "moderation"}

// FromResponse builds an APIError from a non-2xx response, reading a bounded slice of the body.
func FromResponse(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := extractMessage(body)

	kind := KindServer
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = KindBadRequest
		lower := strings.ToLower(string(body))
		for _, marker := range contentPolicyMarkers {
			if strings.Contains(lower, marker) {
				kind = KindContentRejected
				break
			}
		}
	}

	return &APIError{Provider: provider, Kind: kind, StatusCode: resp.StatusCode, Message: msg}
}

func extractMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	return strings.TrimSpace(string(body))
}
