// Package cloudflare provides the HTTP client for the Cloudflare v4 REST
// and GraphQL APIs.
package cloudflare

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies API client failures.
type ErrorKind string

const (
	// ErrKindNotAuthenticated indicates no usable credential was available
	// or the API rejected the request with 401.
	ErrKindNotAuthenticated ErrorKind = "not_authenticated"
	// ErrKindTokenExpired indicates the API reported an invalid or expired
	// token inside an otherwise well-formed error envelope.
	ErrKindTokenExpired ErrorKind = "token_expired"
	// ErrKindNetwork indicates a transport-level failure (DNS, TLS,
	// timeout, connection reset).
	ErrKindNetwork ErrorKind = "network_error"
	// ErrKindInvalidResponse indicates a success envelope with no result.
	ErrKindInvalidResponse ErrorKind = "invalid_response"
	// ErrKindAPI indicates a non-auth error reported by the API.
	ErrKindAPI ErrorKind = "api_error"
	// ErrKindDecoding indicates a JSON parse or schema mismatch.
	ErrKindDecoding ErrorKind = "decoding_error"
	// ErrKindContentType indicates a 2xx response that was not JSON, e.g.
	// a captive portal or transparent proxy answering with HTML.
	ErrKindContentType ErrorKind = "unexpected_content_type"
)

// Error is the closed error type crossing the client boundary. Raw
// transport and decoder errors never leak past it; they are carried as the
// wrapped cause.
type Error struct {
	Kind        ErrorKind
	Message     string
	ContentType string // set for content-type errors
	Preview     string // short body excerpt for decode/content-type errors
	DiagPath    string // diagnostics log path, when capture is enabled
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains, so e.g.
// context cancellation stays detectable through a network error.
func (e *Error) Unwrap() error {
	return e.cause
}

// UserMessage renders the single human-readable string shown at the
// presentation boundary.
func (e *Error) UserMessage() string {
	var msg string
	switch e.Kind {
	case ErrKindNotAuthenticated:
		msg = "Not authenticated. Add an API token or sign in with wrangler."
	case ErrKindTokenExpired:
		msg = "Your session has expired. Please update your API token."
	case ErrKindNetwork:
		msg = "Network error. Check your connection and try again."
	case ErrKindInvalidResponse:
		msg = "Cloudflare returned an unexpected empty response."
	case ErrKindAPI:
		msg = "Cloudflare API error: " + e.Message
	case ErrKindDecoding:
		msg = "Could not read the Cloudflare response."
	case ErrKindContentType:
		msg = "Unexpected response from the network"
		if e.ContentType != "" {
			msg += " (" + e.ContentType + ")"
		}
		msg += ". A proxy or captive portal may be interfering."
	default:
		msg = e.Error()
	}
	if e.DiagPath != "" {
		msg += " Details logged to " + e.DiagPath + "."
	}
	return msg
}

// IsKind reports whether err is a client Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// UserMessage translates any error into the boundary string. Client errors
// render themselves; anything else falls back to its Error() text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	return err.Error()
}

// NewNotAuthenticatedError creates a not-authenticated error.
func NewNotAuthenticatedError() *Error {
	return &Error{Kind: ErrKindNotAuthenticated, Message: "no credentials available"}
}

// NewTokenExpiredError creates a token-expired error from the API message.
func NewTokenExpiredError(message string) *Error {
	return &Error{Kind: ErrKindTokenExpired, Message: message}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(cause error) *Error {
	return &Error{Kind: ErrKindNetwork, cause: cause}
}

// NewInvalidResponseError creates an error for a success envelope that
// carried no result.
func NewInvalidResponseError(endpoint string) *Error {
	return &Error{Kind: ErrKindInvalidResponse, Message: "missing result for " + endpoint}
}

// NewAPIError creates an error from an API-reported message.
func NewAPIError(message string) *Error {
	if message == "" {
		message = "Unknown error"
	}
	return &Error{Kind: ErrKindAPI, Message: message}
}

// NewDecodingError wraps a JSON parse or schema mismatch together with a
// short body preview.
func NewDecodingError(cause error, preview string) *Error {
	return &Error{Kind: ErrKindDecoding, Preview: preview, cause: cause}
}

// NewContentTypeError creates an error for a non-JSON 2xx response.
func NewContentTypeError(contentType, preview string) *Error {
	return &Error{
		Kind:        ErrKindContentType,
		Message:     "non-JSON response",
		ContentType: contentType,
		Preview:     preview,
	}
}

// authFailureKeywords are the case-insensitive substrings that reclassify
// an API error message as an expired/invalid token.
var authFailureKeywords = []string{
	"invalid access token",
	"invalid token",
	"expired",
	"authentication",
	"unauthorized",
	"not authorized",
	"invalid credentials",
	"token is invalid",
}

// isAuthFailureMessage reports whether an API error message indicates an
// authentication failure rather than an ordinary API error.
func isAuthFailureMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range authFailureKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
