// Package apperr classifies failures into kinds that map deterministically to
// HTTP status codes. Every layer creates these errors at the point of failure;
// the HTTP layer translates them in one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a coarse-grained categorization for errors.
type Kind string

const (
	KindInvalidConfigValue Kind = "invalid_config_value"
	KindMissingConfig      Kind = "missing_config"
	KindNotAuthorized      Kind = "not_authorized"
	KindInvalidIdentifier  Kind = "invalid_identifier"
	KindNotFound           Kind = "not_found"
	KindInvalidStatusCode  Kind = "invalid_status_code"
	KindResponse           Kind = "response_error"
)

var defaultStatus = map[Kind]int{
	KindInvalidConfigValue: http.StatusBadRequest,
	KindNotAuthorized:      http.StatusUnauthorized,
	KindInvalidIdentifier:  http.StatusNotAcceptable,
	KindNotFound:           http.StatusNotFound,
	KindInvalidStatusCode:  http.StatusBadRequest,
	KindResponse:           http.StatusBadRequest,
}

// Error is a classified failure. Payload entries are merged into the JSON
// error body next to "message".
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Payload map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Body returns the JSON error body: the payload plus the message.
func (e *Error) Body() map[string]any {
	body := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		body[k] = v
	}
	body["message"] = e.Message
	return body
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Response creates a generic client error. A zero status means 400.
func Response(status int, message string, payload map[string]any) *Error {
	return &Error{Kind: KindResponse, Message: message, Status: status, Payload: payload}
}

// InvalidConfigValue reports a configuration value that cannot be coerced.
func InvalidConfigValue(format string, args ...any) *Error {
	return New(KindInvalidConfigValue, format, args...)
}

// MissingConfig reports a required key that no source provided.
func MissingConfig(key string) *Error {
	return New(KindMissingConfig, "missing required configuration value %s", key)
}

// NotAuthorized reports a failed capability check.
func NotAuthorized(format string, args ...any) *Error {
	return New(KindNotAuthorized, format, args...)
}

// InvalidIdentifier reports a malformed store identifier.
func InvalidIdentifier(format string, args ...any) *Error {
	return New(KindInvalidIdentifier, format, args...)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// InvalidStatusCode reports an unusable echo status code.
func InvalidStatusCode(format string, args ...any) *Error {
	return New(KindInvalidStatusCode, format, args...)
}

// StatusCode maps err to an HTTP status. Unclassified errors map to 500, as
// does MissingConfig, which is fatal at startup and never expected here.
func StatusCode(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	if ae.Status != 0 {
		return ae.Status
	}
	if status, ok := defaultStatus[ae.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsKind helps callers classify errors without depending on their origin.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// As returns the classified error inside err, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
