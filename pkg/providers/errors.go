package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrTimeout     ErrorKind = "timeout"
	ErrConnection  ErrorKind = "connection"
	ErrParse       ErrorKind = "parse"
	ErrBusiness    ErrorKind = "business"
)

// ErrUnknownProvider is returned for provider names missing from the factory.
var ErrUnknownProvider = errors.New("unknown provider")

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (HTTP %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport reports whether the failure happened below HTTP (timeout, refused, reset).
func (e *Error) Transport() bool {
	return e.Kind == ErrTimeout || e.Kind == ErrConnection
}

// Retryable reports whether retrying later may succeed.
func (e *Error) Retryable() bool {
	return e.Transport() || e.Kind == ErrRateLimited
}

// KindOf returns the kind of a provider error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newError(provider string, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// classifyTransport maps an http.Client error onto timeout or connection.
func classifyTransport(provider string, err error) *Error {
	kind := ErrConnection
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// classifyStatus maps a non-2xx status onto an error kind.
func classifyStatus(provider string, status int) *Error {
	kind := ErrBusiness
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuth
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
