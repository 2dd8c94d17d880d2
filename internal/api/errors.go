package api

import (
	"errors"
	"fmt"
	"net/http"

	"prism/internal/resilience"
)

// UnavailableReason is shown instead of an error while reads of a dead
// backend are being short-circuited.
const UnavailableReason = "Prism backend is unavailable; retrying shortly"

// TransportError is a network-level failure: the request never produced
// an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Detail carries the backend's
// "detail" (or "error") field when the body had one.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// AppError is a 2xx response whose payload reported success=false.
type AppError struct {
	Op      string
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// DecodeError is a response body that was not the expected JSON.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reason returns the human-facing part of an API error: the backend detail
// or application message when there is one, else the full error text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if resilience.Unavailable(err) {
		return UnavailableReason
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return statusErr.Detail
	}
	return err.Error()
}

// IsTransient reports whether err says the backend was unreachable or
// failing, as opposed to rejecting the request.
func IsTransient(err error) bool {
	if resilience.Unavailable(err) {
		return true
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return false
}
