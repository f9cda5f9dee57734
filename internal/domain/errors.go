package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the surface-level error classification carried across the
// aggregator and out to API clients
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not-found"
	KindRateLimited         ErrorKind = "rate-limited"
	KindUpstreamUnavailable ErrorKind = "upstream-unavailable"
	KindInvalidInput        ErrorKind = "invalid-input"
	KindNoAddresses         ErrorKind = "no-addresses"
	KindTimeout             ErrorKind = "timeout"
	KindUnsupported         ErrorKind = "unsupported"
	KindInternal            ErrorKind = "internal"
)

// Error wraps a cause with an ErrorKind. It is the only error type that
// crosses package boundaries in the aggregation path.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with a kind, message, and optional cause
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func RateLimited(message string, cause error) *Error {
	return &Error{Kind: KindRateLimited, Message: message, Err: cause}
}

func UpstreamUnavailable(message string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: message, Err: cause}
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func NoAddresses(message string) *Error {
	return &Error{Kind: KindNoAddresses, Message: message}
}

func Timeout(message string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: cause}
}

func Unsupported(message string) *Error {
	return &Error{Kind: KindUnsupported, Message: message}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf classifies an arbitrary error. Context deadline and cancellation
// map to timeout; anything unrecognized is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
