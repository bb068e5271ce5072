package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind is the machine-usable classification attached to every
// user-visible failure. Network-class kinds are recoverable and drive
// endpoint/token rotation; structural kinds surface immediately.
type ErrorKind string

const (
	// Catalog fetch classes, all recoverable.
	ErrTimeout        ErrorKind = "timeout"
	ErrConnectionLost ErrorKind = "connection_lost"
	ErrOffline        ErrorKind = "offline"
	ErrHostNotFound   ErrorKind = "host_not_found"
	ErrUnauthorized   ErrorKind = "unauthorized"
	ErrBadResponse    ErrorKind = "bad_response"

	// Plan resolution classes, structural.
	ErrInvalidURL  ErrorKind = "invalid_url"
	ErrMissingPart ErrorKind = "missing_part"
	ErrDecode      ErrorKind = "decode"

	// Recovery terminal class; fatal for the current attempt only.
	ErrRecoveryExhausted ErrorKind = "recovery_exhausted"
)

// Error is the domain error carried across package boundaries: a Kind for
// machine dispatch, a short human-readable message, and the wrapped cause.
type Error struct {
	Kind    ErrorKind // Machine-usable classification
	Message string    // Human-readable description
	Err     error     // Wrapped cause, may be nil
}

// NewError builds a domain error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a domain error around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the domain classification from any error chain, returning
// ErrBadResponse when the chain carries no domain error at all.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrBadResponse
}

// IsRecoverable reports whether the kind belongs to the network class that
// internal retry/rotation is allowed to absorb before surfacing.
func (k ErrorKind) IsRecoverable() bool {
	switch k {
	case ErrTimeout, ErrConnectionLost, ErrOffline, ErrHostNotFound, ErrUnauthorized, ErrBadResponse:
		return true
	default:
		return false
	}
}

// ClassifyNetworkError maps a transport-level failure onto the catalog error
// taxonomy. The classification is coarse on purpose: every network kind is
// treated the same way by the orchestrator (retry or rotate), the kind only
// feeds diagnostics and metrics labels.
func ClassifyNetworkError(err error) ErrorKind {
	if err == nil {
		return ErrBadResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrHostNotFound
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return ErrOffline
		}
		return ErrConnectionLost
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "network is unreachable"):
		return ErrOffline
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "EOF"):
		return ErrConnectionLost
	default:
		return ErrBadResponse
	}
}

// ClassifyStatus maps an HTTP response status onto the error taxonomy.
// Success statuses map to "" so callers can branch on a single call.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrMissingPart
	default:
		return ErrBadResponse
	}
}
