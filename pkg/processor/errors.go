package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"nova_bridge/pkg/ai"
)

// Kind names a failure category reported to the frontend.
type Kind string

const (
	KindUnavailable    Kind = "unavailable"
	KindTimeout        Kind = "timeout"
	KindProcessorError Kind = "processor_error"
	KindInvalidInput   Kind = "invalid_input"
	KindCancelled      Kind = "cancelled"
)

// Sentinel errors for the failure categories.
var (
	ErrUnavailable  = errors.New("processor unavailable")
	ErrTimeout      = errors.New("processor timeout")
	ErrInvalidInput = errors.New("invalid input")
)

// Error is a failure reported by the processor itself. Its reason reaches the
// caller verbatim.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// NewError creates a processor-reported error.
func NewError(reason string) *Error {
	return &Error{Reason: reason}
}

// UnavailableError wraps the cause of an unreachable processor.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	if e.Cause == nil {
		return ErrUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrUnavailable, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is allows comparison with ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable marks cause as an unreachable-processor failure.
func Unavailable(cause error) error {
	return &UnavailableError{Cause: cause}
}

// Classify maps err onto a failure kind and a human-readable reason.
// Unavailable reasons always mention "unavailable" and timeout reasons
// always mention "timeout". The reason is never blank.
func Classify(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	kind, reason := classify(err)
	if strings.TrimSpace(reason) == "" {
		reason = defaultReason(kind)
	}
	return kind, reason
}

func defaultReason(kind Kind) string {
	switch kind {
	case KindUnavailable:
		return ErrUnavailable.Error()
	case KindTimeout:
		return ErrTimeout.Error()
	case KindInvalidInput:
		return ErrInvalidInput.Error()
	case KindCancelled:
		return "request cancelled"
	default:
		return "processor error"
	}
}

func classify(err error) (Kind, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled, "request cancelled"
	case errors.Is(err, ErrTimeout):
		return KindTimeout, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, "processor timeout: deadline exceeded"
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable, err.Error()
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput, err.Error()
	}

	var procErr *Error
	if errors.As(err, &procErr) {
		return KindProcessorError, procErr.Reason
	}

	var apiErr *ai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, fmt.Sprintf("processor timeout: %v", err)
	}
	if isConnectFailure(err) {
		return KindUnavailable, fmt.Sprintf("%s: %v", ErrUnavailable, err)
	}

	return KindProcessorError, err.Error()
}

func classifyStatus(apiErr *ai.APIError) (Kind, string) {
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout, fmt.Sprintf("processor timeout: %s", apiErr.Error())
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return KindUnavailable, fmt.Sprintf("%s: %s", ErrUnavailable, apiErr.Error())
	default:
		return KindProcessorError, apiErr.Error()
	}
}

func isConnectFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
