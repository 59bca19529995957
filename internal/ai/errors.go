package ai

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrEmptyResponse       = errors.New("ai provider returned empty response")
)

// FailureKind classifies why a generation attempt failed.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureUpstream      FailureKind = "upstream"
	FailureEmptyResponse FailureKind = "empty_response"
	FailureNetwork       FailureKind = "network"
	FailureUnknown       FailureKind = "unknown"
)

// NetworkMessage is shown for connectivity-class failures.
const NetworkMessage = "We couldn't reach the itinerary service. Please check your internet connection and try again."

// GenerationError is the classified failure of one generation call. Message is
// safe to show to the traveler; Err keeps the underlying cause.
type GenerationError struct {
	Kind       FailureKind
	Message    string
	StatusCode int
	Body       string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// isNetworkError matches connection resets, refused dials, DNS failures and
// transport errors surfaced by HTTP clients.
func isNetworkError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
