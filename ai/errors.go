package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// The upstream failure taxonomy. Rate limits and transient network errors
// are retryable; authorization/payment failures and contract violations
// are not.

// RateLimitError reports an upstream 429. RetryAfter is zero when the
// provider did not send the header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "provider rate limit exceeded"
}

// AuthError reports an upstream authorization or payment failure. It is
// fatal: retrying cannot succeed until the account is fixed.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider rejected credentials (%d): %s", e.Status, e.Message)
}

// ParseError reports a provider reply that does not satisfy the output
// contract. Callers must treat it as a hard failure; no partial result is
// ever returned alongside it.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("classification reply invalid: field %q %s", e.Field, e.Reason)
	}
	return "classification reply invalid: " + e.Reason
}

// UpstreamError reports any other non-2xx reply.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider error (%d): %s", e.Status, e.Body)
}

// Retryable reports whether the pipeline may retry the call. Only rate
// limits, timeouts, transient network failures and 5xx replies qualify.
func Retryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
