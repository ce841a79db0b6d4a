package mirror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ExhaustedError reports that every mirror in the try-order failed. Tried
// lists the hosts in the order they were attempted.
type ExhaustedError struct {
	Tried []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all mirrors exhausted: [%s]", strings.Join(e.Tried, ", "))
}

// RateLimitError reports an HTTP 429 from the backend. It is distinct from
// generic network failures so callers can wait and retry the whole
// operation instead of hammering the next mirror.
type RateLimitError struct {
	Host string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Host)
}

// AuthError reports an HTTP-level authentication failure. The router never
// retries these; the session must be re-established by the caller.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (HTTP %d)", e.Status)
}

// statusError is a non-2xx status that is either retryable on the same
// endpoint or grounds for immediate failover to the next one.
type statusError struct {
	status   int
	failover bool
}

func (e *statusError) Error() string {
	if e.failover {
		return fmt.Sprintf("mirror-level failure (HTTP %d)", e.status)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.status)
}

// classifyStatus maps a response status to nil (usable response), a
// retryable statusError, a failover statusError, or a terminal error.
//
// 404 triggers failover rather than a hard failure because mirrors can
// disagree about resource availability.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return &statusError{status: status, failover: true}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &AuthError{Status: status}
	case status >= 500:
		return &statusError{status: status}
	}
	return nil
}

// isFailover reports whether the endpoint should be abandoned without
// further retries.
func isFailover(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.failover
}

// isTerminal reports whether the whole call should fail immediately,
// without trying further endpoints.
func isTerminal(err error) bool {
	var rl *RateLimitError
	var ae *AuthError
	return errors.As(err, &rl) || errors.As(err, &ae)
}
