package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrUnauthorized reports rejected credentials (HTTP 401/403).
	ErrUnauthorized = errors.New("llm: unauthorized")

	// ErrRateLimited reports that the backend throttled the request (HTTP 429).
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrUnavailable reports that the backend could not be reached at all.
	ErrUnavailable = errors.New("llm: backend unavailable")

	// ErrEmptyResponse reports a successful call that carried no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// StatusError is a non-success HTTP status that has no dedicated sentinel.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: http status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code reported by a backend onto the
// package sentinels. err is the original SDK error and stays reachable via
// errors.Unwrap.
func ClassifyStatus(code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	default:
		return &StatusError{StatusCode: code, Err: err}
	}
}

// ClassifyTransport wraps network-level failures with [ErrUnavailable].
// Context errors and timeouts pass through unchanged so callers can test
// them with errors.Is.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
