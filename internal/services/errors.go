package services

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredential is returned before any request is made when no API key is configured.
	ErrMissingCredential = errors.New("pokemon tcg API key not configured")

	// ErrRateLimited matches an *HTTPError carrying status 429.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrIncompleteRecord marks a raw record missing a field required to build a card.
	ErrIncompleteRecord = errors.New("raw record is missing required fields")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// ParseFailure is returned when a card page lacks the markup the scraper expects.
type ParseFailure struct {
	URL    string
	Reason string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse %s: %s", e.URL, e.Reason)
}

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it without another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
