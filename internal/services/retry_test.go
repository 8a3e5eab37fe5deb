package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func testPolicy(sleeps *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = 100 * time.Millisecond
	p.jitter = func(time.Duration) time.Duration { return 0 }
	p.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p
}

func TestRetryDelayGrowth(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	want := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 225 * time.Millisecond, 337500 * time.Microsecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryJitterBounded(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BaseDelay = 10 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := p.Delay(1)
		if d < 10*time.Millisecond || d >= 20*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within [10ms, 20ms)", d)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	calls := 0
	got, err := Retry(context.Background(), p, "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{StatusCode: http.StatusTooManyRequests, URL: "u"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
	if len(sleeps) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(sleeps))
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	calls := 0
	_, err := Retry(context.Background(), p, "test", func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{StatusCode: http.StatusBadGateway, URL: "u"}
	})
	if calls != 5 {
		t.Errorf("expected 5 attempts, got %d", calls)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected HTTPError 502 to propagate, got %v", err)
	}
	if len(sleeps) != 4 {
		t.Errorf("expected 4 sleeps between 5 attempts, got %d", len(sleeps))
	}
}

func TestRetryMissingCredentialNotRetried(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	calls := 0
	_, err := Retry(context.Background(), p, "test", func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("fetch cards: %w", ErrMissingCredential)
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	sentinel := errors.New("bad json")
	calls := 0
	_, err := Retry(context.Background(), p, "test", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) || calls != 1 {
		t.Errorf("expected permanent error after 1 call, got %v after %d", err, calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, p, "test", func(context.Context) (int, error) {
			return 0, &HTTPError{StatusCode: http.StatusServiceUnavailable, URL: "u"}
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}

func TestHTTPErrorRateLimited(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: http.StatusTooManyRequests, URL: "u"})
	if !errors.Is(err, ErrRateLimited) {
		t.Error("429 should match ErrRateLimited")
	}
	if errors.Is(&HTTPError{StatusCode: 500}, ErrRateLimited) {
		t.Error("500 should not match ErrRateLimited")
	}
}
