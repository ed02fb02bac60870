// Package remote holds the HTTP plumbing shared by connectors, the regulator
// submitter and the market data source: a resty client factory, error
// classification and a bounded exponential backoff loop.
package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"energylink/internal/apperrors"

	"github.com/go-resty/resty/v2"
	"github.com/jpillora/backoff"
)

const userAgent = "energylink/1.0"

// NewClient returns a resty client with a per-request timeout. Retries are
// never delegated to resty; callers go through Policy.Do so attempts are counted.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	if baseURL != "" {
		client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	}
	return client
}

// Classify converts a resty outcome into the error taxonomy. A cancelled
// caller context is returned as is so it is never retried.
func Classify(ctx context.Context, op string, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return &apperrors.TransientNetworkError{Op: op, Timeout: true, Err: err}
		}
		return &apperrors.TransientNetworkError{Op: op, Err: err}
	}
	if resp == nil {
		return &apperrors.TransientNetworkError{Op: op, Err: errors.New("empty response")}
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return &apperrors.TransientNetworkError{Op: op, StatusCode: code}
	default:
		return &apperrors.RemoteRejectionError{Op: op, StatusCode: code, Reason: reason(resp)}
	}
}

func reason(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

// Policy is a bounded retry schedule: BaseDelay doubles after every failed
// attempt up to MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn sequentially until it succeeds, returns a non-transient error or
// the attempt ceiling is reached. The context is checked between attempts.
// It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	b := &backoff.Backoff{Min: p.BaseDelay, Max: p.MaxDelay, Factor: 2, Jitter: false}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		last = fn(ctx, attempt)
		if last == nil {
			return attempt, nil
		}
		if !apperrors.IsTransient(last) {
			return attempt, last
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, b.Duration()); err != nil {
			return attempt, err
		}
	}
	return maxAttempts, &apperrors.RetryExhaustedError{Op: op, Attempts: maxAttempts, Last: last}
}

// Delays returns the waits Do would use between attempts.
func (p Policy) Delays() []time.Duration {
	b := &backoff.Backoff{Min: p.BaseDelay, Max: p.MaxDelay, Factor: 2, Jitter: false}
	out := make([]time.Duration, 0, p.MaxAttempts)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.Duration())
	}
	return out
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
