// Package retry re-runs transient API failures with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Policy bounds the number of extra attempts and the backoff between them.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  Classifier
	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New builds a policy with the given retry budget and default delays.
func New(maxRetries int, retryable Classifier) *Policy {
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Retryable:  retryable,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the budget is spent.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}
		lastErr = fn()
		if !p.shouldRetry(lastErr, attempt) {
			return lastErr
		}
		if err := p.sleep(ctx, p.Backoff(attempt)); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
}

func (p *Policy) shouldRetry(err error, attempt int) bool {
	if err == nil || p == nil {
		return false
	}
	if attempt >= p.MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// Backoff returns the wait duration before attempt+1: half the capped
// exponential delay plus up to the same amount of jitter.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
