// Package retry provides bounded exponential backoff for outbound calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// ErrMaxRetriesExceeded wraps the last error once the budget is spent
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls retry behavior
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	RetryableFunc func(error) bool
}

// Validate checks the policy
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	return nil
}

// DefaultPolicy is tuned for provider HTTP calls: two retries with jittered
// exponential backoff, retrying only errors marked retryable.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Retrier executes operations under a policy
type Retrier struct {
	policy Policy
	log    *logger.Logger
}

// NewRetrier creates a retrier. Panics on an invalid policy since that is
// always a programming error.
func NewRetrier(policy Policy, log *logger.Logger) *Retrier {
	if err := policy.Validate(); err != nil {
		panic(fmt.Sprintf("invalid retry policy: %v", err))
	}
	return &Retrier{policy: policy, log: log}
}

// Do executes operation, retrying retryable failures with backoff
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				r.log.Info("operation succeeded after retries", "attempt", attempt)
			}
			return nil
		}

		if !r.isRetryable(lastErr) {
			return lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}

		delay := r.backoff(attempt + 1)
		r.log.Debug("retrying operation", "error", lastErr, "attempt", attempt+1, "backoff", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func (r *Retrier) isRetryable(err error) bool {
	if r.policy.RetryableFunc != nil {
		return r.policy.RetryableFunc(err)
	}

	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// backoff returns the jittered delay for the given attempt (1-based)
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if max := float64(r.policy.MaxDelay); r.policy.MaxDelay > 0 && d > max {
		d = max
	}
	// up to 20% jitter to avoid retry stampedes
	d += d * 0.2 * rand.Float64()
	return time.Duration(d)
}

// Do is a package-level helper for one-off retries
func Do(ctx context.Context, policy Policy, log *logger.Logger, operation func() error) error {
	return NewRetrier(policy, log).Do(ctx, operation)
}
