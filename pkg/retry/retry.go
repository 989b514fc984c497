// Package retry re-issues a failed upstream call until it succeeds, fails
// terminally, or the attempt ceiling is reached.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/shaneisley/courtside/pkg/backoff"
	"github.com/shaneisley/courtside/pkg/clock"
	"github.com/shaneisley/courtside/pkg/failure"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 10
	// DefaultMaxRetryAfter bounds how long an upstream Retry-After can park a call.
	DefaultMaxRetryAfter = 5 * time.Minute
	// MaxAttemptsLimit guards against configuration typos
	MaxAttemptsLimit = 1000
)

// Func performs one attempt. attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// RetryHook is notified before each backoff sleep.
type RetryHook func(attempt int, err error, delay time.Duration)

// Policy decides whether and when to re-issue a failed attempt.
type Policy struct {
	MaxAttempts   int
	Backoff       backoff.Strategy
	MaxRetryAfter time.Duration
	Clock         clock.Clock
	OnRetry       RetryHook
}

// NewPolicy creates a Policy with the default schedule and ceiling
func NewPolicy(clk clock.Clock) *Policy {
	return &Policy{
		MaxAttempts:   DefaultMaxAttempts,
		Backoff:       backoff.Default(),
		MaxRetryAfter: DefaultMaxRetryAfter,
		Clock:         clk,
	}
}

func (p *Policy) maxAttempts() int {
	switch {
	case p.MaxAttempts <= 0:
		return DefaultMaxAttempts
	case p.MaxAttempts > MaxAttemptsLimit:
		return MaxAttemptsLimit
	default:
		return p.MaxAttempts
	}
}

// Ceiling returns the effective attempt ceiling
func (p *Policy) Ceiling() int {
	return p.maxAttempts()
}

func (p *Policy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.NewReal()
	}
	return p.Clock
}

// Delay returns how long to wait after the given failed attempt. A
// server-provided Retry-After wins over the backoff schedule.
func (p *Policy) Delay(attempt int, err error) time.Duration {
	if hint := failure.RetryAfterOf(err); hint > 0 {
		return backoff.Cap(hint, p.MaxRetryAfter)
	}
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Delay(attempt)
}

// Do runs fn until it succeeds or returns a non-retryable error, sleeping
// between attempts. It returns the number of attempts made. When the
// ceiling is reached the final failure is returned marked as exhausted.
func (p *Policy) Do(ctx context.Context, fn Func) (int, error) {
	maxAttempts := p.maxAttempts()
	clk := p.clock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		// caller gave up; do not mask cancellation as an upstream failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}

		if !failure.Retryable(err) {
			return attempt, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := clk.Sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, exhausted(lastErr, maxAttempts)
}

func exhausted(err error, attempts int) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		out := *fe
		out.Attempts = attempts
		out.Exhausted = true
		return &out
	}
	kind, _ := failure.KindOf(err)
	return &failure.Error{
		Kind:      kind,
		Attempts:  attempts,
		Exhausted: true,
		Err:       err,
	}
}
