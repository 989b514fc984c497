package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/courtside/pkg/backoff"
	"github.com/shaneisley/courtside/pkg/clock"
	"github.com/shaneisley/courtside/pkg/failure"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPolicy() (*Policy, *clock.Fake) {
	fake := clock.NewFake(epoch)
	p := NewPolicy(fake)
	p.Backoff = backoff.NewExponential(2*time.Second, 2.0, 60*time.Second)
	return p, fake
}

func serverError() error {
	return &failure.Error{Kind: failure.ServerError, Endpoint: "leaguedashplayerstats", StatusCode: 503}
}

func TestPolicy_SucceedsFirstTime(t *testing.T) {
	p, fake := newTestPolicy()

	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, fake.Sleeps())
}

func TestPolicy_RetryCeiling(t *testing.T) {
	// Given an upstream that always answers 503
	p, fake := newTestPolicy()
	calls := 0

	// When the policy runs
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return serverError()
	})

	// Then exactly MaxAttempts attempts are made and the error is marked exhausted
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Equal(t, DefaultMaxAttempts, attempts)
	assert.ErrorIs(t, err, failure.ServerError)

	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Exhausted)
	assert.Equal(t, DefaultMaxAttempts, fe.Attempts)
	assert.Equal(t, 503, fe.StatusCode)
	assert.Contains(t, err.Error(), "gave up after 10 attempts")

	// And one backoff sleep separates each pair of attempts
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second,
		60 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	}, fake.Sleeps())
}

func TestPolicy_NonRetryableStopsImmediately(t *testing.T) {
	kinds := []failure.Kind{failure.EmptyResponse, failure.MalformedResponse, failure.UnexpectedStatus}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			p, fake := newTestPolicy()
			calls := 0

			attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
				calls++
				return failure.New(kind, "playbyplayv2", nil)
			})

			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, kind)
			assert.Empty(t, fake.Sleeps())

			var fe *failure.Error
			require.True(t, errors.As(err, &fe))
			assert.False(t, fe.Exhausted)
		})
	}
}

func TestPolicy_UnclassifiedErrorIsTerminal(t *testing.T) {
	p, _ := newTestPolicy()
	boom := errors.New("boom")

	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return boom
	})

	assert.Equal(t, 1, attempts)
	assert.Same(t, boom, err)
}

func TestPolicy_HonoursRetryAfter(t *testing.T) {
	// Given an upstream that asks for 10s on the first attempt
	p, fake := newTestPolicy()

	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return &failure.Error{Kind: failure.RateLimited, StatusCode: 429, RetryAfter: 10 * time.Second}
		}
		return nil
	})

	// Then the second attempt is issued no sooner than 10s later
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{10 * time.Second}, fake.Sleeps())
	assert.GreaterOrEqual(t, fake.Now().Sub(epoch), 10*time.Second)
}

func TestPolicy_RetryAfterIsCapped(t *testing.T) {
	p, fake := newTestPolicy()
	p.MaxRetryAfter = time.Minute

	_, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return &failure.Error{Kind: failure.RateLimited, RetryAfter: time.Hour}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, fake.Sleeps())
}

func TestPolicy_RecoversAfterTransientFailures(t *testing.T) {
	p, _ := newTestPolicy()

	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		switch attempt {
		case 1:
			return failure.New(failure.Timeout, "x", context.DeadlineExceeded)
		case 2:
			return failure.New(failure.ConnectionFailure, "x", errors.New("connection reset"))
		default:
			return nil
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPolicy_OnRetryHook(t *testing.T) {
	p, _ := newTestPolicy()
	p.MaxAttempts = 3

	var seen []int
	var delays []time.Duration
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
		delays = append(delays, delay)
		assert.ErrorIs(t, err, failure.ServerError)
	}

	_, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return serverError()
	})

	assert.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestPolicy_CancelledContext(t *testing.T) {
	p, _ := newTestPolicy()
	ctx, cancel := context.WithCancel(context.Background())

	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return serverError()
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_CancelledBeforeStart(t *testing.T) {
	p, _ := newTestPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		t.Fatal("attempt must not run")
		return nil
	})

	assert.Zero(t, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_BareKindExhaustion(t *testing.T) {
	p, _ := newTestPolicy()
	p.MaxAttempts = 2

	_, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return failure.Timeout
	})

	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, failure.Timeout, fe.Kind)
	assert.True(t, fe.Exhausted)
	assert.Equal(t, 2, fe.Attempts)
}

func TestPolicy_AttemptCeilingBounds(t *testing.T) {
	p := &Policy{MaxAttempts: 0}
	assert.Equal(t, DefaultMaxAttempts, p.maxAttempts())

	p.MaxAttempts = MaxAttemptsLimit + 1
	assert.Equal(t, MaxAttemptsLimit, p.maxAttempts())
}
