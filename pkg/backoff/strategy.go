package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Default retry delays: 2s doubling to 60s, plus up to 1s of jitter.
const (
	DefaultBaseDelay  = 2 * time.Second
	DefaultMultiplier = 2.0
	DefaultMaxDelay   = 60 * time.Second
	DefaultJitter     = 1 * time.Second
)

// Strategy defines the interface for backoff strategies
type Strategy interface {
	// Delay returns the duration to wait before the next attempt
	// attempt is 1-based (1 for first retry, 2 for second retry, etc.)
	Delay(attempt int) time.Duration
}

// Default returns the retry delay schedule used by the statistics client.
func Default() Strategy {
	return NewJittered(NewExponential(DefaultBaseDelay, DefaultMultiplier, DefaultMaxDelay), DefaultJitter)
}

// Fixed implements a fixed delay strategy
type Fixed struct {
	Duration time.Duration
}

// NewFixed creates a new Fixed backoff strategy
func NewFixed(duration time.Duration) *Fixed {
	return &Fixed{
		Duration: duration,
	}
}

// Delay returns the fixed duration for any attempt
func (f *Fixed) Delay(attempt int) time.Duration {
	return f.Duration
}

// Exponential implements an exponential backoff strategy
type Exponential struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponential creates a new Exponential backoff strategy
// baseDelay is the initial delay, multiplier is the factor to increase by each attempt
// maxDelay is the maximum delay (0 means no limit)
func NewExponential(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	return &Exponential{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns the exponentially increasing delay for the given attempt
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return e.BaseDelay
	}

	// baseDelay * multiplier^(attempt-1)
	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))

	// float overflow on very high attempts
	if delay > float64(math.MaxInt64) {
		if e.MaxDelay > 0 {
			return e.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}

	result := time.Duration(delay)
	if e.MaxDelay > 0 && result > e.MaxDelay {
		result = e.MaxDelay
	}

	return result
}

// Jittered adds a uniformly random extra delay in [0, MaxJitter) on top of
// the wrapped strategy so that independent clients do not retry in lockstep.
type Jittered struct {
	Base      Strategy
	MaxJitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJittered wraps base with additive jitter
func NewJittered(base Strategy, maxJitter time.Duration) *Jittered {
	return &Jittered{
		Base:      base,
		MaxJitter: maxJitter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source, for deterministic tests
func (j *Jittered) WithRand(rng *rand.Rand) *Jittered {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rng = rng
	return j
}

// Delay returns the base delay plus jitter
func (j *Jittered) Delay(attempt int) time.Duration {
	delay := j.Base.Delay(attempt)
	if j.MaxJitter <= 0 {
		return delay
	}

	j.mu.Lock()
	extra := time.Duration(j.rng.Int63n(int64(j.MaxJitter)))
	j.mu.Unlock()

	return delay + extra
}

// Cap returns d limited to max. A non-positive max disables the cap.
func Cap(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
