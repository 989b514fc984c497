// Package ratelimit spaces distinct logical requests issued by one client
// and widens that spacing after repeated upstream failures.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shaneisley/courtside/pkg/clock"
)

// Defaults calibrated against the upstream's observed tolerance.
const (
	DefaultMinInterval        = 1 * time.Second
	DefaultMaxJitter          = 500 * time.Millisecond
	DefaultRateLimitThreshold = 3
	DefaultFailureThreshold   = 5
	DefaultMaxEscalation      = 3

	// MaxEscalationLimit bounds the adaptive interval at 8x the baseline.
	MaxEscalationLimit = 3
)

// Config holds limiter tuning.
type Config struct {
	// MinInterval is the baseline spacing between requests.
	MinInterval time.Duration
	// MaxJitter bounds the random extra sleep added to every wait.
	MaxJitter time.Duration
	// RateLimitThreshold consecutive 429s switch on adaptive mode.
	RateLimitThreshold int
	// FailureThreshold consecutive failures switch on adaptive mode.
	FailureThreshold int
	// MaxEscalation caps the doubling exponent in adaptive mode.
	MaxEscalation int
}

// DefaultConfig returns the reference tuning
func DefaultConfig() Config {
	return Config{
		MinInterval:        DefaultMinInterval,
		MaxJitter:          DefaultMaxJitter,
		RateLimitThreshold: DefaultRateLimitThreshold,
		FailureThreshold:   DefaultFailureThreshold,
		MaxEscalation:      DefaultMaxEscalation,
	}
}

func (c Config) withDefaults() Config {
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	if c.RateLimitThreshold <= 0 {
		c.RateLimitThreshold = DefaultRateLimitThreshold
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.MaxEscalation < 0 {
		c.MaxEscalation = DefaultMaxEscalation
	}
	if c.MaxEscalation > MaxEscalationLimit {
		c.MaxEscalation = MaxEscalationLimit
	}
	return c
}

// State is the limiter's failure history.
type State struct {
	LastRequest           time.Time `json:"last_request"`
	LastSuccess           time.Time `json:"last_success"`
	ConsecutiveFailures   int       `json:"consecutive_failures"`
	ConsecutiveRateLimits int       `json:"consecutive_rate_limits"`
	Adaptive              bool      `json:"adaptive"`
}

// Limiter is owned by one client. All state is guarded by mu.
type Limiter struct {
	cfg   Config
	clock clock.Clock

	mu    sync.Mutex
	state State
	rng   *rand.Rand
}

// New creates a limiter. A nil clock selects the wall clock.
func New(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Limiter{
		cfg:   cfg.withDefaults(),
		clock: clk,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the jitter source, for deterministic tests
func (l *Limiter) SetRand(rng *rand.Rand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng = rng
}

// Config returns the effective configuration
func (l *Limiter) Config() Config {
	return l.cfg
}

// Interval returns the current minimum spacing between requests.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalLocked()
}

// intervalLocked is baseline outside adaptive mode and
// baseline * 2^min(failures, MaxEscalation) inside it.
func (l *Limiter) intervalLocked() time.Duration {
	if !l.state.Adaptive {
		return l.cfg.MinInterval
	}
	exp := l.state.ConsecutiveFailures
	if exp > l.cfg.MaxEscalation {
		exp = l.cfg.MaxEscalation
	}
	return l.cfg.MinInterval * time.Duration(1<<uint(exp))
}

// Wait blocks until the next request may be issued. The slot is reserved
// under the lock so concurrent callers sharing a limiter queue behind each
// other instead of firing together. A wait cut short by ctx releases its
// slot unless a later caller has already queued behind it.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	previous := l.state.LastRequest
	now := l.clock.Now()
	slot := now
	if !l.state.LastRequest.IsZero() {
		next := l.state.LastRequest.Add(l.intervalLocked())
		if next.After(slot) {
			slot = next
		}
	}
	l.state.LastRequest = slot
	jitter := l.jitterLocked()
	l.mu.Unlock()

	if err := l.clock.Sleep(ctx, slot.Sub(now)+jitter); err != nil {
		l.mu.Lock()
		if l.state.LastRequest.Equal(slot) {
			l.state.LastRequest = previous
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *Limiter) jitterLocked() time.Duration {
	if l.cfg.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(l.rng.Int63n(int64(l.cfg.MaxJitter)))
}

// RecordSuccess clears the failure history after a confirmed success.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.ConsecutiveFailures = 0
	l.state.ConsecutiveRateLimits = 0
	l.state.Adaptive = false
	l.state.LastSuccess = l.clock.Now()
}

// RecordRateLimited counts a 429 response.
func (l *Limiter) RecordRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.ConsecutiveRateLimits++
	l.state.ConsecutiveFailures++
	l.checkThresholdsLocked()
}

// RecordServerError counts a 5xx response.
func (l *Limiter) RecordServerError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.ConsecutiveFailures++
	l.checkThresholdsLocked()
}

func (l *Limiter) checkThresholdsLocked() {
	if l.state.ConsecutiveRateLimits >= l.cfg.RateLimitThreshold ||
		l.state.ConsecutiveFailures >= l.cfg.FailureThreshold {
		l.state.Adaptive = true
	}
}

// Snapshot returns a copy of the current state
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
