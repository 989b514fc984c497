package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Final statuses of a fetch
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// AttemptMetric represents metrics for a single upstream attempt
type AttemptMetric struct {
	Duration   time.Duration `json:"-"`
	StatusCode int           `json:"status_code"`
	Kind       string        `json:"kind,omitempty"`
	Success    bool          `json:"success"`
}

// DurationSeconds returns the duration in seconds as a float64
func (a *AttemptMetric) DurationSeconds() float64 {
	return float64(a.Duration) / float64(time.Second)
}

// MarshalJSON implements custom JSON marshaling for AttemptMetric
func (a *AttemptMetric) MarshalJSON() ([]byte, error) {
	type Alias AttemptMetric
	return json.Marshal(&struct {
		DurationSeconds float64 `json:"duration_seconds"`
		*Alias
	}{
		DurationSeconds: a.DurationSeconds(),
		Alias:           (*Alias)(a),
	})
}

// FetchMetrics represents metrics for one logical fetch
type FetchMetrics struct {
	Operation            string          `json:"operation,omitempty"`
	Endpoint             string          `json:"endpoint"`
	Key                  string          `json:"key"`
	CacheHit             bool            `json:"cache_hit"`
	FinalStatus          string          `json:"final_status"` // "succeeded" or "failed"
	FailureKind          string          `json:"failure_kind,omitempty"`
	TotalDurationSeconds float64         `json:"total_duration_seconds"`
	TotalAttempts        int             `json:"total_attempts"`
	SuccessfulAttempts   int             `json:"successful_attempts"`
	FailedAttempts       int             `json:"failed_attempts"`
	Attempts             []AttemptMetric `json:"attempts"`
	Timestamp            int64           `json:"timestamp"` // Unix timestamp
}

// NewFetchMetrics creates a new FetchMetrics instance. failureKind is empty
// on success.
func NewFetchMetrics(operation, endpoint, key string, cacheHit bool, failureKind string, totalDuration time.Duration, attempts []AttemptMetric, at time.Time) *FetchMetrics {
	finalStatus := StatusSucceeded
	if failureKind != "" {
		finalStatus = StatusFailed
	}

	successfulAttempts := 0
	failedAttempts := 0
	for _, attempt := range attempts {
		if attempt.Success {
			successfulAttempts++
		} else {
			failedAttempts++
		}
	}

	if attempts == nil {
		attempts = []AttemptMetric{}
	}

	return &FetchMetrics{
		Operation:            operation,
		Endpoint:             endpoint,
		Key:                  key,
		CacheHit:             cacheHit,
		FinalStatus:          finalStatus,
		FailureKind:          failureKind,
		TotalDurationSeconds: float64(totalDuration) / float64(time.Second),
		TotalAttempts:        len(attempts),
		SuccessfulAttempts:   successfulAttempts,
		FailedAttempts:       failedAttempts,
		Attempts:             attempts,
		Timestamp:            at.Unix(),
	}
}

// Succeeded reports whether the fetch produced a payload
func (m *FetchMetrics) Succeeded() bool {
	return m.FinalStatus == StatusSucceeded
}

// Counters accumulates per-client totals. Safe for concurrent use.
type Counters struct {
	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	attempts  atomic.Int64
	successes atomic.Int64

	mu       sync.Mutex
	failures map[string]int64
}

// NewCounters creates an empty counter set
func NewCounters() *Counters {
	return &Counters{failures: make(map[string]int64)}
}

// Observe folds one fetch into the totals.
func (c *Counters) Observe(m *FetchMetrics) {
	c.requests.Add(1)
	if m.CacheHit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.attempts.Add(int64(m.TotalAttempts))

	if m.Succeeded() {
		c.successes.Add(1)
		return
	}

	c.mu.Lock()
	c.failures[m.FailureKind]++
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of Counters
type Snapshot struct {
	Requests  int64            `json:"requests"`
	CacheHits int64            `json:"cache_hits"`
	Misses    int64            `json:"cache_misses"`
	Attempts  int64            `json:"attempts"`
	Successes int64            `json:"successes"`
	Failures  map[string]int64 `json:"failures"`
}

// Snapshot returns the current totals
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	failures := make(map[string]int64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	c.mu.Unlock()

	return Snapshot{
		Requests:  c.requests.Load(),
		CacheHits: c.hits.Load(),
		Misses:    c.misses.Load(),
		Attempts:  c.attempts.Load(),
		Successes: c.successes.Load(),
		Failures:  failures,
	}
}

// TotalFailures sums failures across kinds
func (s Snapshot) TotalFailures() int64 {
	var total int64
	for _, n := range s.Failures {
		total += n
	}
	return total
}

// FailureKinds returns the failure kinds seen, sorted
func (s Snapshot) FailureKinds() []string {
	kinds := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Merge adds other into s, for pool-wide totals.
func (s Snapshot) Merge(other Snapshot) Snapshot {
	out := Snapshot{
		Requests:  s.Requests + other.Requests,
		CacheHits: s.CacheHits + other.CacheHits,
		Misses:    s.Misses + other.Misses,
		Attempts:  s.Attempts + other.Attempts,
		Successes: s.Successes + other.Successes,
		Failures:  make(map[string]int64, len(s.Failures)+len(other.Failures)),
	}
	for k, v := range s.Failures {
		out.Failures[k] += v
	}
	for k, v := range other.Failures {
		out.Failures[k] += v
	}
	return out
}
