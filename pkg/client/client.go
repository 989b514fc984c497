// Package client is the facade callers use to fetch statistics. Every
// logical request flows cache, rate limiter, retry policy, transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/clock"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/failure"
	"github.com/shaneisley/courtside/pkg/logging"
	"github.com/shaneisley/courtside/pkg/metrics"
	"github.com/shaneisley/courtside/pkg/payload"
	"github.com/shaneisley/courtside/pkg/ratelimit"
	"github.com/shaneisley/courtside/pkg/retry"
	"github.com/shaneisley/courtside/pkg/transport"
)

// DefaultCacheDir is used when no cache is supplied
const DefaultCacheDir = ".courtside/cache"

// Recorder persists fetch metrics, typically the history ledger.
type Recorder interface {
	Store(ctx context.Context, m *metrics.FetchMetrics) error
}

// Observer receives progress events, typically a terminal reporter.
type Observer interface {
	AttemptFailed(endpoint string, attempt, maxAttempts int, err error, delay time.Duration)
	FetchCompleted(m *metrics.FetchMetrics)
}

// Options configures a Client. Zero fields get defaults.
type Options struct {
	Cache     cache.Cache
	Transport transport.Sender
	Limiter   *ratelimit.Limiter
	Retry     *retry.Policy
	Catalog   *endpoints.Catalog
	Logger    *logging.Logger
	Recorder  Recorder
	Observer  Observer
	Clock     clock.Clock
}

// Client fetches statistics for one worker. Each Client owns its own
// limiter state; share a Client between goroutines only if they should
// also share its pacing.
type Client struct {
	cache     cache.Cache
	transport transport.Sender
	limiter   *ratelimit.Limiter
	retry     *retry.Policy
	catalog   *endpoints.Catalog
	logger    *logging.Logger
	recorder  Recorder
	observer  Observer
	clock     clock.Clock
	counters  *metrics.Counters
}

// Result is the outcome of a successful fetch.
type Result struct {
	Request  endpoints.Request
	Key      string
	Payload  *payload.Payload
	Body     []byte
	CacheHit bool
	Attempts int
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewReal()
	}

	c := opts.Cache
	if c == nil {
		fc, err := cache.NewFileCache(DefaultCacheDir, cache.DefaultTTL, clk)
		if err != nil {
			return nil, fmt.Errorf("failed to create default cache: %w", err)
		}
		c = fc
	}

	sender := opts.Transport
	if sender == nil {
		sender = transport.New(transport.Config{Clock: clk})
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig(), clk)
	}

	policy := opts.Retry
	if policy == nil {
		policy = retry.NewPolicy(clk)
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = endpoints.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Client{
		cache:     c,
		transport: sender,
		limiter:   limiter,
		retry:     policy,
		catalog:   catalog,
		logger:    logger.WithComponent("client"),
		recorder:  opts.Recorder,
		observer:  opts.Observer,
		clock:     clk,
		counters:  metrics.NewCounters(),
	}, nil
}

// Catalog returns the operation catalog
func (c *Client) Catalog() *endpoints.Catalog {
	return c.catalog
}

// RateLimiterState returns a snapshot of the limiter state
func (c *Client) RateLimiterState() ratelimit.State {
	return c.limiter.Snapshot()
}

// Stats returns the client's fetch counters
func (c *Client) Stats() metrics.Snapshot {
	return c.counters.Snapshot()
}

// Fetch renders a named operation and fetches it. Argument errors are
// local and never reach the upstream.
func (c *Client) Fetch(ctx context.Context, operation string, args endpoints.Args) (*Result, error) {
	req, err := c.catalog.Render(operation, args)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, operation, req)
}

// Do fetches an already-built request.
func (c *Client) Do(ctx context.Context, req endpoints.Request) (*Result, error) {
	return c.do(ctx, "", req)
}

func (c *Client) do(ctx context.Context, operation string, req endpoints.Request) (*Result, error) {
	start := c.clock.Now()
	endpoint := req.Endpoint()
	key := cache.Key(endpoint, req.Params())
	log, _ := c.logger.NewRequest()

	if result, ok := c.lookup(ctx, log, req, key); ok {
		c.finish(ctx, log, operation, endpoint, key, true, nil, nil, start)
		return result, nil
	}

	var (
		attempts []metrics.AttemptMetric
		body     []byte
		parsed   *payload.Payload
	)

	policy := *c.retry
	maxAttempts := policy.Ceiling()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		kind, _ := failure.KindOf(err)
		log.LogRetry(endpoint, attempt, maxAttempts, kind.String(), delay)
		if c.observer != nil {
			c.observer.AttemptFailed(endpoint, attempt, maxAttempts, err, delay)
		}
		if c.retry.OnRetry != nil {
			c.retry.OnRetry(attempt, err, delay)
		}
	}

	// One pacing slot per logical request; retries are spaced by the policy.
	if err := c.limiter.Wait(ctx); err != nil {
		c.finish(ctx, log, operation, endpoint, key, false, nil, err, start)
		return nil, err
	}

	n, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		metric, b, p, err := c.attempt(ctx, req)
		attempts = append(attempts, metric)
		if err != nil {
			return err
		}
		body, parsed = b, p
		return nil
	})
	if err != nil {
		c.finish(ctx, log, operation, endpoint, key, false, attempts, err, start)
		return nil, err
	}

	if putErr := c.cache.Put(ctx, key, body); putErr != nil {
		log.LogError("cache_put", putErr, "endpoint", endpoint, "key", key)
	}

	c.finish(ctx, log, operation, endpoint, key, false, attempts, nil, start)
	return &Result{
		Request:  req,
		Key:      key,
		Payload:  parsed,
		Body:     body,
		Attempts: n,
	}, nil
}

// lookup serves a fresh cached record. Read errors and undecodable records
// are logged and treated as a miss.
func (c *Client) lookup(ctx context.Context, log *logging.Logger, req endpoints.Request, key string) (*Result, bool) {
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.LogError("cache_get", err, "endpoint", req.Endpoint(), "key", key)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	p, err := payload.Parse(body)
	if err != nil {
		log.Warn("ignoring unreadable cache record", "endpoint", req.Endpoint(), "key", key, "error", err.Error())
		return nil, false
	}

	return &Result{Request: req, Key: key, Payload: p, Body: body, CacheHit: true}, true
}

// attempt issues one transport call and feeds the outcome back to the limiter.
func (c *Client) attempt(ctx context.Context, req endpoints.Request) (metrics.AttemptMetric, []byte, *payload.Payload, error) {
	endpoint := req.Endpoint()
	started := c.clock.Now()

	resp, err := c.transport.Send(ctx, req)
	metric := metrics.AttemptMetric{Duration: c.clock.Now().Sub(started)}
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) {
			metric.StatusCode = fe.StatusCode
		}
		if kind, ok := failure.KindOf(err); ok {
			metric.Kind = kind.String()
			switch kind {
			case failure.RateLimited:
				c.limiter.RecordRateLimited()
			case failure.ServerError:
				c.limiter.RecordServerError()
			}
		}
		return metric, nil, nil, err
	}

	metric.StatusCode = resp.StatusCode
	p, err := payload.Parse(resp.Body)
	switch {
	case err == nil:
		c.limiter.RecordSuccess()
		metric.Success = true
		return metric, resp.Body, p, nil

	case errors.Is(err, payload.ErrNoRows):
		// the upstream answered; only the data is missing
		c.limiter.RecordSuccess()
		metric.Kind = failure.EmptyResponse.String()
		return metric, nil, nil, &failure.Error{
			Kind:       failure.EmptyResponse,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        err,
		}

	default:
		metric.Kind = failure.MalformedResponse.String()
		return metric, nil, nil, &failure.Error{
			Kind:       failure.MalformedResponse,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        err,
		}
	}
}

func (c *Client) finish(ctx context.Context, log *logging.Logger, operation, endpoint, key string, hit bool, attempts []metrics.AttemptMetric, err error, start time.Time) {
	now := c.clock.Now()
	m := metrics.NewFetchMetrics(operation, endpoint, key, hit, failureLabel(err), now.Sub(start), attempts, now)
	c.counters.Observe(m)

	if err != nil {
		log.LogError("fetch", err, "endpoint", endpoint, "key", key, "attempts", len(attempts))
	} else {
		log.LogFetch(endpoint, key, hit, len(attempts), now.Sub(start))
	}

	if c.observer != nil {
		c.observer.FetchCompleted(m)
	}
	if c.recorder != nil {
		// the ledger must not depend on the caller still waiting
		if recErr := c.recorder.Store(context.WithoutCancel(ctx), m); recErr != nil {
			log.LogError("history_store", recErr, "endpoint", endpoint)
		}
	}
}

func failureLabel(err error) string {
	if err == nil {
		return ""
	}
	if kind, ok := failure.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
