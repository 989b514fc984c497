// Package transport performs exactly one HTTP attempt against the stats
// upstream and classifies the outcome.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shaneisley/courtside/pkg/backoff"
	"github.com/shaneisley/courtside/pkg/clock"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/failure"
)

const (
	DefaultBaseURL = "https://stats.nba.com/stats"
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps how much of a response body is read into memory.
	MaxBodySize = 32 * 1024 * 1024
)

// DefaultHeaders is the browser-like header profile the upstream expects.
// Requests without it are dropped or answered slowly.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Referer", "https://www.nba.com/")
	h.Set("Origin", "https://www.nba.com")
	h.Set("x-nba-stats-origin", "stats")
	h.Set("x-nba-stats-token", "true")
	h.Set("Connection", "keep-alive")
	return h
}

// Response is a successful (2xx) upstream reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Sender issues one attempt for a request.
type Sender interface {
	Send(ctx context.Context, req endpoints.Request) (*Response, error)
}

// Config configures an HTTPTransport.
type Config struct {
	BaseURL string
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
	// Headers replaces the default header profile when non-nil.
	Headers http.Header
	// Client overrides the pooled HTTP client, mainly for tests.
	Client *http.Client
	Clock  clock.Clock
}

// HTTPTransport sends requests over a pooled keep-alive HTTP client.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
	headers http.Header
	client  *http.Client
	clock   clock.Clock
}

// New creates an HTTPTransport, filling unset fields with defaults.
func New(cfg Config) *HTTPTransport {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}
	client := cfg.Client
	if client == nil {
		client = newPooledClient()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewReal()
	}

	return &HTTPTransport{
		baseURL: baseURL,
		timeout: timeout,
		headers: headers.Clone(),
		client:  client,
		clock:   clk,
	}
}

func newPooledClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the upstream root
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Timeout returns the per-attempt deadline
func (t *HTTPTransport) Timeout() time.Duration {
	return t.timeout
}

// URL returns the full request URL for req.
func (t *HTTPTransport) URL(req endpoints.Request) string {
	u := t.baseURL + "/" + req.Endpoint()
	if q := req.Query().Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Send performs one GET. A non-nil error is always a *failure.Error,
// except when the parent context is done, in which case its error is
// returned as is.
func (t *HTTPTransport) Send(ctx context.Context, req endpoints.Request) (*Response, error) {
	endpoint := req.Endpoint()

	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, t.URL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header = t.headers.Clone()

	start := t.clock.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classifyNetError(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, t.classifyNetError(ctx, endpoint, err)
	}
	if len(body) > MaxBodySize {
		return nil, &failure.Error{
			Kind:       failure.MalformedResponse,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response body exceeds %d bytes", MaxBodySize),
		}
	}

	if err := t.classifyStatus(endpoint, resp, body); err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   t.clock.Now().Sub(start),
	}, nil
}

func (t *HTTPTransport) classifyStatus(endpoint string, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &failure.Error{
			Kind:       failure.RateLimited,
			Endpoint:   endpoint,
			StatusCode: code,
			RetryAfter: backoff.RetryAfter(resp.Header, body, t.clock.Now()),
		}
	case code >= 500:
		return &failure.Error{
			Kind:       failure.ServerError,
			Endpoint:   endpoint,
			StatusCode: code,
			RetryAfter: backoff.RetryAfter(resp.Header, nil, t.clock.Now()),
		}
	default:
		return &failure.Error{
			Kind:       failure.UnexpectedStatus,
			Endpoint:   endpoint,
			StatusCode: code,
			Body:       body,
			Err:        errors.New(http.StatusText(code)),
		}
	}
}

func (t *HTTPTransport) classifyNetError(parent context.Context, endpoint string, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failure.New(failure.Timeout, endpoint, fmt.Errorf("no response within %s: %w", t.timeout, err))
	}
	return failure.New(failure.ConnectionFailure, endpoint, err)
}
