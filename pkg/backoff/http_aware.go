package backoff

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBodyScan bounds how much of a response body is searched for JSON retry hints
const maxBodyScan = 10 * 1024

// retryFields are JSON body fields some gateways use instead of a header
var retryFields = []string{"retry_after", "retry_after_seconds", "retryAfter", "retryAfterSeconds", "retry_in"}

// RetryAfter extracts the server-requested delay from an HTTP response.
// Headers are consulted first (Retry-After as seconds or an HTTP date,
// X-RateLimit-Retry-After, then X-RateLimit-Reset as a Unix timestamp),
// followed by retry fields in a JSON body. Zero means no hint was present.
func RetryAfter(header http.Header, body []byte, now time.Time) time.Duration {
	if delay := parseRetryAfterHeader(header.Get("Retry-After"), now); delay > 0 {
		return delay
	}
	if delay := parseRateLimitHeaders(header, now); delay > 0 {
		return delay
	}
	return parseJSONBody(body)
}

// parseRetryAfterHeader handles both forms allowed by RFC 9110
func parseRetryAfterHeader(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if delay := when.Sub(now); delay > 0 {
		return delay
	}
	return 0
}

// parseRateLimitHeaders extracts delay from rate limit headers
func parseRateLimitHeaders(header http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(header.Get("X-RateLimit-Retry-After")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	if v := strings.TrimSpace(header.Get("X-RateLimit-Reset")); v != "" {
		if timestamp, err := strconv.ParseInt(v, 10, 64); err == nil {
			if delay := time.Unix(timestamp, 0).Sub(now); delay > 0 {
				return delay
			}
		}
	}

	return 0
}

// parseJSONBody reads a top-level retry field from a JSON object body
func parseJSONBody(body []byte) time.Duration {
	if len(body) == 0 || len(body) > maxBodyScan {
		return 0
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0
	}

	for _, field := range retryFields {
		value, exists := data[field]
		if !exists {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case string:
			if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return 0
}
