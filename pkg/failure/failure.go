// Package failure defines the typed failures surfaced by the statistics client.
//
// Retryable kinds (RateLimited, ServerError, ConnectionFailure, Timeout) are
// absorbed by the retry policy until its attempt ceiling is reached. Terminal
// kinds (EmptyResponse, MalformedResponse, UnexpectedStatus) are returned to
// the caller on the first occurrence.
package failure

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failed attempt. A Kind is itself an error so callers
// can write errors.Is(err, failure.EmptyResponse).
type Kind int

const (
	RateLimited Kind = iota + 1
	ServerError
	ConnectionFailure
	Timeout
	EmptyResponse
	MalformedResponse
	UnexpectedStatus
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case ConnectionFailure:
		return "connection_failure"
	case Timeout:
		return "timeout"
	case EmptyResponse:
		return "empty_response"
	case MalformedResponse:
		return "malformed_response"
	case UnexpectedStatus:
		return "unexpected_status"
	default:
		return "unknown"
	}
}

func (k Kind) Error() string {
	return k.String()
}

// Retryable reports whether a failure of this kind may succeed when the
// same request is issued again.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, ServerError, ConnectionFailure, Timeout:
		return true
	default:
		return false
	}
}

// Error is a classified failure for one endpoint.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	// RetryAfter is the delay requested by the upstream, zero when absent.
	RetryAfter time.Duration
	// Body holds the raw response for malformed responses.
	Body []byte
	// Attempts is set once the retry policy gives up.
	Attempts  int
	Exhausted bool
	Err       error
}

// New creates an Error of the given kind
func New(kind Kind, endpoint string, cause error) *Error {
	return &Error{Kind: kind, Endpoint: endpoint, Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Exhausted {
		msg = fmt.Sprintf("%s (gave up after %d attempts)", msg, e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target against this error's kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && e.Kind == kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind, true
	}
	return 0, false
}

// Retryable reports whether err is a classified, retryable failure.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Retryable()
}

// RetryAfterOf returns the upstream-requested delay carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
