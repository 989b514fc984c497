package ui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaneisley/courtside/pkg/failure"
	"github.com/shaneisley/courtside/pkg/metrics"
)

// Reporter handles status reporting and terminal output. Safe for use by
// several pool workers at once.
type Reporter struct {
	mu     sync.Mutex
	writer io.Writer
	quiet  bool
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{
		writer: writer,
		quiet:  false,
	}
}

// SetQuiet enables or disables quiet mode (suppresses real-time messages)
func (r *Reporter) SetQuiet(quiet bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quiet = quiet
}

// AttemptFailed reports a failed attempt with reason and next delay
func (r *Reporter) AttemptFailed(endpoint string, attempt, maxAttempts int, err error, nextDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quiet {
		return
	}

	var builder strings.Builder
	builder.WriteString("[courtside] ")
	builder.WriteString(endpoint)
	builder.WriteString(": attempt ")
	builder.WriteString(strconv.Itoa(attempt))
	builder.WriteByte('/')
	builder.WriteString(strconv.Itoa(maxAttempts))
	builder.WriteString(" failed (")
	builder.WriteString(reason(err))
	builder.WriteString(")")

	if attempt == maxAttempts {
		builder.WriteString(".\n")
	} else {
		builder.WriteString(". Retrying in ")
		builder.WriteString(formatDuration(nextDelay))
		builder.WriteString(".\n")
	}

	fmt.Fprint(r.writer, builder.String())
}

// FetchCompleted reports the outcome of one fetch
func (r *Reporter) FetchCompleted(m *metrics.FetchMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quiet {
		return
	}

	duration := formatDuration(time.Duration(m.TotalDurationSeconds * float64(time.Second)))
	switch {
	case m.CacheHit:
		fmt.Fprintf(r.writer, "✅ [courtside] %s served from cache (%s).\n", m.Endpoint, duration)
	case m.Succeeded():
		fmt.Fprintf(r.writer, "✅ [courtside] %s fetched after %s (%s).\n", m.Endpoint, plural(m.TotalAttempts, "attempt"), duration)
	default:
		fmt.Fprintf(r.writer, "❌ [courtside] %s failed after %s: %s.\n", m.Endpoint, plural(m.TotalAttempts, "attempt"), m.FailureKind)
	}
}

// BatchSummary reports the totals of a pool run
func (r *Reporter) BatchSummary(jobs, failed int, stats metrics.Snapshot, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.writer, "\nBatch Statistics:\n")
	fmt.Fprintf(r.writer, "  Jobs: %d\n", jobs)
	fmt.Fprintf(r.writer, "  Succeeded: %d\n", jobs-failed)
	fmt.Fprintf(r.writer, "  Failed: %d\n", failed)
	fmt.Fprintf(r.writer, "  Cache Hits: %d\n", stats.CacheHits)
	fmt.Fprintf(r.writer, "  Upstream Attempts: %d\n", stats.Attempts)
	for _, kind := range stats.FailureKinds() {
		fmt.Fprintf(r.writer, "  Failures (%s): %d\n", kind, stats.Failures[kind])
	}
	fmt.Fprintf(r.writer, "  Total Duration: %s\n", formatDuration(elapsed))
}

func reason(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) {
		if fe.StatusCode != 0 {
			return fmt.Sprintf("%s, status %d", fe.Kind, fe.StatusCode)
		}
		return fe.Kind.String()
	}
	if kind, ok := failure.KindOf(err); ok {
		return kind.String()
	}
	return err.Error()
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	// Handle sub-second durations
	if d < time.Second {
		return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := fmt.Sprintf("%.2f", seconds)
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
		return formatted + "s"
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	if hours > 0 {
		if minutes > 0 && seconds > 0 {
			return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
		} else if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		} else if seconds > 0 {
			return fmt.Sprintf("%dh%ds", hours, seconds)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%ds", seconds)
}
