// Package history keeps a local SQLite ledger of fetches for later review.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaneisley/courtside/pkg/metrics"
)

// Database manages the SQLite fetch ledger
type Database struct {
	db   *sql.DB
	path string
}

// Record is one stored fetch
type Record struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Operation       string    `json:"operation,omitempty"`
	Endpoint        string    `json:"endpoint"`
	Key             string    `json:"key"`
	CacheHit        bool      `json:"cache_hit"`
	FinalStatus     string    `json:"final_status"`
	FailureKind     string    `json:"failure_kind,omitempty"`
	Attempts        int       `json:"attempts"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// EndpointStats represents statistics for one endpoint
type EndpointStats struct {
	Endpoint        string        `json:"endpoint"`
	Count           int           `json:"count"`
	SuccessRate     float64       `json:"success_rate"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	AverageAttempts float64       `json:"average_attempts"`
	AvgDuration     time.Duration `json:"avg_duration"`
}

// Summary represents aggregated statistics since a point in time
type Summary struct {
	Since          time.Time       `json:"since"`
	TotalFetches   int             `json:"total_fetches"`
	SuccessfulRuns int             `json:"successful_runs"`
	FailedRuns     int             `json:"failed_runs"`
	SuccessRate    float64         `json:"success_rate"`
	Endpoints      []EndpointStats `json:"endpoints"`
}

// Open creates or opens the ledger at dbPath
func Open(dbPath string) (*Database, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps ":memory:" on one database
	db.SetMaxOpenConns(1)

	database := &Database{
		db:   db,
		path: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return database, nil
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at INTEGER NOT NULL,
		operation TEXT NOT NULL DEFAULT '',
		endpoint TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		cache_hit BOOLEAN NOT NULL,
		final_status TEXT NOT NULL,
		failure_kind TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		attempt_detail TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_time ON fetches(fetched_at);
	CREATE INDEX IF NOT EXISTS idx_fetches_endpoint ON fetches(endpoint);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Path returns the database location
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Store appends one fetch to the ledger
func (d *Database) Store(ctx context.Context, m *metrics.FetchMetrics) error {
	detail, err := json.Marshal(m.Attempts)
	if err != nil {
		return fmt.Errorf("failed to encode attempts: %w", err)
	}

	query := `
	INSERT INTO fetches (
		fetched_at, operation, endpoint, cache_key, cache_hit, final_status,
		failure_kind, attempts, duration_seconds, attempt_detail
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = d.db.ExecContext(ctx, query,
		m.Timestamp, m.Operation, m.Endpoint, m.Key, m.CacheHit, m.FinalStatus,
		m.FailureKind, m.TotalAttempts, m.TotalDurationSeconds, string(detail))
	if err != nil {
		return fmt.Errorf("failed to store fetch: %w", err)
	}
	return nil
}

// Recent returns the latest fetches, newest first
func (d *Database) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, fetched_at, operation, endpoint, cache_key, cache_hit, final_status,
	       failure_kind, attempts, duration_seconds
	FROM fetches
	ORDER BY fetched_at DESC, id DESC
	LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetches: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var fetchedAt int64
		if err := rows.Scan(&r.ID, &fetchedAt, &r.Operation, &r.Endpoint, &r.Key, &r.CacheHit,
			&r.FinalStatus, &r.FailureKind, &r.Attempts, &r.DurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan fetch: %w", err)
		}
		r.Timestamp = time.Unix(fetchedAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

// Summary aggregates fetches recorded at or after since, per endpoint
func (d *Database) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	query := `
	SELECT endpoint,
	       COUNT(*),
	       SUM(CASE WHEN final_status = 'succeeded' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END),
	       AVG(attempts),
	       AVG(duration_seconds)
	FROM fetches
	WHERE fetched_at >= ?
	GROUP BY endpoint
	ORDER BY COUNT(*) DESC, endpoint ASC`

	rows, err := d.db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate fetches: %w", err)
	}
	defer rows.Close()

	summary := &Summary{Since: since, Endpoints: []EndpointStats{}}
	for rows.Next() {
		var (
			es          EndpointStats
			succeeded   int
			hits        int
			avgAttempts float64
			avgSeconds  float64
		)
		if err := rows.Scan(&es.Endpoint, &es.Count, &succeeded, &hits, &avgAttempts, &avgSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		es.SuccessRate = float64(succeeded) / float64(es.Count)
		es.CacheHitRate = float64(hits) / float64(es.Count)
		es.AverageAttempts = avgAttempts
		es.AvgDuration = time.Duration(avgSeconds * float64(time.Second))

		summary.TotalFetches += es.Count
		summary.SuccessfulRuns += succeeded
		summary.Endpoints = append(summary.Endpoints, es)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary.FailedRuns = summary.TotalFetches - summary.SuccessfulRuns
	if summary.TotalFetches > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRuns) / float64(summary.TotalFetches)
	}
	return summary, nil
}

// Purge deletes fetches older than before and returns how many were removed
func (d *Database) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM fetches WHERE fetched_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge fetches: %w", err)
	}
	return result.RowsAffected()
}
