package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaneisley/courtside/pkg/clock"
)

const recordSuffix = ".json"

// FileCache stores one file per key in a flat directory. The file holds the
// raw response body and its modification time is the entry's store time.
type FileCache struct {
	dir   string
	ttl   time.Duration
	clock clock.Clock
}

// NewFileCache creates a file cache rooted at dir. A zero ttl selects
// DefaultTTL; a nil clock selects the wall clock.
func NewFileCache(dir string, ttl time.Duration, clk clock.Clock) (*FileCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache directory is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewReal()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{dir: dir, ttl: ttl, clock: clk}, nil
}

// Dir returns the cache directory
func (c *FileCache) Dir() string {
	return c.dir
}

// TTL returns the freshness window
func (c *FileCache) TTL() time.Duration {
	return c.ttl
}

// Path returns the record path for key
func (c *FileCache) Path(key string) string {
	return filepath.Join(c.dir, key+recordSuffix)
}

// Get returns the stored body for key when it is present and fresh.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !entry.IsFresh(c.clock.Now()) {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Lookup returns the entry for key regardless of freshness.
func (c *FileCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	if err := validateKey(key); err != nil {
		return Entry{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	path := c.Path(key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to stat cache record: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// removed by a concurrent prune
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache record: %w", err)
	}

	return Entry{
		Key:      key,
		Payload:  data,
		StoredAt: info.ModTime(),
		TTL:      c.ttl,
	}, true, nil
}

// Put writes payload for key. The record is written to a temporary file and
// renamed into place so readers never observe a partial record.
func (c *FileCache) Put(ctx context.Context, key string, payload []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache record: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache record: %w", err)
	}

	now := c.clock.Now()
	if err := os.Chtimes(tmpPath, now, now); err != nil {
		return fmt.Errorf("failed to stamp cache record: %w", err)
	}

	if err := os.Rename(tmpPath, c.Path(key)); err != nil {
		return fmt.Errorf("failed to commit cache record: %w", err)
	}
	return nil
}

// Prune removes stale records and returns how many were deleted.
func (c *FileCache) Prune(ctx context.Context) (int, error) {
	now := c.clock.Now()
	removed := 0

	err := c.walk(ctx, func(path string, info fs.FileInfo) error {
		entry := Entry{StoredAt: info.ModTime(), TTL: c.ttl}
		if entry.IsFresh(now) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale record: %w", err)
		}
		removed++
		return nil
	})
	return removed, err
}

// Stats counts fresh and stale records.
func (c *FileCache) Stats(ctx context.Context) (Stats, error) {
	now := c.clock.Now()
	var stats Stats

	err := c.walk(ctx, func(path string, info fs.FileInfo) error {
		stats.Entries++
		stats.Bytes += info.Size()
		entry := Entry{StoredAt: info.ModTime(), TTL: c.ttl}
		if entry.IsFresh(now) {
			stats.Fresh++
		} else {
			stats.Stale++
		}
		return nil
	})
	return stats, err
}

func (c *FileCache) walk(ctx context.Context, fn func(path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		if validateKey(strings.TrimSuffix(name, recordSuffix)) != nil {
			continue
		}

		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to stat cache record: %w", err)
		}
		if err := fn(filepath.Join(c.dir, name), info); err != nil {
			return err
		}
	}
	return nil
}

// validateKey rejects anything that is not a lowercase hex SHA-256 digest,
// which also keeps keys from escaping the cache directory.
func validateKey(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("invalid cache key %q", key)
	}
	for _, r := range key {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return fmt.Errorf("invalid cache key %q", key)
		}
	}
	return nil
}
