package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/courtside/pkg/clock"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestKey_IndependentOfInsertionOrder(t *testing.T) {
	// Given the same parameters built in two different orders
	a := map[string]string{}
	a["Season"] = "2023-24"
	a["SeasonType"] = "Regular Season"
	a["MeasureType"] = "Advanced"

	b := map[string]string{}
	b["MeasureType"] = "Advanced"
	b["SeasonType"] = "Regular Season"
	b["Season"] = "2023-24"

	// Then both produce the same key
	assert.Equal(t, Key("leaguedashplayerstats", a), Key("leaguedashplayerstats", b))
	assert.Len(t, Key("leaguedashplayerstats", a), 64)
}

func TestKey_DistinguishesEndpointAndValues(t *testing.T) {
	params := map[string]string{"Season": "2023-24"}

	base := Key("leaguedashplayerstats", params)

	assert.NotEqual(t, base, Key("leaguedashteamstats", params))
	assert.NotEqual(t, base, Key("leaguedashplayerstats", map[string]string{"Season": "2022-23"}))
	assert.NotEqual(t, base, Key("leaguedashplayerstats", map[string]string{"Season": "2023-24", "College": ""}))
	assert.Equal(t, Key("x", nil), Key("x", map[string]string{}))
}

func newTestFileCache(t *testing.T, ttl time.Duration) (*FileCache, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	c, err := NewFileCache(t.TempDir(), ttl, fake)
	require.NoError(t, err)
	return c, fake
}

func TestFileCache_RoundTrip(t *testing.T) {
	// Given an empty file cache
	c, _ := newTestFileCache(t, time.Hour)
	ctx := context.Background()
	key := Key("leaguegamelog", map[string]string{"Season": "2023-24"})

	// When a payload is stored
	payload := []byte(`{"resultSets":[]}`)
	require.NoError(t, c.Put(ctx, key, payload))

	// Then it is returned unchanged
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, got)

	// And the record lives at <hex>.json inside the cache dir
	_, err = os.Stat(filepath.Join(c.Dir(), key+".json"))
	assert.NoError(t, err)
}

func TestFileCache_Miss(t *testing.T) {
	c, _ := newTestFileCache(t, time.Hour)

	got, ok, err := c.Get(context.Background(), Key("x", nil))

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestFileCache_TTLBoundary(t *testing.T) {
	// Given an entry written at t0 with a one day TTL
	c, fake := newTestFileCache(t, 24*time.Hour)
	ctx := context.Background()
	key := Key("playbyplayv2", map[string]string{"GameID": "0022300001"})
	require.NoError(t, c.Put(ctx, key, []byte("body")))

	// When reading just before t0+TTL
	fake.Advance(24*time.Hour - time.Millisecond)
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "entry must be fresh before t0+TTL")

	// And exactly at t0+TTL
	fake.Advance(time.Millisecond)
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry must be stale at t0+TTL")
	assert.Nil(t, got)

	// Then the stale record is still present on disk
	entry, present, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, present)
	assert.False(t, entry.IsFresh(fake.Now()))
}

func TestFileCache_PutOverwritesAndRefreshes(t *testing.T) {
	c, fake := newTestFileCache(t, time.Hour)
	ctx := context.Background()
	key := Key("commonallplayers", map[string]string{"Season": "2023-24"})

	require.NoError(t, c.Put(ctx, key, []byte("first")))
	fake.Advance(2 * time.Hour)
	require.NoError(t, c.Put(ctx, key, []byte("second")))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("second"), got)
}

func TestFileCache_ConcurrentSameKeyWriters(t *testing.T) {
	// Given many writers racing on one key with identical content
	c, _ := newTestFileCache(t, time.Hour)
	ctx := context.Background()
	key := Key("leaguedashplayerstats", map[string]string{"Season": "2023-24"})
	payload := []byte(`{"resultSets":[{"name":"A","headers":["X"],"rowSet":[[1]]}]}`)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Put(ctx, key, payload))
		}()
	}
	wg.Wait()

	// Then the final record is a complete copy and no temp files remain
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, got)

	matches, err := filepath.Glob(filepath.Join(c.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileCache_PruneAndStats(t *testing.T) {
	c, fake := newTestFileCache(t, time.Hour)
	ctx := context.Background()
	oldKey := Key("a", nil)
	newKey := Key("b", nil)

	require.NoError(t, c.Put(ctx, oldKey, []byte("old")))
	fake.Advance(2 * time.Hour)
	require.NoError(t, c.Put(ctx, newKey, []byte("new!")))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Fresh: 1, Stale: 1, Bytes: 7}, stats)

	removed, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, present, err := c.Lookup(ctx, oldKey)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestFileCache_RejectsInvalidKeys(t *testing.T) {
	c, _ := newTestFileCache(t, time.Hour)

	err := c.Put(context.Background(), "../../etc/passwd", []byte("x"))
	assert.Error(t, err)

	_, _, err = c.Get(context.Background(), "NOT-HEX")
	assert.Error(t, err)
}

func TestNewFileCache_Defaults(t *testing.T) {
	c, err := NewFileCache(filepath.Join(t.TempDir(), "nested", "cache"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.TTL())

	_, err = NewFileCache("  ", time.Hour, nil)
	assert.Error(t, err)
}

func TestEntry_IsFresh(t *testing.T) {
	entry := Entry{StoredAt: epoch, TTL: time.Minute}

	assert.True(t, entry.IsFresh(epoch))
	assert.True(t, entry.IsFresh(epoch.Add(59*time.Second)))
	assert.False(t, entry.IsFresh(epoch.Add(time.Minute)))
	assert.Equal(t, epoch.Add(time.Minute), entry.ExpiresAt())
}
