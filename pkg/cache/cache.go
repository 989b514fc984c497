// Package cache implements the content-addressed, TTL-bounded response
// cache that sits in front of the network.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DefaultTTL is how long a stored response is served before it is fetched again.
const DefaultTTL = 24 * time.Hour

// Cache stores validated response bodies by key.
type Cache interface {
	// Get returns the payload for key. ok is false when no entry exists or
	// the entry is no longer fresh; a stale payload is never returned.
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)
	// Put unconditionally overwrites the entry for key.
	Put(ctx context.Context, key string, payload []byte) error
}

// Entry is one previously fetched, validated response.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
	TTL      time.Duration
}

// IsFresh reports whether the entry may still be served at now
func (e Entry) IsFresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// ExpiresAt returns the first instant at which the entry is stale
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Key derives the cache key for an endpoint and parameter set. The
// parameters are serialized as JSON with sorted keys, so two maps with the
// same contents always produce the same key.
func Key(endpoint string, params map[string]string) string {
	if params == nil {
		params = map[string]string{}
	}
	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(params)
	if err != nil {
		// map[string]string always marshals
		panic(err)
	}

	hash := sha256.New()
	hash.Write([]byte(endpoint))
	hash.Write(canonical)
	return hex.EncodeToString(hash.Sum(nil))
}

// Stats summarizes the contents of a cache.
type Stats struct {
	Entries int   `json:"entries"`
	Fresh   int   `json:"fresh"`
	Stale   int   `json:"stale"`
	Bytes   int64 `json:"bytes"`
}
