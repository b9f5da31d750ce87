// Package cache maps a build key plus the digest of its input to the session
// that produced the result.
//
// A hit needs both the key and the digest to match; a key whose digest
// changed is a miss. Each key has at most one live entry. Entries leave the
// cache through LRU eviction beyond capacity or TTL expiry, whichever comes
// first.
package cache

import (
	"context"
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

// Entry is one cached result.
type Entry struct {
	Key        string        `json:"key"`
	Hash       string        `json:"hash"`
	Value      string        `json:"value"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.InsertedAt.Add(e.TTL))
}

// Cache is safe for concurrent use. Concurrent Puts for one key resolve to
// the last writer.
type Cache interface {
	// Get returns the value stored for key if its hash matches. A hit refreshes recency.
	Get(ctx context.Context, key, hash string) (string, bool, error)
	// Put replaces any entry for key.
	Put(ctx context.Context, key, hash, value string, ttl time.Duration) error
	// Peek returns the entry for key without touching recency or checking the hash.
	Peek(ctx context.Context, key string) (Entry, bool, error)
	// Delete drops the entry for key if present.
	Delete(ctx context.Context, key string) error
	// Sweep removes expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
}

func backendError(err error, op string) error {
	return errors.WrapError(err, errors.CategoryCache, "cache "+op+" failed").Retryable().Build()
}
