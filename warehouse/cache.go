package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

type cacheEntry struct {
	rows      []Row
	expiresAt time.Time
}

// CachedRunner memoizes query results for a fixed TTL, keyed by a digest of
// the query text. Warehouse queries are expensive and composition is
// deterministic, so repeated analysis of an unchanged experiment within the
// TTL reuses the previous result set.
//
// Entries are dropped lazily on lookup and swept when the map grows past
// maxEntries. Errors are never cached.
type CachedRunner struct {
	inner      QueryRunner
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedRunner wraps inner with a result cache. A non-positive ttl
// disables caching entirely.
func NewCachedRunner(inner QueryRunner, ttl time.Duration) *CachedRunner {
	return &CachedRunner{
		inner:      inner,
		ttl:        ttl,
		maxEntries: 1000,
		entries:    map[string]cacheEntry{},
	}
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

func (r *CachedRunner) Run(ctx context.Context, query string) ([]Row, error) {
	if r.ttl <= 0 {
		return r.inner.Run(ctx, query)
	}

	key := cacheKey(query)
	now := time.Now()

	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		slog.Debug("query cache hit", "key", key[:8])
		return entry.rows, nil
	}
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	rows, err := r.inner.Run(ctx, query)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if len(r.entries) >= r.maxEntries {
		r.sweepLocked(now)
	}
	r.entries[key] = cacheEntry{rows: rows, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return rows, nil
}

// Invalidate drops every cached result.
func (r *CachedRunner) Invalidate() {
	r.mu.Lock()
	r.entries = map[string]cacheEntry{}
	r.mu.Unlock()
}

// sweepLocked removes expired entries; if nothing expired the whole map is
// reset rather than letting it grow without bound.
func (r *CachedRunner) sweepLocked(now time.Time) {
	for key, entry := range r.entries {
		if !now.Before(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
	if len(r.entries) >= r.maxEntries {
		r.entries = map[string]cacheEntry{}
	}
}
