// Package idempotency de-duplicates side-effecting operations by caller-supplied key.
//
// A repeat request with the same key and fingerprint replays the stored result
// without re-running the operation (no second camera shot, no second AI call).
// The same key with a different fingerprint is a protocol violation and fails
// fast. Blank keys bypass the cache entirely.
package idempotency

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/metrics"
)

type record struct {
	fingerprint string
	payload     []byte
	expiresAt   time.Time
}

// Cache is an in-memory idempotency store. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]record
	clock   clockwork.Clock
}

func New(clock clockwork.Clock) *Cache {
	return &Cache{
		entries: make(map[string]record),
		clock:   clock,
	}
}

// Do runs op under idempotency key. On a hit with a matching fingerprint the
// stored result is decoded and returned without invoking op; a mismatched
// fingerprint fails as key reuse. Only successful results are cached. The
// cache lock is never held across op, so two racing requests with the same
// fresh key may both run op; the second result stored wins, which matches the
// single-kiosk request pattern this serves.
func Do[T any](c *Cache, key, fingerprint string, ttl time.Duration, op func() (T, error)) (T, error) {
	if key == "" {
		return op()
	}

	c.mu.Lock()
	r, ok := c.entries[key]
	if ok && r.fingerprint != fingerprint {
		// Reuse for a different request fails even if the entry has expired;
		// the key only becomes free again once cleanup removes it.
		c.mu.Unlock()
		metrics.IdempotencyConflictsTotal.Inc()
		return *new(T), errors.KeyReusedError()
	}
	if ok && c.clock.Now().Before(r.expiresAt) {
		c.mu.Unlock()

		var cached T
		if err := json.Unmarshal(r.payload, &cached); err == nil {
			metrics.IdempotencyReplaysTotal.Inc()
			return cached, nil
		}
		// Undecodable entry: drop it and recompute.
		c.mu.Lock()
		delete(c.entries, key)
	}
	c.mu.Unlock()

	val, err := op()
	if err != nil {
		return val, err
	}

	payload, err := json.Marshal(val)
	if err != nil {
		// The result is still valid; we just cannot replay it later.
		return val, nil
	}

	c.mu.Lock()
	c.entries[key] = record{
		fingerprint: fingerprint,
		payload:     payload,
		expiresAt:   c.clock.Now().Add(ttl),
	}
	c.mu.Unlock()

	return val, nil
}

// CleanupExpired evicts all expired entries. Called by the sweeper.
func (c *Cache) CleanupExpired() {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, r := range c.entries {
		if !now.Before(r.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
