// Package fetchcache provides a TTL cache keyed by request fingerprint,
// guaranteeing at most one in-flight upstream fetch per fingerprint.
package fetchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fingerprint derives a stable cache key from a request's inputs. Parts
// are sorted so callers need not agree on ordering (e.g. selection ids
// of a combined price).
func Fingerprint(parts ...string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:16])
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
	legs      []string
}

// Cache memoizes fetch results per fingerprint within a TTL window.
// Concurrent requesters of the same fingerprint share a single upstream
// fetch; requesters of different fingerprints proceed independently.
type Cache[V any] struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry[V]
	byLeg   map[string]map[string]struct{} // leg -> fingerprints to drop on invalidation

	group singleflight.Group
	now   func() time.Time
}

// New creates a cache whose entries stay fresh for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		byLeg:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Do returns the cached value for fp if it is still fresh, otherwise
// calls fetch exactly once no matter how many goroutines ask
// concurrently. legs are the inputs whose change should invalidate the
// entry early (see InvalidateLeg).
func (c *Cache[V]) Do(ctx context.Context, fp string, legs []string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(fp); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(fp, func() (any, error) {
		// A waiter may arrive just after the leader stored the result.
		if v, ok := c.lookup(fp); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(fp, legs, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (c *Cache[V]) lookup(fp string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fp]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(fp string, legs []string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = entry[V]{value: v, fetchedAt: c.now(), legs: legs}
	for _, leg := range legs {
		fps, ok := c.byLeg[leg]
		if !ok {
			fps = make(map[string]struct{})
			c.byLeg[leg] = fps
		}
		fps[fp] = struct{}{}
	}
	c.sweepLocked()
}

// Invalidate drops a single fingerprint.
func (c *Cache[V]) Invalidate(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(fp)
}

// InvalidateLeg drops every entry that registered the given leg, so a
// changed input takes effect before the TTL expires.
func (c *Cache[V]) InvalidateLeg(leg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp := range c.byLeg[leg] {
		c.removeLocked(fp)
	}
	delete(c.byLeg, leg)
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) removeLocked(fp string) {
	e, ok := c.entries[fp]
	if !ok {
		return
	}
	delete(c.entries, fp)
	for _, leg := range e.legs {
		if fps, ok := c.byLeg[leg]; ok {
			delete(fps, fp)
			if len(fps) == 0 {
				delete(c.byLeg, leg)
			}
		}
	}
}

// sweepLocked lazily evicts expired entries on write.
func (c *Cache[V]) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for fp, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			c.removeLocked(fp)
		}
	}
}
