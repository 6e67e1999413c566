package memocache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryPrincipalCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]PrincipalEntry
}

// NewMemoryPrincipalCache builds an in-process PrincipalCache, grounded on
// the teacher's in-memory decision cache.
func NewMemoryPrincipalCache(ttl time.Duration) PrincipalCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &memoryPrincipalCache{ttl: ttl, entries: make(map[string]PrincipalEntry)}
}

func (c *memoryPrincipalCache) Lookup(_ context.Context, key string) (PrincipalEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return PrincipalEntry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return PrincipalEntry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (c *memoryPrincipalCache) Store(_ context.Context, key string, entry PrincipalEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt.Add(c.ttl)
	}
	c.entries[key] = cloneEntry(entry)
	return nil
}

func (c *memoryPrincipalCache) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryPrincipalCache) Close(context.Context) error { return nil }

func cloneEntry(e PrincipalEntry) PrincipalEntry {
	members := make([]string, len(e.Members))
	copy(members, e.Members)
	e.Members = members
	return e
}
