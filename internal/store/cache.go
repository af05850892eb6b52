// Package store persists the chart: a local key/value cache with a size quota
// and an optional remote document store, kept in step by a Persister.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Cache keys.
const (
	HierarchyKey       = "orgchart_hierarchy_v2"
	LegacyHierarchyKey = "orgchart_hierarchy_v1"
	LogsKey            = "orgchart_logs"
	ViewStateKey       = "orgchart_view_state"
)

// DefaultQuota matches the per-origin limit of browser local storage.
const DefaultQuota = 5 << 20

// ErrQuotaExceeded is returned when a write would push the cache past its quota.
var ErrQuotaExceeded = errors.New("local cache quota exceeded")

// Cache is a small key/value store on the local machine.
type Cache interface {
	// Get returns ok=false for a missing key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache is a Cache held in process memory. A zero quota means unlimited.
type MemoryCache struct {
	mu     sync.Mutex
	quota  int
	values map[string][]byte
}

func NewMemoryCache(quota int) *MemoryCache {
	return &MemoryCache{quota: quota, values: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quota > 0 {
		used := 0
		for k, v := range c.values {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used+len(key)+len(value) > c.quota {
			return errors.Wrapf(ErrQuotaExceeded, "set %s", key)
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.values[key] = stored
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}
