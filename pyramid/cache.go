package pyramid

import (
	"context"
	"sort"
	"sync"

	"github.com/DmitriyVTitov/size"
	"golang.org/x/sync/singleflight"
)

// DirectoryCache memoizes decoded directories by key.  At most one decode is in
// flight per key and concurrent callers for the same key share its result.
// Entries are never evicted or replaced.  Failed decodes are not stored, and a
// decode whose initiating request was cancelled is handed to any other waiters but
// is not stored either, so a cancelled request never changes the cache.
type DirectoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	flight  singleflight.Group
}

// NewDirectoryCache returns an empty cache.
func NewDirectoryCache[V any]() *DirectoryCache[V] {
	return &DirectoryCache[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key, calling decode if there is none.  The decode
// function is given a context that is not cancelled when the calling request is, since
// its result may be shared.  If ctx is cancelled while waiting, Get returns
// ErrOperationAborted.
func (c *DirectoryCache[V]) Get(ctx context.Context, key string, decode func(context.Context) (V, error)) (V, error) {
	var zero V
	if err := Aborted(ctx); err != nil {
		return zero, err
	}
	if v, found := c.lookup(key); found {
		return v, nil
	}
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		if v, found := c.lookup(key); found {
			return v, nil
		}
		v, err := decode(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if ctx.Err() == nil {
			c.mu.Lock()
			c.entries[key] = v
			c.mu.Unlock()
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ErrOperationAborted
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *DirectoryCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, found := c.entries[key]
	return v, found
}

// Len returns the number of resolved entries.
func (c *DirectoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the sorted keys of resolved entries.
func (c *DirectoryCache[V]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// MemSize returns the approximate memory held by resolved entries.
func (c *DirectoryCache[V]) MemSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return size.Of(c.entries)
}
