package zarr

import (
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// ChunkCache holds decompressed chunk bytes, snappy-compressed, in a fixed-size
// freecache.  A nil *ChunkCache is valid and caches nothing.  Chunks larger than
// 1/1024 of the cache size are never cached.
type ChunkCache struct {
	cache    *freecache.Cache
	attempts uint64
	hits     uint64
}

// NewChunkCache returns a cache of about numBytes, or nil if numBytes <= 0.
func NewChunkCache(numBytes int) *ChunkCache {
	if numBytes <= 0 {
		return nil
	}
	pyramid.Infof("Created freecache of ~ %s for zarr chunks.\n", humanize.Bytes(uint64(numBytes)))
	return &ChunkCache{cache: freecache.NewCache(numBytes)}
}

// NewChunkCacheFromConfig sizes a cache from the [cache] configuration.
func NewChunkCacheFromConfig(c pyramid.CacheConfig) *ChunkCache {
	return NewChunkCache(c.ChunkBytes())
}

// Get returns the chunk bytes for a key.
func (c *ChunkCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	atomic.AddUint64(&c.attempts, 1)
	cdata, err := c.cache.Get([]byte(key))
	if err != nil {
		if err != freecache.ErrNotFound {
			pyramid.Errorf("chunk cache get of %q: %v\n", key, err)
		}
		return nil, false
	}
	data, err := snappy.Decode(nil, cdata)
	if err != nil {
		pyramid.Errorf("bad snappy data in chunk cache for %q: %v\n", key, err)
		c.cache.Del([]byte(key))
		return nil, false
	}
	atomic.AddUint64(&c.hits, 1)
	return data, true
}

// Set stores chunk bytes for a key.
func (c *ChunkCache) Set(key string, data []byte) {
	if c == nil {
		return
	}
	if err := c.cache.Set([]byte(key), snappy.Encode(nil, data), 0); err != nil {
		pyramid.Debugf("chunk %q of %s not cached: %v\n", key, humanize.Bytes(uint64(len(data))), err)
	}
}

// Stats returns the number of lookups and the number that hit.
func (c *ChunkCache) Stats() (attempts, hits uint64) {
	if c == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}

// Clear removes all entries.
func (c *ChunkCache) Clear() {
	if c != nil {
		c.cache.Clear()
	}
}
