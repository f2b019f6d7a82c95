package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"

	"storyfeed/internal/cache"
	"storyfeed/internal/feed"
)

// NewTestCache creates an empty in-memory cache.
func NewTestCache() *cache.MemoryCache {
	return cache.NewMemoryCache()
}

// ErrCacheDown is returned by a BrokenCache.
var ErrCacheDown = errors.New("cache unavailable")

// BrokenCache fails every read and write. Use it to exercise paths where
// both the remote and the cache are unusable.
type BrokenCache struct{}

var _ feed.Cache = BrokenCache{}

func (BrokenCache) Get(context.Context, string, io.Writer) error        { return ErrCacheDown }
func (BrokenCache) Put(context.Context, string, io.Reader, int64) error { return ErrCacheDown }

// CacheEntry returns the raw bytes stored under key, or nil on a miss.
func CacheEntry(c feed.Cache, key string) []byte {
	var buf bytes.Buffer
	if err := c.Get(context.Background(), key, &buf); err != nil {
		return nil
	}
	return buf.Bytes()
}
