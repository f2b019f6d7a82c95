package feed

import (
	"context"
	"errors"
	"io"
)

// ErrCacheMiss is returned by Cache.Get when nothing is stored under a key.
var ErrCacheMiss = errors.New("cache miss")

// Cache keys written by the store. Each value is a JSON array.
const (
	CacheKeyStories   = "stories"
	CacheKeyLikes     = "likes"
	CacheKeyBookmarks = "bookmarks"
)

// Cache is the durable local store the StoryStore falls back to when the
// remote is unreachable. Only the StoryStore writes to it.
type Cache interface {
	// Get writes the value stored under key to w.
	// Returns ErrCacheMiss if the key has never been written.
	Get(ctx context.Context, key string, w io.Writer) error

	// Put replaces the value stored under key.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}
