package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"storyfeed/internal/feed"
)

// FileSystemCache stores each key as a JSON file under a directory:
//
//	<root>/
//	  stories.json
//	  likes.json
//	  bookmarks.json
type FileSystemCache struct {
	root string
}

var _ feed.Cache = (*FileSystemCache)(nil)

// NewFileSystemCache creates a cache rooted at root, creating the directory.
func NewFileSystemCache(root string) (*FileSystemCache, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileSystemCache{root: root}, nil
}

func (c *FileSystemCache) path(key string) string {
	return filepath.Join(c.root, key+".json")
}

func (c *FileSystemCache) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f, err := os.Open(c.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return feed.ErrCacheMiss
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	return nil
}

// Put writes the entry atomically (temp file + rename), so a crash never
// leaves a torn collection behind.
func (c *FileSystemCache) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(c.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
