package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"storyfeed/internal/feed"
)

// EncryptedCache encrypts entries before handing them to the wrapped cache
// and decrypts them on read. Writes need only the public key; reads need
// the DecryptionContext from unlocking the private key.
type EncryptedCache struct {
	next      feed.Cache
	encryptor feed.Encryptor
	decryptor feed.DecryptionContext
}

var _ feed.Cache = (*EncryptedCache)(nil)

// NewEncryptedCache wraps next. decryptor may be nil, in which case every
// read fails and the store falls back to an empty collection.
func NewEncryptedCache(next feed.Cache, encryptor feed.Encryptor, decryptor feed.DecryptionContext) *EncryptedCache {
	return &EncryptedCache{next: next, encryptor: encryptor, decryptor: decryptor}
}

func (c *EncryptedCache) Get(ctx context.Context, key string, w io.Writer) error {
	var sealed bytes.Buffer
	if err := c.next.Get(ctx, key, &sealed); err != nil {
		return err
	}
	if c.decryptor == nil {
		return fmt.Errorf("cache is locked: no decryption key for %s", key)
	}
	if err := c.decryptor.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("decrypting cache entry %s: %w", key, err)
	}
	return nil
}

func (c *EncryptedCache) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	var sealed bytes.Buffer
	if err := c.encryptor.Encrypt(io.LimitReader(r, size), &sealed); err != nil {
		return fmt.Errorf("encrypting cache entry %s: %w", key, err)
	}
	return c.next.Put(ctx, key, &sealed, int64(sealed.Len()))
}
