package cache

import (
	"context"
	"fmt"
	"os"

	"storyfeed/internal/config"
	"storyfeed/internal/feed"
)

// NewCacheFromConfig creates a Cache implementation based on the cache config type.
func NewCacheFromConfig(ctx context.Context, cfg config.CacheConfig) (feed.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem cache requires dir to be set")
		}
		return NewFileSystemCache(cfg.Dir)
	case "s3":
		opts := S3Options{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		}
		if cfg.S3AccessKeyEnv != "" {
			opts.AccessKeyID = os.Getenv(cfg.S3AccessKeyEnv)
			opts.SecretAccessKey = os.Getenv(cfg.S3SecretKeyEnv)
		}
		return NewS3Cache(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
