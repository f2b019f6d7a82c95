package encryption

import (
	"fmt"

	"storyfeed/internal/config"
	"storyfeed/internal/feed"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (or empty) returns a nil Encryptor: the cache is stored in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (feed.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
