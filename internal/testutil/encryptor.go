package testutil

import (
	"storyfeed/internal/encryption"
	"storyfeed/internal/feed"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() feed.Encryptor {
	return encryption.NewTestEncryptor()
}
