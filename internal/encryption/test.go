package encryption

import (
	"bytes"
	"fmt"
	"io"

	"storyfeed/internal/feed"
)

// sealMagic starts every entry sealed by TestEncryptor.
var sealMagic = []byte("SFENC\x00\x00\x00")

// sealMask is XORed over the payload so cached JSON is unreadable on disk.
const sealMask byte = 0x5a

// TestEncryptor seals cache entries without any keys: sealMagic followed by
// the masked payload. It is for tests and local demos, not for secrets.
type TestEncryptor struct {
	keysGenerated bool
}

var _ feed.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.keysGenerated = true
	return nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealMagic); err != nil {
		return fmt.Errorf("writing seal: %w", err)
	}
	return maskCopy(w, r)
}

// Unlock accepts any passphrase.
func (e *TestEncryptor) Unlock(string) (feed.DecryptionContext, error) {
	return TestUnsealer{}, nil
}

// TestUnsealer reverses TestEncryptor.
type TestUnsealer struct{}

var _ feed.DecryptionContext = TestUnsealer{}

func (TestUnsealer) Decrypt(r io.Reader, w io.Writer) error {
	magic := make([]byte, len(sealMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("reading seal: %w", err)
	}
	if !bytes.Equal(magic, sealMagic) {
		return fmt.Errorf("entry was not sealed by the test encryptor")
	}
	return maskCopy(w, r)
}

func maskCopy(w io.Writer, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for i := range buf[:n] {
				buf[i] ^= sealMask
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing entry: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading entry: %w", err)
		}
	}
}
