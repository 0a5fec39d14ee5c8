package store

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "mylibrary session v1"

// ErrSealed is returned when a stored secret cannot be opened, e.g. after the
// key file was replaced.
var ErrSealed = errors.New("store: cannot open sealed value")

// sealer encrypts secrets at rest with XChaCha20-Poly1305.
type sealer struct {
	aead cipher.AEAD
}

// newSealer derives the column key from the installation secret and id.
func newSealer(secret []byte, installID string) (*sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	h := hkdf.New(sha256.New, secret, []byte(installID), []byte(keyInfo))
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

// seal returns nonce||ciphertext. The label binds the value to its column.
func (s *sealer) seal(plaintext, label string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(label)), nil
}

func (s *sealer) open(sealed []byte, label string) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return "", ErrSealed
	}
	pt, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(label))
	if err != nil {
		return "", ErrSealed
	}
	return string(pt), nil
}

// loadOrCreateSecret reads the 32-byte installation secret, creating it with
// mode 0600 on first use.
func loadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("secret %s: want %d bytes, got %d", path, chacha20poly1305.KeySize, len(data))
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	secret := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(secret); err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return secret, f.Close()
}
