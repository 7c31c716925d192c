package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext signals a malformed or tampered sealed credential string.
var ErrInvalidCiphertext = fmt.Errorf("invalid sealed credential")

const sealedPrefix = "$xchacha20$"

// CredentialSealer encrypts provider credentials before they hit the database.
type CredentialSealer struct {
	key []byte
}

// NewCredentialSealer builds a sealer from the base64-encoded 32-byte key in config.
func NewCredentialSealer(cfg config.CredentialsConfig) (*CredentialSealer, error) {
	raw := strings.TrimSpace(cfg.Key)
	if raw == "" {
		return nil, fmt.Errorf("credentials key is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode credentials key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &CredentialSealer{key: key}, nil
}

// Seal encrypts plaintext and returns a self-describing encoded string.
func (s *CredentialSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	encNonce := base64.RawStdEncoding.EncodeToString(nonce)
	encSealed := base64.RawStdEncoding.EncodeToString(sealed)
	return fmt.Sprintf("%s%s$%s", sealedPrefix, encNonce, encSealed), nil
}

// Open decrypts a string previously produced by Seal.
func (s *CredentialSealer) Open(encoded string) (string, error) {
	if !strings.HasPrefix(encoded, sealedPrefix) {
		return "", ErrInvalidCiphertext
	}
	parts := strings.Split(strings.TrimPrefix(encoded, sealedPrefix), "$")
	if len(parts) != 2 {
		return "", ErrInvalidCiphertext
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// IsSealed reports whether the value is already in sealed form.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
