package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// sealedPrefix marks blobs written by an enabled Sealer so that plaintext
// blobs from before encryption was turned on are still readable.
const sealedPrefix = "hdenc1:"

// Sealer encrypts persisted credential blobs with AES-256-GCM.
// A Sealer without a key passes data through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer. An empty key disables encryption.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{}, nil
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// Enabled reports whether the sealer encrypts.
func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal encrypts plaintext and returns prefix || base64(nonce || ciphertext || tag).
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if !s.Enabled() || len(plaintext) == 0 {
		return plaintext, nil
	}

	// Nonce must be unique for each encryption with the same key
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, plaintext, nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)
	return []byte(sealedPrefix + encoded), nil
}

// Open reverses Seal. Unprefixed input is returned as is.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if len(data) < len(sealedPrefix) || string(data[:len(sealedPrefix)]) != sealedPrefix {
		return data, nil
	}
	if !s.Enabled() {
		return nil, fmt.Errorf("credential is encrypted but no encryption key is configured")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(string(data[len(sealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateEncryptionKey generates a secure 32-byte encryption key
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// EncryptionKeyFromBase64 converts a base64-encoded key to bytes.
// An empty string yields a nil key, which disables encryption.
func EncryptionKeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d bytes", len(key))
	}

	return key, nil
}

// EncryptionKeyToBase64 converts a key to base64 for storage
func EncryptionKeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
