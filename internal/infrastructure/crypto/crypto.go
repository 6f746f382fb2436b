// Package crypto encrypts provider access tokens before they reach storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 16
	tagSize   = 16
)

var (
	// ErrKeyNotConfigured is returned when no encryption key is set.
	ErrKeyNotConfigured = errors.New("encryption key not configured")
	// ErrInvalidKey is returned when the key is not exactly 32 bytes.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
	// ErrInvalidFormat is returned when a ciphertext does not have the
	// expected nonce:tag:payload hex layout.
	ErrInvalidFormat = errors.New("invalid ciphertext format")
	// ErrAuthenticationFailed is returned when the authentication tag does
	// not match, i.e. the ciphertext was tampered with or encrypted with a
	// different key.
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// Encryptor performs AES-256-GCM encryption of sensitive strings.
// Ciphertexts are serialized as three colon-separated hex fields:
// nonce, authentication tag, encrypted payload.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a 32-byte key string.
func NewEncryptor(key string) (*Encryptor, error) {
	if key == "" {
		return nil, ErrKeyNotConfigured
	}
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt encrypts plaintext with a fresh random nonce. Encrypting the same
// plaintext twice yields different ciphertexts.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the authentication tag to the encrypted payload.
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	payload := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(payload),
	), nil
}

// Decrypt reverses Encrypt. It fails closed: format errors are reported
// before any cryptographic operation, and a tag mismatch never returns
// corrupted plaintext.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidFormat, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: nonce is not valid hex", ErrInvalidFormat)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: tag is not valid hex", ErrInvalidFormat)
	}
	payload, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: payload is not valid hex", ErrInvalidFormat)
	}

	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrInvalidFormat, nonceSize, len(nonce))
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes, got %d", ErrInvalidFormat, tagSize, len(tag))
	}

	sealed := append(payload, tag...)
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}
