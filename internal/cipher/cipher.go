// Package cipher decrypts message content stored encrypted at rest.
//
// Encrypted values carry the prefix "enc:v1:" followed by the standard
// base64 encoding of nonce||ciphertext sealed with XChaCha20-Poly1305.
// Values without the prefix are plaintext and pass through unchanged,
// so corpora that mix legacy and encrypted rows decrypt cleanly.
package cipher

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Prefix marks an encrypted value
const Prefix = "enc:v1:"

var (
	// ErrNoKey is returned when encrypted input reaches a decrypter without a key
	ErrNoKey = errors.New("no encryption key configured")
	// ErrMalformed is returned when an encrypted value cannot be decoded
	ErrMalformed = errors.New("malformed encrypted value")
	// ErrKeySize is returned when the key is not chacha20poly1305.KeySize bytes
	ErrKeySize = errors.New("encryption key must be 32 bytes")
)

// Decrypter turns stored message content into plaintext
type Decrypter interface {
	Decrypt(ctx context.Context, value string) (string, error)
}

// IsEncrypted reports whether value carries the encrypted prefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Box seals and opens values with a single XChaCha20-Poly1305 key
type Box struct {
	key []byte
}

// NewBox creates a Box from a raw 32-byte key
func NewBox(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Box{key: k}, nil
}

// NewBoxFromBase64 creates a Box from a standard base64 encoded key
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return NewBox(key)
}

// Encrypt seals plaintext into the prefixed wire format
func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an encrypted value. Plaintext input is returned as is.
func (b *Box) Decrypt(ctx context.Context, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: value too short", ErrMalformed)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plaintext), nil
}

// Passthrough is the Decrypter used when no key is configured
type Passthrough struct{}

// Decrypt returns plaintext unchanged and fails on encrypted input
func (Passthrough) Decrypt(_ context.Context, value string) (string, error) {
	if IsEncrypted(value) {
		return "", ErrNoKey
	}
	return value, nil
}

// New returns a Box for a non-empty base64 key, or Passthrough otherwise
func New(encodedKey string) (Decrypter, error) {
	if strings.TrimSpace(encodedKey) == "" {
		return Passthrough{}, nil
	}
	return NewBoxFromBase64(encodedKey)
}
