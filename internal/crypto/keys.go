package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the length of a session key in bytes (AES-256 / ChaCha20 key size).
const KeySize = 32

// ErrInvalidKeyFormat is returned when a transported key cannot be decoded
// back into a session key: not valid URL-safe base64, or the wrong length.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// Key is a per-session symmetric secret. It is issued to the caller once and
// never persisted server-side.
type Key []byte

// keyEncoding is the transport encoding for keys: URL-safe base64 without
// padding, matching what clients carry in the X-Decryption-Key header.
var keyEncoding = base64.RawURLEncoding

// GenerateKey produces a fresh random session key.
func GenerateKey() (Key, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// EncodeKey encodes a key for transport.
func EncodeKey(key Key) string {
	return keyEncoding.EncodeToString(key)
}

// DecodeKey decodes a transported key. Malformed input of any kind yields
// ErrInvalidKeyFormat; the caller never learns which check failed.
func DecodeKey(encoded string) (Key, error) {
	raw, err := keyEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidKeyFormat
	}
	if len(raw) != KeySize {
		return nil, ErrInvalidKeyFormat
	}
	return Key(raw), nil
}
