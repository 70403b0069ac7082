package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifiers for item sealing.
const (
	AlgorithmAES256GCM        = "aes-256-gcm"
	AlgorithmChaCha20Poly1305 = "chacha20-poly1305"
)

// ErrDecryptFailed is returned when authenticated decryption fails. A wrong
// key and corrupted ciphertext are deliberately indistinguishable.
var ErrDecryptFailed = errors.New("decryption failed")

// Sealer seals and opens individual text items with a session key. Each item
// is sealed independently so that no item's plaintext depends on another's.
type Sealer interface {
	// Seal encrypts plaintext under key and returns a transport-safe string.
	Seal(key Key, plaintext string) (string, error)

	// Open decrypts a sealed string. It returns ErrDecryptFailed when the key
	// is wrong or the ciphertext has been tampered with.
	Open(key Key, sealed string) (string, error)

	// Algorithm reports the AEAD in use.
	Algorithm() string
}

// aeadSealer implements Sealer over any AEAD constructor. The wire format is
// base64url(nonce || ciphertext) with the authentication tag appended by the
// AEAD itself.
type aeadSealer struct {
	algorithm string
	newAEAD   func(key []byte) (cipher.AEAD, error)
}

// NewSealer constructs a Sealer for the named algorithm.
func NewSealer(algorithm string) (Sealer, error) {
	switch algorithm {
	case AlgorithmAES256GCM:
		return &aeadSealer{
			algorithm: algorithm,
			newAEAD: func(key []byte) (cipher.AEAD, error) {
				block, err := aes.NewCipher(key)
				if err != nil {
					return nil, err
				}
				return cipher.NewGCM(block)
			},
		}, nil
	case AlgorithmChaCha20Poly1305:
		return &aeadSealer{
			algorithm: algorithm,
			newAEAD:   chacha20poly1305.New,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported seal algorithm: %s", algorithm)
	}
}

func (s *aeadSealer) Algorithm() string {
	return s.algorithm
}

func (s *aeadSealer) Seal(key Key, plaintext string) (string, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize %s: %w", s.algorithm, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *aeadSealer) Open(key Key, sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrDecryptFailed
	}

	aead, err := s.newAEAD(key)
	if err != nil {
		return "", ErrDecryptFailed
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrDecryptFailed
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
