package session

import (
	"errors"

	"github.com/kenneth/redaction-gateway/internal/crypto"
)

// ErrSessionNotFound is returned when no metadata exists for a document ID.
// A session that never existed and one whose TTL elapsed are deliberately
// indistinguishable.
var ErrSessionNotFound = errors.New("session not found or expired")

// ErrDecryptionFailed is returned when any stored item fails authenticated
// decryption. The whole request fails; no partial plaintext is ever returned.
var ErrDecryptionFailed = errors.New("decryption failed")

// ErrReconstructionFailed is returned when decrypted items cannot be written
// back into the supplied artifact.
var ErrReconstructionFailed = errors.New("document reconstruction failed")

// ErrInvalidKeyFormat mirrors the key codec's sentinel so callers can match
// the whole taxonomy against this package.
var ErrInvalidKeyFormat = crypto.ErrInvalidKeyFormat
