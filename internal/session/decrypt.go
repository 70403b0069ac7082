package session

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/crypto"
)

// Decrypt recovers the plaintext items of a session in isolation, without
// touching any document. The caller must present the key issued when the
// session was created.
//
// Decryption is atomic across the session: if any single item fails to
// authenticate, the whole request fails with ErrDecryptionFailed and nothing
// is returned.
func (s *Service) Decrypt(ctx context.Context, documentID, encodedKey string) (map[string][]Item, error) {
	getStart := time.Now()
	payload, ok, err := s.store.Get(ctx, documentID)
	s.recordStoreOp("get", getStart, err)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	key, err := crypto.DecodeKey(encodedKey)
	if err != nil {
		return nil, err
	}

	meta, err := decodeMetadata(payload)
	if err != nil {
		return nil, err
	}

	pages := make(map[string][]Item, len(meta.Pages))
	for page, sealed := range meta.Pages {
		items := make([]Item, len(sealed))
		for i, item := range sealed {
			openStart := time.Now()
			plaintext, err := s.sealer.Open(key, item.EncryptedText)
			s.recordSealOp("open", openStart, err)
			if err != nil {
				if errors.Is(err, crypto.ErrDecryptFailed) {
					return nil, ErrDecryptionFailed
				}
				return nil, err
			}
			items[i] = Item{Text: plaintext, BBox: item.BBox}
		}
		pages[page] = items
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"pages":       len(pages),
	}).Info("Session decrypted")

	return pages, nil
}
