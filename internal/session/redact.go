package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/crypto"
	"github.com/kenneth/redaction-gateway/internal/document"
	"github.com/kenneth/redaction-gateway/internal/redaction"
)

// RedactResult is the outcome of one redaction session. Cleanup releases the
// request-scoped artifacts and must be called once the artifact has been
// delivered (or the request abandoned).
type RedactResult struct {
	DocumentID   string
	EncodedKey   string
	ArtifactPath string
	ItemCount    int
	Cleanup      func()
}

// Redact executes one full redaction request: spool the upload, run the
// selected engine, seal the extracted items under a fresh session key, store
// the metadata with the session TTL, and hand back the redacted artifact
// together with the decrypt ticket.
//
// On any failure no session state is observable: nothing is stored and no
// document ID is returned alongside the error.
func (s *Service) Redact(ctx context.Context, upload io.Reader, filename string, mode redaction.Mode, severity int) (*RedactResult, error) {
	inputPath, err := s.spool(upload, filename)
	if err != nil {
		return nil, err
	}

	doc, err := document.Load(inputPath)
	if err != nil {
		s.cleanupFiles(inputPath)
		return nil, &redaction.EngineError{EngineMode: mode, Cause: err}
	}

	engineCtx, cancel := context.WithTimeout(ctx, s.engineTimeout)
	defer cancel()

	result, err := s.gateway.Redact(engineCtx, mode, doc, severity)
	if err != nil {
		s.cleanupFiles(inputPath)
		return nil, err
	}

	// The session exists only from here on; the id must never be visible
	// alongside an error.
	documentID := uuid.NewString()

	key, err := crypto.GenerateKey()
	if err != nil {
		s.cleanupFiles(inputPath)
		return nil, err
	}

	itemCount := 0
	var payload []byte
	if len(result.Pages) > 0 {
		meta := &EncryptedPages{Pages: make(map[string][]EncryptedItem, len(result.Pages))}
		for page, items := range result.Pages {
			sealed := make([]EncryptedItem, len(items))
			for i, item := range items {
				// Each item is sealed independently so no single ciphertext
				// ever covers more than one extracted value.
				sealStart := time.Now()
				ciphertext, err := s.sealer.Seal(key, item.Text)
				s.recordSealOp("seal", sealStart, err)
				if err != nil {
					s.cleanupFiles(inputPath)
					return nil, fmt.Errorf("failed to seal extracted item: %w", err)
				}
				sealed[i] = EncryptedItem{EncryptedText: ciphertext, BBox: item.BBox}
			}
			meta.Pages[page] = sealed
			itemCount += len(items)
		}

		if payload, err = encodeMetadata(meta); err != nil {
			s.cleanupFiles(inputPath)
			return nil, err
		}
	}

	// The artifact lands before the store entry: a failed save must not
	// leave an orphaned session expiring on its own.
	artifactPath := filepath.Join(s.redactedDir, fmt.Sprintf("redacted_%s_%s", mode, filepath.Base(inputPath)))
	if err := result.Redacted.Save(artifactPath); err != nil {
		s.cleanupFiles(inputPath, artifactPath)
		return nil, fmt.Errorf("failed to write redacted artifact: %w", err)
	}

	if payload != nil {
		// The write must land before the caller sees the response, so an
		// immediate decrypt with the issued key always succeeds.
		putStart := time.Now()
		err := s.store.Put(ctx, documentID, payload, s.ttl)
		s.recordStoreOp("put", putStart, err)
		if err != nil {
			s.cleanupFiles(inputPath, artifactPath)
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"engine":      mode,
		"severity":    severity,
		"items":       itemCount,
	}).Info("Redaction session created")

	return &RedactResult{
		DocumentID:   documentID,
		EncodedKey:   crypto.EncodeKey(key),
		ArtifactPath: artifactPath,
		ItemCount:    itemCount,
		Cleanup: func() {
			s.cleanupFiles(inputPath, artifactPath)
		},
	}, nil
}
