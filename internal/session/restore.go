package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/crypto"
	"github.com/kenneth/redaction-gateway/internal/document"
)

// RestoreResult carries the reconstructed artifact. Cleanup releases the
// request-scoped files once the artifact has been delivered.
type RestoreResult struct {
	ArtifactPath string
	Cleanup      func()
}

// restoredItem is one decrypted item ready to be written back.
type restoredItem struct {
	page int
	bbox document.BBox
	text string
}

// Restore reconstructs the original document by writing each decrypted item
// back at its recorded bounding box in the supplied redacted artifact.
//
// All items are decrypted before anything is written, under the same
// atomic-failure rule as Decrypt. The artifact's geometry is assumed to match
// the one produced for this document ID at redaction time; the service does
// not verify artifact identity, so restoring against a different file yields
// an undefined (but harmless to others) result.
func (s *Service) Restore(ctx context.Context, documentID, encodedKey string, artifact io.Reader, filename string) (*RestoreResult, error) {
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

	// Decrypt everything first; a single bad item fails the whole request
	// before the artifact is even read.
	var restored []restoredItem
	for page, sealed := range meta.Pages {
		pageNumber, err := strconv.Atoi(page)
		if err != nil {
			return nil, fmt.Errorf("%w: bad page key %q", ErrReconstructionFailed, page)
		}
		for _, item := range sealed {
			openStart := time.Now()
			plaintext, err := s.sealer.Open(key, item.EncryptedText)
			s.recordSealOp("open", openStart, err)
			if err != nil {
				if errors.Is(err, crypto.ErrDecryptFailed) {
					return nil, ErrDecryptionFailed
				}
				return nil, err
			}
			restored = append(restored, restoredItem{page: pageNumber, bbox: item.BBox, text: plaintext})
		}
	}

	inputPath, err := s.spool(artifact, filename)
	if err != nil {
		return nil, err
	}

	doc, err := document.Load(inputPath)
	if err != nil {
		s.cleanupFiles(inputPath)
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailed, err)
	}

	for _, item := range restored {
		if err := doc.WriteAt(item.page, item.bbox, item.text); err != nil {
			s.cleanupFiles(inputPath)
			return nil, fmt.Errorf("%w: %v", ErrReconstructionFailed, err)
		}
	}

	outputName := "restored_" + strings.ReplaceAll(filepath.Base(inputPath), "redacted_", "")
	outputPath := filepath.Join(s.restoredDir, outputName)
	if err := doc.Save(outputPath); err != nil {
		s.cleanupFiles(inputPath)
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"items":       len(restored),
	}).Info("Document restored")

	return &RestoreResult{
		ArtifactPath: outputPath,
		Cleanup: func() {
			s.cleanupFiles(inputPath, outputPath)
		},
	}, nil
}
