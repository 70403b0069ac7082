package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/config"
	"github.com/kenneth/redaction-gateway/internal/crypto"
	"github.com/kenneth/redaction-gateway/internal/metrics"
	"github.com/kenneth/redaction-gateway/internal/redaction"
	"github.com/kenneth/redaction-gateway/internal/store"
)

// Service executes the redaction-session lifecycle: it orchestrates the
// engines, the key manager and the metadata store for redaction, and serves
// the decrypt/restore protocols that consume the stored state.
type Service struct {
	store         *store.Store
	gateway       *redaction.Gateway
	sealer        crypto.Sealer
	metrics       *metrics.Metrics
	ttl           time.Duration
	engineTimeout time.Duration
	tempDir       string
	redactedDir   string
	restoredDir   string
	logger        *logrus.Logger
}

// NewService builds the session service and creates the artifact directories.
// The metrics instance may be nil; recording is skipped then.
func NewService(
	cfg *config.Config,
	metaStore *store.Store,
	gateway *redaction.Gateway,
	sealer crypto.Sealer,
	m *metrics.Metrics,
	logger *logrus.Logger,
) (*Service, error) {
	for _, dir := range []string{cfg.Storage.TempDir, cfg.Storage.RedactedDir, cfg.Storage.RestoredDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}

	return &Service{
		store:         metaStore,
		gateway:       gateway,
		sealer:        sealer,
		metrics:       m,
		ttl:           cfg.Session.TTL,
		engineTimeout: cfg.Engine.Timeout,
		tempDir:       cfg.Storage.TempDir,
		redactedDir:   cfg.Storage.RedactedDir,
		restoredDir:   cfg.Storage.RestoredDir,
		logger:        logger,
	}, nil
}

// spool copies an upload into the temp directory under a collision-free name.
func (s *Service) spool(r io.Reader, filename string) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	path := filepath.Join(s.tempDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to finish spooling upload: %w", err)
	}
	return path, nil
}

// sanitizeFilename keeps only the base name of a client-supplied filename.
func sanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "document"
	}
	return base
}

// recordStoreOp records one metadata store call against the operation's
// metric family.
func (s *Service) recordStoreOp(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.RecordStoreError(operation)
		return
	}
	s.metrics.RecordStoreOperation(operation, time.Since(start))
}

// recordSealOp records one seal or open call. Authentication failures are
// distinguished from everything else so wrong-key traffic is visible.
func (s *Service) recordSealOp(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		errorType := "internal"
		if errors.Is(err, crypto.ErrDecryptFailed) {
			errorType = "auth"
		}
		s.metrics.RecordSealError(operation, errorType)
		return
	}
	s.metrics.RecordSealOperation(operation, time.Since(start))
}

// cleanupFiles removes request-scoped artifacts, logging rather than failing
// on problems: cleanup runs on every exit path and must never mask the
// request outcome.
func (s *Service) cleanupFiles(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to remove temporary artifact")
		}
	}
}
