package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/audit"
	"github.com/kenneth/redaction-gateway/internal/config"
	"github.com/kenneth/redaction-gateway/internal/metrics"
	"github.com/kenneth/redaction-gateway/internal/redaction"
	"github.com/kenneth/redaction-gateway/internal/session"
	"github.com/kenneth/redaction-gateway/internal/store"
)

// Session credential headers. The key travels only in headers and request
// bodies supplied by the client, never in URLs.
const (
	HeaderDocumentID    = "X-Document-ID"
	HeaderDecryptionKey = "X-Decryption-Key"
	HeaderRedactedItems = "X-Redacted-Items"
)

// Handler handles HTTP requests for redaction sessions.
type Handler struct {
	service        *session.Service
	metaStore      *store.Store
	logger         *logrus.Logger
	metrics        *metrics.Metrics
	auditLogger    audit.Logger
	maxUploadBytes int64
}

// NewHandler creates a new API handler.
func NewHandler(
	service *session.Service,
	metaStore *store.Store,
	logger *logrus.Logger,
	m *metrics.Metrics,
	auditLogger audit.Logger,
	cfg *config.Config,
) *Handler {
	maxUpload := int64(64 << 20)
	if cfg != nil && cfg.Server.MaxUploadBytes > 0 {
		maxUpload = cfg.Server.MaxUploadBytes
	}

	return &Handler{
		service:        service,
		metaStore:      metaStore,
		logger:         logger,
		metrics:        m,
		auditLogger:    auditLogger,
		maxUploadBytes: maxUpload,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrMethodNotAllowed.WriteJSON(w)
	})

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")

	r.HandleFunc("/redact/vision", h.handleRedactVision).Methods("POST")
	r.HandleFunc("/redact/rule", h.handleRedactRule).Methods("POST")
	r.HandleFunc("/decrypt", h.handleDecrypt).Methods("POST")
	r.HandleFunc("/restore", h.handleRestore).Methods("POST")
}

// handleHealth handles health check requests.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports readiness: the service is ready only when the session
// store answers.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.metaStore.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Warn("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles liveness check requests.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *Handler) handleRedactVision(w http.ResponseWriter, r *http.Request) {
	h.handleRedact(w, r, redaction.ModeVision)
}

func (h *Handler) handleRedactRule(w http.ResponseWriter, r *http.Request) {
	h.handleRedact(w, r, redaction.ModeRule)
}

// handleRedact runs one redaction session and returns the redacted artifact.
// The session credentials travel back in response headers; the artifact is the
// response body.
func (h *Handler) handleRedact(w http.ResponseWriter, r *http.Request, mode redaction.Mode) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ErrMissingFile.WriteJSON(w)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrMissingFile.WriteJSON(w)
		return
	}
	defer file.Close()

	severity, apiErr := parseSeverity(r.FormValue("severity"))
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	result, err := h.service.Redact(r.Context(), file, header.Filename, mode, severity)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"engine":   mode,
			"filename": header.Filename,
		}).Error("Redaction failed")

		if h.metrics != nil {
			h.metrics.RecordEngineError(string(mode))
		}
		if h.auditLogger != nil {
			h.auditLogger.LogRedact("", string(mode), severity, 0, false, err, time.Since(start))
		}

		TranslateError(err).WriteJSON(w)
		return
	}
	defer result.Cleanup()

	if h.metrics != nil {
		h.metrics.RecordEngineRun(string(mode), time.Since(start), result.ItemCount)
	}
	if h.auditLogger != nil {
		h.auditLogger.LogRedact(result.DocumentID, string(mode), severity, result.ItemCount, true, nil, time.Since(start))
	}

	w.Header().Set(HeaderDocumentID, result.DocumentID)
	w.Header().Set(HeaderDecryptionKey, result.EncodedKey)
	w.Header().Set(HeaderRedactedItems, strconv.Itoa(result.ItemCount))
	h.serveArtifact(w, result.ArtifactPath)
}

// decryptRequest is the JSON body of a decrypt call.
type decryptRequest struct {
	DocumentID    string `json:"document_id"`
	DecryptionKey string `json:"decryption_key"`
}

// decryptResponse carries the recovered plaintext items keyed by page.
type decryptResponse struct {
	DocumentID string                    `json:"document_id"`
	Pages      map[string][]session.Item `json:"pages"`
}

// handleDecrypt recovers the sealed items of a session without touching any
// document.
func (h *Handler) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req decryptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		ErrInvalidRequest.WriteJSON(w)
		return
	}
	if req.DocumentID == "" || req.DecryptionKey == "" {
		ErrInvalidRequest.WriteJSON(w)
		return
	}

	pages, err := h.service.Decrypt(r.Context(), req.DocumentID, req.DecryptionKey)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", req.DocumentID).Warn("Decrypt failed")
		if h.auditLogger != nil {
			h.auditLogger.LogDecrypt(req.DocumentID, false, err, time.Since(start))
		}
		TranslateError(err).WriteJSON(w)
		return
	}

	if h.auditLogger != nil {
		h.auditLogger.LogDecrypt(req.DocumentID, true, nil, time.Since(start))
	}

	writeJSON(w, http.StatusOK, decryptResponse{DocumentID: req.DocumentID, Pages: pages})
}

// handleRestore reconstructs the original document from a redacted artifact
// and the session credentials. The credentials travel as multipart form
// fields; the matching headers are accepted as a fallback.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ErrMissingFile.WriteJSON(w)
		return
	}

	documentID := r.FormValue("document_id")
	if documentID == "" {
		documentID = r.Header.Get(HeaderDocumentID)
	}
	encodedKey := r.FormValue("decryption_key")
	if encodedKey == "" {
		encodedKey = r.Header.Get(HeaderDecryptionKey)
	}
	if documentID == "" || encodedKey == "" {
		ErrInvalidRequest.WriteJSON(w)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrMissingFile.WriteJSON(w)
		return
	}
	defer file.Close()

	result, err := h.service.Restore(r.Context(), documentID, encodedKey, file, header.Filename)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", documentID).Warn("Restore failed")
		if h.auditLogger != nil {
			h.auditLogger.LogRestore(documentID, false, err, time.Since(start))
		}
		TranslateError(err).WriteJSON(w)
		return
	}
	defer result.Cleanup()

	if h.auditLogger != nil {
		h.auditLogger.LogRestore(documentID, true, nil, time.Since(start))
	}

	w.Header().Set(HeaderDocumentID, documentID)
	h.serveArtifact(w, result.ArtifactPath)
}

// serveArtifact streams a produced document to the client.
func (h *Handler) serveArtifact(w http.ResponseWriter, path string) {
	f, err := os.Open(path)
	if err != nil {
		h.logger.WithError(err).WithField("path", path).Error("Failed to open artifact")
		TranslateError(err).WriteJSON(w)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.WithError(err).Warn("Failed to stream artifact")
	}
}

// parseSeverity validates the severity form field. An absent field means full
// severity.
func parseSeverity(raw string) (int, *APIError) {
	if raw == "" {
		return 100, nil
	}
	severity, err := strconv.Atoi(raw)
	if err != nil || severity < 0 || severity > 100 {
		return 0, ErrInvalidSeverity
	}
	return severity, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
