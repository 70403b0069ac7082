package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/redaction-gateway/internal/config"
	"github.com/kenneth/redaction-gateway/internal/crypto"
	"github.com/kenneth/redaction-gateway/internal/document"
	"github.com/kenneth/redaction-gateway/internal/redaction"
	"github.com/kenneth/redaction-gateway/internal/session"
	"github.com/kenneth/redaction-gateway/internal/store"
)

// testGateway spins up the full handler stack against miniredis and a fake
// vision backend.
type testGateway struct {
	router *mux.Router
	mr     *miniredis.Miniredis
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	metaStore := store.NewWithClient(client, time.Second, logger)

	// Fake inference backend: flags every email-looking token.
	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var hits []map[string]string
		for _, tok := range strings.Fields(req.Text) {
			if strings.Contains(tok, "@") {
				hits = append(hits, map[string]string{"text": tok, "label": "EMAIL"})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hits)
	}))
	t.Cleanup(inference.Close)

	cfg := &config.Config{
		Session: config.SessionConfig{TTL: 24 * time.Hour, SealAlgorithm: config.SealAES256GCM},
		Engine: config.EngineConfig{
			Timeout: 5 * time.Second,
			Vision:  config.VisionConfig{Endpoint: inference.URL},
		},
		Storage: config.StorageConfig{
			TempDir:     t.TempDir(),
			RedactedDir: t.TempDir(),
			RestoredDir: t.TempDir(),
		},
	}

	sealer, err := crypto.NewSealer(cfg.Session.SealAlgorithm)
	require.NoError(t, err)

	gateway := redaction.NewGateway(
		redaction.NewRuleEngine(),
		redaction.NewVisionEngine(&cfg.Engine.Vision, cfg.Engine.Timeout),
	)

	svc, err := session.NewService(cfg, metaStore, gateway, sealer, nil, logger)
	require.NoError(t, err)

	handler := NewHandler(svc, metaStore, logger, nil, nil, cfg)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	return &testGateway{router: router, mr: mr}
}

// postDocument uploads a synthesized document to a redact route.
func (g *testGateway) postDocument(t *testing.T, route, severity string, doc *document.Document) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "upload.json")
	require.NoError(t, err)
	require.NoError(t, doc.Encode(part))
	if severity != "" {
		require.NoError(t, mw.WriteField("severity", severity))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", route, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)
	return rr
}

func (g *testGateway) postDecrypt(t *testing.T, documentID, key string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"document_id":    documentID,
		"decryption_key": key,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/decrypt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)
	return rr
}

func (g *testGateway) postRestore(t *testing.T, documentID, key string, artifact []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "redacted_upload.json")
	require.NoError(t, err)
	_, err = part.Write(artifact)
	require.NoError(t, err)
	if documentID != "" {
		require.NoError(t, mw.WriteField("document_id", documentID))
	}
	if key != "" {
		require.NoError(t, mw.WriteField("decryption_key", key))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/restore", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	return envelope.Code
}

func TestRedactRule_EndToEnd(t *testing.T) {
	g := newTestGateway(t)

	doc := document.Synthesize("contact john.doe@example.com or call 555-123-4567 now")
	rr := g.postDocument(t, "/redact/rule", "40", doc)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	documentID := rr.Header().Get(HeaderDocumentID)
	key := rr.Header().Get(HeaderDecryptionKey)
	assert.NotEmpty(t, documentID)
	assert.NotEmpty(t, key)
	assert.Equal(t, "2", rr.Header().Get(HeaderRedactedItems))

	// The artifact in the body must be a valid document without the PII.
	redacted, err := document.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.NotContains(t, redacted.Pages[0].Text(), "john.doe@example.com")

	// Decrypt through the public route.
	dr := g.postDecrypt(t, documentID, key)
	require.Equal(t, http.StatusOK, dr.Code, dr.Body.String())

	var resp struct {
		DocumentID string `json:"document_id"`
		Pages      map[string][]struct {
			Text string     `json:"text"`
			BBox [4]float64 `json:"bbox"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(dr.Body.Bytes(), &resp))
	assert.Equal(t, documentID, resp.DocumentID)
	require.Len(t, resp.Pages["0"], 2)
}

func TestRedactVision_EndToEnd(t *testing.T) {
	g := newTestGateway(t)

	doc := document.Synthesize("reach me at jane@example.org thanks")
	rr := g.postDocument(t, "/redact/vision", "40", doc)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "1", rr.Header().Get(HeaderRedactedItems))

	dr := g.postDecrypt(t, rr.Header().Get(HeaderDocumentID), rr.Header().Get(HeaderDecryptionKey))
	require.Equal(t, http.StatusOK, dr.Code)
	assert.Contains(t, dr.Body.String(), "jane@example.org")
}

func TestRedact_MissingFile(t *testing.T) {
	g := newTestGateway(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("severity", "40"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/redact/rule", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "InvalidRequest", errorCode(t, rr))
}

func TestRedact_InvalidSeverity(t *testing.T) {
	g := newTestGateway(t)

	doc := document.Synthesize("anything at all")
	for _, severity := range []string{"abc", "-1", "101"} {
		rr := g.postDocument(t, "/redact/rule", severity, doc)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "severity %q", severity)
		assert.Equal(t, "InvalidRequest", errorCode(t, rr), "severity %q", severity)
	}
}

func TestRedact_MalformedDocument(t *testing.T) {
	g := newTestGateway(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "junk.bin")
	require.NoError(t, err)
	part.Write([]byte("this is not a document"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/redact/rule", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "EngineFailure", errorCode(t, rr))
}

func TestDecrypt_UnknownSession(t *testing.T) {
	g := newTestGateway(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	rr := g.postDecrypt(t, "no-such-id", crypto.EncodeKey(key))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "SessionNotFound", errorCode(t, rr))
}

func TestDecrypt_WrongKey(t *testing.T) {
	g := newTestGateway(t)

	doc := document.Synthesize("mail a.b@example.org today")
	rr := g.postDocument(t, "/redact/rule", "40", doc)
	require.Equal(t, http.StatusOK, rr.Code)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	dr := g.postDecrypt(t, rr.Header().Get(HeaderDocumentID), crypto.EncodeKey(otherKey))
	assert.Equal(t, http.StatusForbidden, dr.Code)
	assert.Equal(t, "DecryptionFailed", errorCode(t, dr))
}

func TestDecrypt_MalformedKey(t *testing.T) {
	g := newTestGateway(t)

	doc := document.Synthesize("mail a.b@example.org today")
	rr := g.postDocument(t, "/redact/rule", "40", doc)
	require.Equal(t, http.StatusOK, rr.Code)

	dr := g.postDecrypt(t, rr.Header().Get(HeaderDocumentID), "!!!not-a-key")
	assert.Equal(t, http.StatusBadRequest, dr.Code)
	assert.Equal(t, "InvalidKeyFormat", errorCode(t, dr))
}

func TestDecrypt_InvalidBody(t *testing.T) {
	g := newTestGateway(t)

	req := httptest.NewRequest("POST", "/decrypt", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "InvalidRequest", errorCode(t, rr))
}

func TestRestore_EndToEnd(t *testing.T) {
	g := newTestGateway(t)

	original := document.Synthesize("mail a.b@example.org and call 555-123-4567 today")
	rr := g.postDocument(t, "/redact/rule", "40", original)
	require.Equal(t, http.StatusOK, rr.Code)

	sr := g.postRestore(t,
		rr.Header().Get(HeaderDocumentID),
		rr.Header().Get(HeaderDecryptionKey),
		rr.Body.Bytes(),
	)
	require.Equal(t, http.StatusOK, sr.Code, sr.Body.String())

	restored, err := document.Decode(bytes.NewReader(sr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, original.Pages[0].Text(), restored.Pages[0].Text())
}

func TestRestore_CredentialHeaderFallback(t *testing.T) {
	g := newTestGateway(t)

	original := document.Synthesize("mail a.b@example.org today")
	rr := g.postDocument(t, "/redact/rule", "40", original)
	require.Equal(t, http.StatusOK, rr.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "redacted_upload.json")
	require.NoError(t, err)
	_, err = part.Write(rr.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	// No form fields: the credential headers alone must still work.
	req := httptest.NewRequest("POST", "/restore", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderDocumentID, rr.Header().Get(HeaderDocumentID))
	req.Header.Set(HeaderDecryptionKey, rr.Header().Get(HeaderDecryptionKey))
	sr := httptest.NewRecorder()
	g.router.ServeHTTP(sr, req)

	require.Equal(t, http.StatusOK, sr.Code, sr.Body.String())
}

func TestRestore_GeometryMismatch(t *testing.T) {
	g := newTestGateway(t)

	original := document.Synthesize("mail a.b@example.org today")
	rr := g.postDocument(t, "/redact/rule", "40", original)
	require.Equal(t, http.StatusOK, rr.Code)

	// A valid document whose geometry has nothing under the recorded boxes.
	var foreign bytes.Buffer
	require.NoError(t, document.Synthesize("x").Encode(&foreign))

	sr := g.postRestore(t,
		rr.Header().Get(HeaderDocumentID),
		rr.Header().Get(HeaderDecryptionKey),
		foreign.Bytes(),
	)
	assert.Equal(t, http.StatusInternalServerError, sr.Code)
	assert.Equal(t, "ReconstructionFailed", errorCode(t, sr))
}

func TestRestore_MissingCredentials(t *testing.T) {
	g := newTestGateway(t)

	rr := g.postRestore(t, "", "", []byte("{}"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "InvalidRequest", errorCode(t, rr))
}

func TestMethodNotAllowed(t *testing.T) {
	g := newTestGateway(t)

	req := httptest.NewRequest("GET", "/decrypt", nil)
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "MethodNotAllowed", errorCode(t, rr))
}

func TestHealthEndpoints(t *testing.T) {
	g := newTestGateway(t)

	for _, route := range []string{"/health", "/ready", "/live"} {
		req := httptest.NewRequest("GET", route, nil)
		rr := httptest.NewRecorder()
		g.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, route)
	}
}

func TestReady_StoreDown(t *testing.T) {
	g := newTestGateway(t)
	g.mr.Close()

	req := httptest.NewRequest("GET", "/ready", nil)
	rr := httptest.NewRecorder()
	g.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
