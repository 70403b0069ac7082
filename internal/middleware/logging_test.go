package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/redaction-gateway/internal/metrics"
)

func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := LoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("POST", "/decrypt", strings.NewReader("{}"))
	req.Header.Set("Content-Length", "2")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	out := buf.String()
	assert.Contains(t, out, `"path":"/decrypt"`)
	assert.Contains(t, out, `"status":201`)
	assert.Contains(t, out, `"method":"POST"`)
}

func TestLoggingMiddleware_NeverLogsDecryptionKey(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := LoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/restore", nil)
	req.Header.Set("X-Decryption-Key", "super-secret-session-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.NotContains(t, buf.String(), "super-secret-session-key")
}

func TestLoggingMiddleware_RecordsMetrics(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)

	handler := LoggingMiddleware(logger, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() == "http_requests_total" {
			found = true
		}
	}
	assert.True(t, found, "http_requests_total should be recorded")
}

func TestShouldRedactHeader(t *testing.T) {
	assert.True(t, shouldRedactHeader("X-Decryption-Key"))
	assert.True(t, shouldRedactHeader("authorization"))
	assert.True(t, shouldRedactHeader("Cookie"))
	assert.False(t, shouldRedactHeader("Content-Type"))
	assert.False(t, shouldRedactHeader("X-Document-ID"))
}
