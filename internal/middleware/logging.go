package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/metrics"
)

// sensitiveHeaders are never written to logs. The decryption key is the
// custody boundary of the whole service.
var sensitiveHeaders = []string{
	"x-decryption-key",
	"authorization",
	"cookie",
}

// LoggingMiddleware wraps handlers with request logging and HTTP metrics.
func LoggingMiddleware(logger *logrus.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get request body size from Content-Length header for uploads
			var requestBytes int64
			if r.Method == "PUT" || r.Method == "POST" {
				if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
					if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
						requestBytes = size
					}
				}
			}

			// Wrap response writer to capture status code
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if m != nil {
				m.IncrementActiveConnections()
				defer m.DecrementActiveConnections()
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			// For uploads, log request bytes; otherwise response bytes
			bytesLogged := rw.bytesWritten
			if requestBytes > 0 {
				bytesLogged = requestBytes
			}

			if m != nil {
				m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, duration, bytesLogged)
			}

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"status":      rw.statusCode,
				"duration_ms": duration.Milliseconds(),
				"bytes":       bytesLogged,
			}

			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}

			if ua := r.UserAgent(); ua != "" {
				fields["user_agent"] = ua
			}

			logger.WithFields(fields).Info("HTTP request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// shouldRedactHeader checks if a header must be kept out of logs and spans.
func shouldRedactHeader(headerName string) bool {
	lowerHeaderName := strings.ToLower(headerName)
	for _, redact := range sensitiveHeaders {
		if redact == lowerHeaderName {
			return true
		}
	}
	return false
}
