package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware wraps handlers with OpenTelemetry tracing.
//
// When redactSensitive is set, session credentials and query strings are
// replaced with a placeholder before they reach any exporter.
func TracingMiddleware(redactSensitive bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer("redaction-gateway")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ctx, span := tracer.Start(ctx, spanName(r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPScheme(r.URL.Scheme),
					semconv.HTTPTarget(r.URL.Path),
					semconv.HTTPURL(r.URL.String()),
					semconv.HTTPRoute(r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.String("http.remote_addr", getRemoteAddr(r)),
				),
			)

			if documentID := r.Header.Get("X-Document-ID"); documentID != "" {
				span.SetAttributes(attribute.String("session.document_id", documentID))
			}

			// Add query parameters (redacted if sensitive)
			if r.URL.RawQuery != "" {
				if redactSensitive {
					span.SetAttributes(attribute.String("http.query", "[REDACTED]"))
				} else {
					span.SetAttributes(attribute.String("http.query", r.URL.RawQuery))
				}
			}

			addHeadersToSpan(span, r.Header, redactSensitive)

			// Wrap response writer to capture status code
			rw := &tracingResponseWriter{
				ResponseWriter: w,
				span:           span,
			}

			r = r.WithContext(ctx)

			defer func() {
				span.SetAttributes(
					semconv.HTTPStatusCode(rw.statusCode),
				)

				if rw.statusCode >= 400 {
					span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
				} else {
					span.SetStatus(codes.Ok, "")
				}

				span.End()
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// spanName generates a descriptive span name for the known routes.
func spanName(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/redact/vision"):
		return "Redact Vision"
	case strings.HasPrefix(path, "/redact/rule"):
		return "Redact Rule"
	case strings.HasPrefix(path, "/decrypt"):
		return "Decrypt Session"
	case strings.HasPrefix(path, "/restore"):
		return "Restore Document"
	default:
		return "HTTP " + method
	}
}

// getRemoteAddr extracts the real remote address, handling X-Forwarded-For and X-Real-IP
func getRemoteAddr(r *http.Request) string {
	// Check X-Real-IP first (single IP, more trusted than X-Forwarded-For)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Check X-Forwarded-For (may contain multiple IPs)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in case of multiple
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return r.RemoteAddr
}

// addHeadersToSpan adds relevant headers to the span, redacting sensitive ones.
// The decryption key header is never exported, regardless of redactSensitive.
func addHeadersToSpan(span trace.Span, headers http.Header, redactSensitive bool) {
	safeHeaders := []string{
		"content-type",
		"content-length",
		"content-encoding",
		"accept",
		"accept-encoding",
	}

	for _, header := range safeHeaders {
		if value := headers.Get(header); value != "" {
			span.SetAttributes(attribute.String("http.request.header."+header, value))
		}
	}

	for name := range headers {
		if !shouldRedactHeader(name) {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "x-decryption-key" || redactSensitive {
			span.SetAttributes(attribute.String("http.request.header."+lower, "[REDACTED]"))
		} else {
			span.SetAttributes(attribute.String("http.request.header."+lower, headers.Get(name)))
		}
	}
}

// tracingResponseWriter wraps http.ResponseWriter to capture status code for tracing
type tracingResponseWriter struct {
	http.ResponseWriter
	span       trace.Span
	statusCode int
}

func (w *tracingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *tracingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
