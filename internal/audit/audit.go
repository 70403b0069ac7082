package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeRedact represents a redaction operation.
	EventTypeRedact EventType = "redact"
	// EventTypeDecrypt represents a session decryption operation.
	EventTypeDecrypt EventType = "decrypt"
	// EventTypeRestore represents a document restoration operation.
	EventTypeRestore EventType = "restore"
	// EventTypeAccess represents a general access operation.
	EventTypeAccess EventType = "access"
)

// AuditEvent represents a single audit log event.
//
// DocumentID identifies the session; the decryption key is never part of an
// event.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	Operation  string                 `json:"operation"`
	DocumentID string                 `json:"document_id,omitempty"`
	Engine     string                 `json:"engine,omitempty"`
	Severity   int                    `json:"severity,omitempty"`
	ItemCount  int                    `json:"item_count,omitempty"`
	ClientIP   string                 `json:"client_ip,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Duration   time.Duration          `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogRedact logs a redaction operation.
	LogRedact(documentID, engine string, severity, itemCount int, success bool, err error, duration time.Duration)

	// LogDecrypt logs a session decryption operation.
	LogDecrypt(documentID string, success bool, err error, duration time.Duration)

	// LogRestore logs a document restoration operation.
	LogRestore(documentID string, success bool, err error, duration time.Duration)

	// LogAccess logs a general access operation.
	LogAccess(eventType, documentID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration)
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu        sync.Mutex
	events    []*AuditEvent
	maxEvents int
	writer    EventWriter
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:    make([]*AuditEvent, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// A writer failure must not fail the operation being audited.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)

	// Maintain max events limit
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// LogRedact logs a redaction operation.
func (l *auditLogger) LogRedact(documentID, engine string, severity, itemCount int, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeRedact,
		Operation:  "redact",
		DocumentID: documentID,
		Engine:     engine,
		Severity:   severity,
		ItemCount:  itemCount,
		Success:    success,
		Duration:   duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogDecrypt logs a session decryption operation.
func (l *auditLogger) LogDecrypt(documentID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeDecrypt,
		Operation:  "decrypt",
		DocumentID: documentID,
		Success:    success,
		Duration:   duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogRestore logs a document restoration operation.
func (l *auditLogger) LogRestore(documentID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeRestore,
		Operation:  "restore",
		DocumentID: documentID,
		Success:    success,
		Duration:   duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogAccess logs a general access operation.
func (l *auditLogger) LogAccess(eventType, documentID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventType(eventType),
		Operation:  eventType,
		DocumentID: documentID,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		RequestID:  requestID,
		Success:    success,
		Duration:   duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Return a copy to prevent external modifications
	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	fmt.Printf("%s\n", string(data))
	return nil
}
