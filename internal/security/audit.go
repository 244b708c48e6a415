package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

// Audit event types covering every decision the assistant takes on behalf
// of a principal.
const (
	EventMessage         EventType = "message"
	EventToolCall        EventType = "tool_call"
	EventToolResult      EventType = "tool_result"
	EventApprovalRequest EventType = "approval_request"
	EventApproval        EventType = "approval"
	EventSandboxDenied   EventType = "sandbox_denied"
	EventQuotaDenied     EventType = "quota_denied"
	EventAuthFailure     EventType = "auth_failure"
	EventSessionCreate   EventType = "session_create"
	EventSessionReset    EventType = "session_reset"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          EventType         `json:"type"`
	Principal     string            `json:"principal,omitempty"`
	ChatID        string            `json:"chat_id,omitempty"`
	ToolName      string            `json:"tool_name,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil disables output.
	Writer io.Writer

	// Redactor masks Detail and Metadata values. Nil masks nothing.
	Redactor *Redactor

	// OnEvent observes every event after masking.
	OnEvent func(AuditEvent)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger records AuditEvents as JSONL. A nil *AuditLogger discards
// everything, so components can log unconditionally.
type AuditLogger struct {
	cfg         AuditLoggerConfig
	mu          sync.Mutex
	enc         *json.Encoder
	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &AuditLogger{cfg: cfg}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	return l
}

// Log stamps event with an ID (unless set) and the current time, masks it
// and writes it. The caller's Metadata map is left untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.cfg.Now()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Detail = l.cfg.Redactor.Redact(event.Detail)
	if len(event.Metadata) > 0 {
		event.Metadata = maps.Clone(event.Metadata)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.cfg.Redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.enc != nil && l.enc.Encode(event) != nil {
		l.writeErrors.Add(1)
	}
}

// WriteErrors returns how many events could not be written.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}
