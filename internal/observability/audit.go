package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/agentbridge/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is a structured record of a shared-state mutation or a
// rejected tool payload.
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	ThreadID  string                 `json:"thread_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Action    string                 `json:"action"` // e.g. "apply:generate_recipe"
	Status    string                 `json:"status"` // "success" or "rejected"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger. It discards events
// until InitAuditLogger or SetAuditLogger installs a sink.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = &AuditLogger{logger: zerolog.Nop()}
	}
	return auditInst
}

// Enabled reports whether events reach a sink.
func (a *AuditLogger) Enabled() bool {
	return a.logger.GetLevel() != zerolog.Disabled
}

// InitAuditLogger points the audit log at path, appending.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	SetAuditLogger(NewAuditLogger(zerolog.New(file).With().Timestamp().Logger(), file))
	return nil
}

// NewAuditLogger wraps an existing zerolog logger. file may be nil.
func NewAuditLogger(logger zerolog.Logger, file *os.File) *AuditLogger {
	return &AuditLogger{logger: logger, file: file}
}

func SetAuditLogger(a *AuditLogger) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditInst = a
}

// Record writes the event and mirrors it onto the active span, if any.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.thread_id", event.ThreadID),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("thread_id", event.ThreadID).
		Str("run_id", event.RunID).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// CloseAuditLogger closes the process audit logger. Later events are
// discarded.
func CloseAuditLogger() error {
	auditMu.Lock()
	inst := auditInst
	auditInst = nil
	auditMu.Unlock()
	if inst == nil {
		return nil
	}
	return inst.Close()
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordStateAudit records a state applier outcome for a tool call.
func RecordStateAudit(ctx context.Context, toolName, threadID, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "state",
		ThreadID: threadID,
		RunID:    tracing.GetRunID(ctx),
		Action:   "apply:" + toolName,
		Status:   status,
		Metadata: metadata,
	})
}
