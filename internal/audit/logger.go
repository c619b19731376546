package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Actions recorded by the API.
const (
	ActionUserRegister  = "user.register"
	ActionUserLogin     = "user.login"
	ActionEventCreate   = "event.create"
	ActionEventUpdate   = "event.update"
	ActionEventDelete   = "event.delete"
	ActionEventRegister = "event.register"
	ActionEventCancel   = "event.cancel"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// MarshalZerologObject nests the entry under the "audit" key.
func (e Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Time("timestamp", e.Timestamp).
		Str("action", e.Action).
		Str("actor", e.Actor).
		Str("ip_address", e.IPAddress).
		Str("status", e.Status)
	if e.ResourceType != "" {
		ev.Str("resource_type", e.ResourceType)
	}
	if e.ResourceID != "" {
		ev.Str("resource_id", e.ResourceID)
	}
	if len(e.Details) > 0 {
		details := zerolog.Dict()
		for k, v := range e.Details {
			details.Str(k, v)
		}
		ev.Dict("details", details)
	}
}

// Logger writes audit entries through zerolog.
type Logger struct {
	output zerolog.Logger
}

// NewLogger creates an audit logger on the global zerolog logger.
func NewLogger() *Logger {
	return NewLoggerWithZerolog(log.Logger)
}

// NewLoggerWithZerolog creates an audit logger that writes to logger.
func NewLoggerWithZerolog(logger zerolog.Logger) *Logger {
	return &Logger{output: logger.With().Str("log_type", "audit").Logger()}
}

// Log writes entry, stamping it with the current time if unset. A nil
// Logger discards entries.
func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	ev := l.output.Info()
	if entry.Status == StatusFailure {
		ev = l.output.Warn()
	}
	ev.Object("audit", entry).Msg(entry.Action)
}

// LogSuccess records a completed operation.
func (l *Logger) LogSuccess(action, actor, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Status:       StatusSuccess,
		Details:      details,
	})
}

// LogFailure records a rejected operation.
func (l *Logger) LogFailure(action, actor, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		Actor:     actor,
		IPAddress: ipAddress,
		Status:    StatusFailure,
		Details:   details,
	})
}

// LogFromRequest records an operation performed by actor through r. An
// empty actor is logged as "anonymous".
func (l *Logger) LogFromRequest(r *http.Request, actor, action, resourceType, resourceID, status string, details map[string]string) {
	if actor == "" {
		actor = "anonymous"
	}
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ClientIP(r),
		Status:       status,
		Details:      details,
	})
}

// ClientIP returns the originating client address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type contextKey string

const auditLoggerKey contextKey = "auditLogger"

// WithLogger adds an audit logger to ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext returns the audit logger stored in ctx, or a default one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger()
}
