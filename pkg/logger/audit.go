package logger

import (
	"context"
	"log/slog"
	"time"
)

// Protocol event types
const (
	EventUserCreated      = "user_created"
	EventAccountCompleted = "account_completed"
	EventLoginChallenge   = "login_challenge"
	EventLoginCompleted   = "login_completed"
	EventSessionIssued    = "session_issued"
	EventSessionRejected  = "session_rejected"
	EventKeyAdded         = "public_key_added"
	EventKeyUpdated       = "public_key_updated"
	EventKeyRemoved       = "public_key_removed"
	EventAccountType      = "account_type_changed"
	EventAccountStatus    = "account_status_changed"
	EventAccountDeleted   = "account_deleted"
)

type requestMetaKey struct{}

// RequestMeta identifies the client behind a request
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// WithRequestMeta stores client details on ctx for later audit records
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client details stored on ctx, if any
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes protocol audit records
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log records event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("audit_type", "protocol"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	meta := RequestMetaFrom(ctx)
	if meta.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", meta.IPAddress))
	}
	if meta.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", meta.UserAgent))
	}
	if meta.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", meta.RequestID))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// Success records a successful event
func (al *AuditLogger) Success(ctx context.Context, eventType, userID string, metadata map[string]string) {
	al.Log(ctx, AuditEvent{EventType: eventType, UserID: userID, Success: true, Metadata: metadata})
}

// Failure records a failed event with its (enumerable) reason
func (al *AuditLogger) Failure(ctx context.Context, eventType, userID, reason string) {
	al.Log(ctx, AuditEvent{EventType: eventType, UserID: userID, Success: false, FailureReason: reason})
}
