package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventAuthStarted      AuditEventType = "auth_started"
	AuditEventAuthSuccess      AuditEventType = "auth_success"
	AuditEventAuthFailure      AuditEventType = "auth_failure"
	AuditEventTokenStored      AuditEventType = "token_stored"
	AuditEventTokenInvalidated AuditEventType = "token_invalidated"
	AuditEventDisconnected     AuditEventType = "disconnected"

	// Security events
	AuditEventForeignOrigin AuditEventType = "foreign_origin_message"
	AuditEventStateMismatch AuditEventType = "state_mismatch"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	Timestamp time.Time
	EventType AuditEventType
	Provider  string
	// TokenHash is a truncated hash of the access token, never the token.
	TokenHash    string
	Origin       string
	Success      bool
	ErrorMessage string
	Metadata     map[string]string
}

// AuditLogger provides secure audit logging for authorization events.
// Tokens are hashed before logging.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogEvent logs an audit event with structured logging
func (a *AuditLogger) LogEvent(event AuditEvent) {
	if a == nil {
		return
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	switch event.EventType {
	case AuditEventForeignOrigin, AuditEventStateMismatch:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.EventType)),
		slog.Time("timestamp", event.Timestamp),
		slog.Bool("success", event.Success),
	}

	if event.Provider != "" {
		attrs = append(attrs, slog.String("provider", event.Provider))
	}
	if event.TokenHash != "" {
		attrs = append(attrs, slog.String("token_hash", event.TokenHash))
	}
	if event.Origin != "" {
		attrs = append(attrs, slog.String("origin", event.Origin))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMessage))
	}

	for key, value := range event.Metadata {
		attrs = append(attrs, slog.String("meta_"+key, value))
	}

	a.logger.LogAttrs(context.Background(), level, "audit_event", attrs...)
}

// LogAuthStarted logs the start of an interactive authorization.
func (a *AuditLogger) LogAuthStarted(provider string, scopes ScopeSet, forceConsent bool) {
	a.LogEvent(AuditEvent{
		Timestamp: time.Now(),
		EventType: AuditEventAuthStarted,
		Provider:  provider,
		Success:   true,
		Metadata: map[string]string{
			"scope":         scopes.String(),
			"force_consent": strconv.FormatBool(forceConsent),
		},
	})
}

// LogAuthSuccess logs a completed authorization.
func (a *AuditLogger) LogAuthSuccess(provider, accessToken string, granted ScopeSet) {
	a.LogEvent(AuditEvent{
		Timestamp: time.Now(),
		EventType: AuditEventAuthSuccess,
		Provider:  provider,
		TokenHash: HashForLogging(accessToken),
		Success:   true,
		Metadata: map[string]string{
			"scope": granted.String(),
		},
	})
}

// LogAuthFailure logs a failed authorization.
func (a *AuditLogger) LogAuthFailure(provider string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.LogEvent(AuditEvent{
		Timestamp:    time.Now(),
		EventType:    AuditEventAuthFailure,
		Provider:     provider,
		Success:      false,
		ErrorMessage: msg,
		Metadata: map[string]string{
			"kind": string(KindOf(err)),
		},
	})
}

// LogTokenInvalidated logs the removal of a credential after the provider
// rejected it.
func (a *AuditLogger) LogTokenInvalidated(provider, accessToken, reason string) {
	a.LogEvent(AuditEvent{
		Timestamp: time.Now(),
		EventType: AuditEventTokenInvalidated,
		Provider:  provider,
		TokenHash: HashForLogging(accessToken),
		Success:   true,
		Metadata: map[string]string{
			"reason": reason,
		},
	})
}

// LogDisconnected logs an explicit sign-out.
func (a *AuditLogger) LogDisconnected(provider string) {
	a.LogEvent(AuditEvent{
		Timestamp: time.Now(),
		EventType: AuditEventDisconnected,
		Provider:  provider,
		Success:   true,
	})
}

// LogForeignOrigin logs a callback message that was dropped because it did not
// come from the application origin.
func (a *AuditLogger) LogForeignOrigin(provider, origin string) {
	a.LogEvent(AuditEvent{
		Timestamp:    time.Now(),
		EventType:    AuditEventForeignOrigin,
		Provider:     provider,
		Origin:       origin,
		Success:      false,
		ErrorMessage: "message from foreign origin ignored",
	})
}

// LogStateMismatch logs a callback message whose state did not match the
// flow in progress.
func (a *AuditLogger) LogStateMismatch(provider, origin string) {
	a.LogEvent(AuditEvent{
		Timestamp:    time.Now(),
		EventType:    AuditEventStateMismatch,
		Provider:     provider,
		Origin:       origin,
		Success:      false,
		ErrorMessage: "message with unexpected state ignored",
	})
}

// HashForLogging returns a short, non-reversible identifier for a secret.
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
