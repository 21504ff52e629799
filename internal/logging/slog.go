package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys.
const (
	KeyProvider  = "provider"
	KeySession   = "session"
	KeyOperation = "operation"
	KeyService   = "service"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyOrigin    = "origin"
	KeyScopes    = "scopes"
	KeyToken     = "token"
	KeyComponent = "component"
	KeyFlow      = "flow_id"
)

// Status values.
// Duplicated from instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Log formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds the process logger. level is one of debug, info, warn, error;
// format is text or json.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (supported: text, json)", format)
}

// ParseLevel converts a level name. An empty name means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// WithComponent returns a logger with the component attribute set.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// WithSession returns a logger for one session coordinator.
func WithSession(logger *slog.Logger, session, provider string) *slog.Logger {
	return logger.With(slog.String(KeySession, session), slog.String(KeyProvider, provider))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// Provider returns a slog attribute for the identity provider.
func Provider(provider string) slog.Attr {
	return slog.String(KeyProvider, provider)
}

// Session returns a slog attribute for the session name.
func Session(session string) slog.Attr {
	return slog.String(KeySession, session)
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Origin returns a slog attribute for a message origin.
func Origin(origin string) slog.Attr {
	return slog.String(KeyOrigin, origin)
}

// Flow returns a slog attribute for an authorization flow ID.
func Flow(id string) slog.Attr {
	return slog.String(KeyFlow, id)
}

// Scopes returns a slog attribute for a space-delimited scope list.
func Scopes(scopes string) slog.Attr {
	return slog.String(KeyScopes, scopes)
}

// Err returns a slog attribute for an error.
// A nil err yields an empty group, which slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// Token returns a slog attribute describing a token without its content.
func Token(token string) slog.Attr {
	return slog.String(KeyToken, SanitizeToken(token))
}

// SanitizeToken returns a length indicator for a token. No part of the token
// is included.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
