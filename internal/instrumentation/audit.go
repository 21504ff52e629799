package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures one MCP tool call for the invocation log.
type ToolInvocation struct {
	Tool string

	// Session is the coordinator the tool acted through (calendar, gmail, ...).
	Session   string
	Provider  string
	Operation string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	// ErrorKind is the oauth error kind, when the failure was an AuthError.
	ErrorKind string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete when the tool finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSession sets the session and its provider.
func (ti *ToolInvocation) WithSession(session, provider string) *ToolInvocation {
	ti.Session = session
	ti.Provider = provider
	return ti
}

// WithOperation sets the operation name.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(err error, kind string) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
		ti.ErrorKind = kind
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.Session != "" {
		attrs = append(attrs, slog.String("session", ti.Session))
	}
	if ti.Provider != "" {
		attrs = append(attrs, slog.String("provider", ti.Provider))
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	if ti.ErrorKind != "" {
		attrs = append(attrs, slog.String("error_kind", ti.ErrorKind))
	}

	return attrs
}

// InvocationLogger writes tool invocations to a slog.Logger.
type InvocationLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewInvocationLogger creates an enabled InvocationLogger.
func NewInvocationLogger(logger *slog.Logger) *InvocationLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvocationLogger{
		logger:  logger,
		enabled: true,
	}
}

// SetEnabled sets whether invocations are logged.
func (l *InvocationLogger) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// Log writes ti at info level on success and warn level on failure.
func (l *InvocationLogger) Log(ti *ToolInvocation) {
	if l == nil || !l.enabled {
		return
	}

	attrs := ti.LogAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		l.logger.Info("tool_executed", args...)
	} else {
		l.logger.Warn("tool_failed", args...)
	}
}
