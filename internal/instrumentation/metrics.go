package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrService  = "service"
	attrResult   = "result"
	attrTool     = "tool"
	attrProvider = "provider"
	attrReason   = "reason"
	attrSession  = "session"
)

// Metrics records homedash metrics. A zero Metrics, or a nil *Metrics, is a
// no-op recorder.
type Metrics struct {
	// Callback server
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Authorization
	authFlowsTotal          metric.Int64Counter
	authFlowDuration        metric.Float64Histogram
	callbackMessagesTotal   metric.Int64Counter
	tokenInvalidationsTotal metric.Int64Counter
	connectedSessions       metric.Int64UpDownCounter

	// Provider APIs
	apiCallsTotal   metric.Int64Counter
	apiCallDuration metric.Float64Histogram

	// MCP tools
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests to the callback server"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.authFlowsTotal, err = meter.Int64Counter(
		"auth_flows_total",
		metric.WithDescription("Total number of authorization flows"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flows_total counter: %w", err)
	}

	m.authFlowDuration, err = meter.Float64Histogram(
		"auth_flow_duration_seconds",
		metric.WithDescription("Authorization flow duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 180),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flow_duration_seconds histogram: %w", err)
	}

	m.callbackMessagesTotal, err = meter.Int64Counter(
		"callback_messages_total",
		metric.WithDescription("Total number of messages seen by authorization flows"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback_messages_total counter: %w", err)
	}

	m.tokenInvalidationsTotal, err = meter.Int64Counter(
		"token_invalidations_total",
		metric.WithDescription("Total number of credentials dropped from the token store"),
		metric.WithUnit("{credential}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_invalidations_total counter: %w", err)
	}

	m.connectedSessions, err = meter.Int64UpDownCounter(
		"connected_sessions",
		metric.WithDescription("Number of session coordinators in the connected state"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connected_sessions gauge: %w", err)
	}

	m.apiCallsTotal, err = meter.Int64Counter(
		"api_calls_total",
		metric.WithDescription("Total number of authenticated provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api_calls_total counter: %w", err)
	}

	m.apiCallDuration, err = meter.Float64Histogram(
		"api_call_duration_seconds",
		metric.WithDescription("Provider API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api_call_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records a callback server request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAuthFlow records a finished authorization flow.
// result is AuthResultSuccess or the error kind of the failure.
func (m *Metrics) RecordAuthFlow(ctx context.Context, provider, result string, duration time.Duration) {
	if m == nil || m.authFlowsTotal == nil || m.authFlowDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	)

	m.authFlowsTotal.Add(ctx, 1, attrs)
	m.authFlowDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCallbackMessage records how a flow treated one bus message.
func (m *Metrics) RecordCallbackMessage(ctx context.Context, provider, result string) {
	if m == nil || m.callbackMessagesTotal == nil {
		return
	}

	m.callbackMessagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	))
}

// RecordTokenInvalidation records a credential being dropped.
func (m *Metrics) RecordTokenInvalidation(ctx context.Context, provider, reason string) {
	if m == nil || m.tokenInvalidationsTotal == nil {
		return
	}

	m.tokenInvalidationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrReason, reason),
	))
}

// SessionConnected adjusts the connected session count by one in either
// direction.
func (m *Metrics) SessionConnected(ctx context.Context, session string, connected bool) {
	if m == nil || m.connectedSessions == nil {
		return
	}

	delta := int64(1)
	if !connected {
		delta = -1
	}
	m.connectedSessions.Add(ctx, delta, metric.WithAttributes(attribute.String(attrSession, session)))
}

// RecordAPICall records an authenticated provider API call.
//
// Parameters:
//   - provider: identity provider ("google", "microsoft")
//   - service: API service (calendar, gmail, onedrive, profile)
//   - status: HTTP status code as text, or "error" when no response arrived
//   - duration: Time taken for the call
func (m *Metrics) RecordAPICall(ctx context.Context, provider, service, status string, duration time.Duration) {
	if m == nil || m.apiCallsTotal == nil || m.apiCallDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrService, service),
		attribute.String(attrStatus, status),
	)

	m.apiCallsTotal.Add(ctx, 1, attrs)
	m.apiCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an MCP tool invocation. session is only used
// as a label when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, session string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && session != "" {
		attrs = append(attrs, attribute.String(attrSession, session))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
