package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for homedash.
const TracerName = "github.com/teemow/homedash"

// Span attribute keys.
const (
	// SpanAttrProvider is the identity provider attribute.
	SpanAttrProvider = "auth.provider"

	// SpanAttrScopes is the space-delimited requested scope set.
	SpanAttrScopes = "auth.scopes"

	// SpanAttrForceConsent marks re-authorization flows.
	SpanAttrForceConsent = "auth.force_consent"

	// SpanAttrService is the provider API service attribute.
	SpanAttrService = "api.service"

	// SpanAttrOperation is the API operation attribute.
	SpanAttrOperation = "api.operation"

	// SpanAttrStatusCode is the HTTP status of the last response.
	SpanAttrStatusCode = "http.status_code"

	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"

	// SpanAttrSession is the session coordinator name.
	SpanAttrSession = "homedash.session"
)

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartAuthSpan starts a span covering one authorization flow.
func StartAuthSpan(ctx context.Context, provider, scopes string, forceConsent bool) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "auth."+provider,
		trace.WithAttributes(
			attribute.String(SpanAttrProvider, provider),
			attribute.String(SpanAttrScopes, scopes),
			attribute.Bool(SpanAttrForceConsent, forceConsent),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartAPISpan starts a client span for one authenticated provider call.
func StartAPISpan(ctx context.Context, provider, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+3)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrProvider, provider),
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	name := "api." + provider + "." + service
	if operation != "" {
		name += "." + operation
	}

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context, or "".
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// StatusCodeAttr returns the HTTP status span attribute.
func StatusCodeAttr(code int) attribute.KeyValue {
	return attribute.Int(SpanAttrStatusCode, code)
}
