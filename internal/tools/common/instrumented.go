package common

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/server"
)

// ToolFunc is a tool body. A returned error is turned into an error result
// by InstrumentedToolHandler, so handlers return domain errors unchanged.
type ToolFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and the
// invocation log. sessionName labels the invocation and may be empty for
// tools that do not act through a single session.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("calendar_list_events", session.Calendar, sc, handler))
func InstrumentedToolHandler(
	toolName string,
	sessionName string,
	sc *server.ServerContext,
	handler ToolFunc,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var attrs []attribute.KeyValue
		if sessionName != "" {
			attrs = append(attrs, attribute.String(instrumentation.SpanAttrSession, sessionName))
		}
		ctx, span := instrumentation.StartToolSpan(ctx, toolName, attrs...)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).WithSpanContext(ctx)
		if sessionName != "" {
			invocation.WithSession(sessionName, providerOf(sc, sessionName))
		}

		result, err := handler(ctx, request)

		if err != nil {
			invocation.Complete(err, string(oauth.KindOf(err)))
			instrumentation.SetSpanError(span, err)
			result = ErrorResult(err)
		} else if result != nil && result.IsError {
			invocation.Complete(errToolResult, "")
			span.SetAttributes(attribute.Bool("tool.error_result", true))
		} else {
			invocation.Complete(nil, "")
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), sessionName, invocation.Duration)
		sc.InvocationLogger().Log(invocation)

		return result, nil
	}
}

func providerOf(sc *server.ServerContext, sessionName string) string {
	coord, err := sc.Sessions().Get(sessionName)
	if err != nil {
		return ""
	}
	return string(coord.Provider())
}
