// Package instrumentation provides OpenTelemetry metrics and tracing for
// homedash.
//
// # Metrics
//
// Authorization:
//   - auth_flows_total: Counter of authorization flows by provider and result
//   - auth_flow_duration_seconds: Histogram of authorization flow durations
//   - callback_messages_total: Counter of messages posted by the landing page, by result
//   - token_invalidations_total: Counter of credentials dropped, by provider and reason
//   - connected_sessions: Number of session coordinators in the connected state
//
// Provider APIs:
//   - api_calls_total: Counter of authenticated calls by provider, service and status
//   - api_call_duration_seconds: Histogram of authenticated call durations
//
// Local surfaces:
//   - http_requests_total / http_request_duration_seconds for the callback server
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds for MCP tools
//
// # Tracing
//
// Spans are created for authorization flows (auth.<provider>), provider API
// calls (api.<provider>.<service>.<operation>) and MCP tool invocations
// (tool.<name>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: homedash)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordAuthFlow(ctx, "google", instrumentation.AuthResultSuccess, time.Since(start))
package instrumentation
