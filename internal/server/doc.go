// Package server hosts the loopback HTTP side of homedash and the shared
// context the MCP tools run against.
//
// # Key Components
//
// CallbackServer is the redirect target registered with the providers. Its
// landing page reads the authorization response from the URL fragment and
// posts it to /oauth/message, which hands it to the popup bus together with
// the Origin header of the request. The popup channel decides whether a
// message is trusted; the server only relays.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed.
//
// MetricsServer optionally serves Prometheus metrics on a dedicated port.
//
// ServerContext owns the session manager and lazily builds the calendar,
// gmail and onedrive clients on top of it.
package server
