// Package connection_tools provides MCP tools that show and change the
// provider connections behind the dashboard sessions.
//
// connection_connect opens the provider's consent page in the user's
// browser and blocks until the user finishes or the flow times out.
package connection_tools
