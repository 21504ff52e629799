// Package resources provides read-only MCP resources describing the
// dashboard's provider connections.
package resources
