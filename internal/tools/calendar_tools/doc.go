// Package calendar_tools provides MCP tools for the primary Google Calendar
// of the calendar session.
//
// Listing is always available. Creating, updating and deleting events are
// registered only when write operations are enabled.
package calendar_tools
