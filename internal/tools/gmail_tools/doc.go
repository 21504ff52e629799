// Package gmail_tools provides MCP tools for the inbox of the gmail session.
//
// gmail_list_messages is always available. Sending mail and marking messages
// as read are registered only when write operations are enabled.
package gmail_tools
