// Package onedrive_tools provides MCP tools for the OneDrive of the onedrive
// session.
package onedrive_tools
