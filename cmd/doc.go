// Package cmd implements the command-line interface for homedash.
//
// This package provides the following commands:
//   - serve: Start the MCP server and the sign-in callback server
//   - connect: Sign in to the provider of a session
//   - disconnect: Forget the credential of a session's provider
//   - status: Show the connection state of every session
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
