// Package common provides helpers shared by the MCP tool packages: the
// instrumented handler wrapper, argument accessors and the mapping from
// authorization errors to tool results.
package common
