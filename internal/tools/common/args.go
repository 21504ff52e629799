package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// StringArg returns the string argument name, or def when it is missing or
// empty.
func StringArg(request mcp.CallToolRequest, name, def string) string {
	if v, ok := request.GetArguments()[name].(string); ok && v != "" {
		return v
	}
	return def
}

// RequiredString returns the string argument name or a tool error result
// when it is missing.
func RequiredString(request mcp.CallToolRequest, name string) (string, *mcp.CallToolResult) {
	v, ok := request.GetArguments()[name].(string)
	if !ok || v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

// IntArg returns the numeric argument name. JSON numbers arrive as float64;
// numeric strings are accepted too.
func IntArg(request mcp.CallToolRequest, name string, def int64) (int64, error) {
	switch v := request.GetArguments()[name].(type) {
	case nil:
		return def, nil
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		if v == "" {
			return def, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}

// BoolArg returns the boolean argument name, or def when it is missing.
func BoolArg(request mcp.CallToolRequest, name string, def bool) bool {
	switch v := request.GetArguments()[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// TimeArg parses an RFC3339 argument. A missing argument yields def.
func TimeArg(request mcp.CallToolRequest, name string, def time.Time) (time.Time, error) {
	v := StringArg(request, name, "")
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format (want RFC3339): %w", name, err)
	}
	return t, nil
}
