package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/homedash/internal/oauth"
)

var errToolResult = errors.New("tool returned an error result")

// ErrorResult renders err as a tool error. Authorization failures carry the
// user-facing hint and, where the user has to act, an instruction for the
// assistant.
func ErrorResult(err error) *mcp.CallToolResult {
	kind := oauth.KindOf(err)
	if kind == "" {
		return mcp.NewToolResultError(err.Error())
	}

	msg := oauth.UserMessage(err)
	switch kind {
	case oauth.KindExpiredOrRevoked, oauth.KindScopeInsufficient:
		msg += " Ask the user to reconnect with the connection_connect tool before retrying."
	case oauth.KindPopupBlocked:
		msg += " Ask the user to allow the browser to open and retry connection_connect."
	case oauth.KindBusy:
		msg += " Wait for the user to finish the open sign-in window."
	case oauth.KindNetworkFailure:
		return mcp.NewToolResultError(fmt.Sprintf("%s (%s: %v)", msg, kind, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s (%s)", msg, kind))
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
