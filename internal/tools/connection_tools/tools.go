package connection_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/tools/common"
)

// RegisterConnectionTools registers the connection tools with the MCP server.
func RegisterConnectionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	names := strings.Join(sc.Sessions().Names(), ", ")

	statusTool := mcp.NewTool("connection_status",
		mcp.WithDescription("Show the connection state, granted scopes and expiry of every dashboard session"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("connection_status", "", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleStatus(sc)
	}))

	connectTool := mcp.NewTool("connection_connect",
		mcp.WithDescription("Connect a session by opening the provider sign-in page in the user's browser. Blocks until the user finishes signing in."),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Session to connect (one of: %s)", names)),
		),
	)
	s.AddTool(connectTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := common.StringArg(request, "session", "")
		return common.InstrumentedToolHandler("connection_connect", name, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleConnect(ctx, request, sc)
		})(ctx, request)
	})

	disconnectTool := mcp.NewTool("connection_disconnect",
		mcp.WithDescription("Disconnect a session and forget the stored credential of its provider. Other sessions on the same provider are disconnected too."),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Session to disconnect (one of: %s)", names)),
		),
	)
	s.AddTool(disconnectTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := common.StringArg(request, "session", "")
		return common.InstrumentedToolHandler("connection_disconnect", name, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDisconnect(ctx, request, sc)
		})(ctx, request)
	})

	return nil
}

func handleStatus(sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return common.JSONResult(sc.Sessions().Status())
}

func handleConnect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, errResult := common.RequiredString(request, "session")
	if errResult != nil {
		return errResult, nil
	}

	coord, err := sc.Sessions().Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := coord.Connect(ctx); err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session %s is connected to %s.", name, coord.Provider())), nil
}

func handleDisconnect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, errResult := common.RequiredString(request, "session")
	if errResult != nil {
		return errResult, nil
	}

	coord, err := sc.Sessions().Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Sessions().Disconnect(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to disconnect %s: %w", name, err)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session %s is disconnected from %s.", name, coord.Provider())), nil
}
