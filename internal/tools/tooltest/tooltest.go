// Package tooltest holds fixtures for the MCP tool package tests.
package tooltest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tokenstore"
)

// Authorizer grants every request with Token, or fails with Err.
type Authorizer struct {
	Token string
	Err   error

	mu       sync.Mutex
	requests []popup.Request
}

// Authorize records req and returns a grant for all requested scopes.
func (a *Authorizer) Authorize(_ context.Context, req popup.Request) (*popup.Grant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.Err != nil {
		return nil, a.Err
	}
	token := a.Token
	if token == "" {
		token = "test-token"
	}
	return &popup.Grant{AccessToken: token, GrantedScopes: req.Scopes.Clone()}, nil
}

// Cancel is a no-op.
func (a *Authorizer) Cancel(provider.ID) bool { return false }

// Requests returns the recorded authorization requests.
func (a *Authorizer) Requests() []popup.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]popup.Request(nil), a.requests...)
}

// Fixture is a server context over an in-memory token store.
type Fixture struct {
	Context    *server.ServerContext
	Store      *tokenstore.Store
	Authorizer *Authorizer
}

// New builds a Fixture with the default sessions.
func New(t *testing.T) *Fixture {
	t.Helper()
	auth := &Authorizer{}
	store := tokenstore.New(tokenstore.WithBackend(tokenstore.NewMemoryBackend()))
	mgr, err := session.NewManager(session.DefaultSessions(), store, auth, request.NewWrapper(store))
	require.NoError(t, err)
	sc, err := server.NewServerContext(context.Background(), mgr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return &Fixture{Context: sc, Store: store, Authorizer: auth}
}

// Connect connects the named session through the fixture authorizer.
func (f *Fixture) Connect(t *testing.T, name string) {
	t.Helper()
	coord, err := f.Context.Sessions().Get(name)
	require.NoError(t, err)
	require.NoError(t, coord.Connect(context.Background()))
}

// Request builds a tool call request with args.
func Request(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// Text returns the text of the first content item of result.
func Text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		require.Fail(t, "first content item is not text", "%T", result.Content[0])
	}
	return text.Text
}

// ErrNoBrowser is a generic authorization failure for tests.
var ErrNoBrowser = errors.New("no browser in tests")

// ToolNames lists the tools registered on s, sorted.
func ToolNames(t *testing.T, s *mcpserver.MCPServer) []string {
	t.Helper()
	names := make([]string, 0)
	for name := range s.ListTools() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
