package connection_tools

import (
	"context"
	"encoding/json"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tools/tooltest"
)

func TestRegisterConnectionTools(t *testing.T) {
	f := tooltest.New(t)
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterConnectionTools(s, f.Context))
	assert.Equal(t, []string{"connection_connect", "connection_disconnect", "connection_status"}, tooltest.ToolNames(t, s))
}

func TestHandleStatus(t *testing.T) {
	f := tooltest.New(t)
	f.Connect(t, session.Calendar)

	result, err := handleStatus(f.Context)
	require.NoError(t, err)

	var status []session.Status
	require.NoError(t, json.Unmarshal([]byte(tooltest.Text(t, result)), &status))
	require.Len(t, status, 3)

	byName := map[string]session.Status{}
	for _, st := range status {
		byName[st.Name] = st
	}
	assert.Equal(t, session.StateConnected, byName[session.Calendar].State)
	assert.Equal(t, session.StateDisconnected, byName[session.OneDrive].State)
	assert.Equal(t, provider.Microsoft, byName[session.OneDrive].Provider)
}

func TestHandleConnect(t *testing.T) {
	f := tooltest.New(t)

	result, err := handleConnect(context.Background(), tooltest.Request("connection_connect", map[string]any{"session": session.Gmail}), f.Context)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, tooltest.Text(t, result), "gmail is connected to google")

	coord, err := f.Context.Sessions().Get(session.Gmail)
	require.NoError(t, err)
	assert.True(t, coord.IsConnected())
	assert.NotNil(t, f.Store.Get(provider.Google))
}

func TestHandleConnect_Errors(t *testing.T) {
	f := tooltest.New(t)

	result, err := handleConnect(context.Background(), tooltest.Request("connection_connect", nil), f.Context)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handleConnect(context.Background(), tooltest.Request("connection_connect", map[string]any{"session": "photos"}), f.Context)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	f.Authorizer.Err = oauth.UserCancelled("google", "", nil)
	_, err = handleConnect(context.Background(), tooltest.Request("connection_connect", map[string]any{"session": session.Calendar}), f.Context)
	assert.True(t, oauth.IsKind(err, oauth.KindUserCancelled))
}

func TestHandleDisconnect(t *testing.T) {
	f := tooltest.New(t)
	f.Connect(t, session.Calendar)
	f.Connect(t, session.Gmail)

	result, err := handleDisconnect(context.Background(), tooltest.Request("connection_disconnect", map[string]any{"session": session.Calendar}), f.Context)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Nil(t, f.Store.Get(provider.Google))

	gmail, err := f.Context.Sessions().Get(session.Gmail)
	require.NoError(t, err)
	assert.Equal(t, session.StateDisconnected, gmail.State())
}
