package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/server"
)

// Resource URIs.
const (
	SessionsURI  = "homedash://sessions"
	ProvidersURI = "homedash://providers"
)

// ProviderInfo lists the scopes each feature of a provider needs.
type ProviderInfo struct {
	Provider provider.ID                         `json:"provider"`
	Features map[provider.Feature]oauth.ScopeSet `json:"features"`
}

// RegisterResources registers the connection resources with the MCP server.
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sessionsResource := mcp.NewResource(
		SessionsURI,
		"Dashboard Sessions",
		mcp.WithResourceDescription("Connection state, granted scopes and expiry of every dashboard session"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(sessionsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonContents(request.Params.URI, sc.Sessions().Status())
	})

	providersResource := mcp.NewResource(
		ProvidersURI,
		"Providers",
		mcp.WithResourceDescription("Identity providers and the scopes each dashboard feature requests"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(providersResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonContents(request.Params.URI, providerInfos())
	})

	return nil
}

func providerInfos() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(provider.All))
	for _, id := range provider.All {
		info := ProviderInfo{Provider: id, Features: map[provider.Feature]oauth.ScopeSet{}}
		for _, f := range provider.Features(id) {
			info.Features[f] = provider.ScopesFor(id, f)
		}
		infos = append(infos, info)
	}
	return infos
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
