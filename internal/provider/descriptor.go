package provider

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/teemow/homedash/internal/oauth"
)

// DefaultMicrosoftTenant accepts both work/school and personal accounts.
const DefaultMicrosoftTenant = "common"

// Descriptor describes how to run an implicit-grant authorization against one
// provider.
type Descriptor struct {
	Provider ID
	Endpoint oauth2.Endpoint
	// SuccessType and ErrorType are the callback message types the landing
	// page posts for this provider.
	SuccessType string
	ErrorType   string
	// extraParams are added to every authorization URL.
	extraParams map[string]string
	// scopePrefix is stripped from scopes echoed back by the provider.
	scopePrefix string
}

// AuthRequest holds the per-flow inputs of an authorization URL.
type AuthRequest struct {
	ClientID    string
	RedirectURI string
	Scopes      oauth.ScopeSet
	State       string
	// ForceConsent asks the provider to show the consent screen again,
	// used when re-authorizing.
	ForceConsent bool
}

// GoogleDescriptor returns the Google descriptor.
func GoogleDescriptor() Descriptor {
	return Descriptor{
		Provider:    Google,
		Endpoint:    google.Endpoint,
		SuccessType: "GOOGLE_AUTH_SUCCESS",
		ErrorType:   "GOOGLE_AUTH_ERROR",
		extraParams: map[string]string{
			// Incremental authorization: returned scopes include earlier grants.
			"include_granted_scopes": "true",
		},
	}
}

// MicrosoftDescriptor returns the Microsoft identity platform descriptor for
// tenant. An empty tenant uses DefaultMicrosoftTenant.
func MicrosoftDescriptor(tenant string) Descriptor {
	if tenant == "" {
		tenant = DefaultMicrosoftTenant
	}
	return Descriptor{
		Provider:    Microsoft,
		Endpoint:    microsoft.AzureADEndpoint(tenant),
		SuccessType: "MICROSOFT_AUTH_SUCCESS",
		ErrorType:   "MICROSOFT_AUTH_ERROR",
		extraParams: map[string]string{
			"response_mode": "fragment",
		},
		scopePrefix: "https://graph.microsoft.com/",
	}
}

// AuthURL builds the authorization URL for a client-only (token) grant.
// No client secret is involved.
func (d Descriptor) AuthURL(req AuthRequest) string {
	conf := &oauth2.Config{
		ClientID:    req.ClientID,
		Endpoint:    d.Endpoint,
		RedirectURL: req.RedirectURI,
		Scopes:      req.Scopes,
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", "token"),
	}
	for k, v := range d.extraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if req.ForceConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}

	return conf.AuthCodeURL(req.State, opts...)
}

// GrantedScopes parses the scope parameter of a successful response.
// Providers may omit it when everything requested was granted, in which case
// requested is returned.
func (d Descriptor) GrantedScopes(raw string, requested oauth.ScopeSet) oauth.ScopeSet {
	parsed := oauth.ParseScopeSet(raw)
	if len(parsed) == 0 {
		return requested.Clone()
	}
	if d.scopePrefix == "" {
		return parsed
	}
	out := make(oauth.ScopeSet, 0, len(parsed))
	for _, scope := range parsed {
		out = append(out, strings.TrimPrefix(scope, d.scopePrefix))
	}
	return oauth.ScopeSet(nil).Union(out)
}

// Registry resolves descriptors by provider.
type Registry struct {
	descriptors map[ID]Descriptor
}

// NewRegistry creates a registry with the Google descriptor and a Microsoft
// descriptor for the given tenant.
func NewRegistry(microsoftTenant string) *Registry {
	return &Registry{
		descriptors: map[ID]Descriptor{
			Google:    GoogleDescriptor(),
			Microsoft: MicrosoftDescriptor(microsoftTenant),
		},
	}
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id ID) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("no descriptor registered for provider %q", id)
	}
	return d, nil
}
