package provider

import (
	"fmt"

	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/teemow/homedash/internal/oauth"
)

// Microsoft Graph delegated permissions.
const (
	GraphUserRead          = "User.Read"
	GraphFilesReadWrite    = "Files.ReadWrite"
	GraphFilesReadWriteAll = "Files.ReadWrite.All"
	GraphSitesReadWriteAll = "Sites.ReadWrite.All"
)

type registryKey struct {
	provider ID
	feature  Feature
}

// registry is the closed set of (provider, feature) pairs.
var registry = map[registryKey]oauth.ScopeSet{
	{Google, FeatureProfile}: {
		oauth2api.UserinfoProfileScope,
		oauth2api.UserinfoEmailScope,
	},
	{Google, FeatureCalendar}: {
		calendar.CalendarScope,
	},
	{Google, FeatureGmail}: {
		gmail.GmailModifyScope,
		gmail.GmailComposeScope,
		gmail.GmailSendScope,
	},
	{Microsoft, FeatureProfile}: {
		GraphUserRead,
	},
	{Microsoft, FeatureOneDrive}: {
		GraphFilesReadWrite,
		GraphFilesReadWriteAll,
		GraphSitesReadWriteAll,
		GraphUserRead,
	},
}

// ScopesFor returns the scopes a provider feature requires.
// The set of pairs is closed; asking for an unknown pair is a programming
// error and panics.
func ScopesFor(id ID, feature Feature) oauth.ScopeSet {
	scopes, ok := registry[registryKey{id, feature}]
	if !ok {
		panic(fmt.Sprintf("provider: no scopes registered for %s/%s", id, feature))
	}
	return scopes.Clone()
}

// ScopesForFeatures returns the ordered union of the scopes of features.
func ScopesForFeatures(id ID, features ...Feature) oauth.ScopeSet {
	var out oauth.ScopeSet
	for _, f := range features {
		out = out.Union(ScopesFor(id, f))
	}
	return out
}

// Supports reports whether the provider serves feature.
func Supports(id ID, feature Feature) bool {
	_, ok := registry[registryKey{id, feature}]
	return ok
}

// Features lists the features a provider serves, profile first.
func Features(id ID) []Feature {
	var out []Feature
	for _, f := range []Feature{FeatureProfile, FeatureCalendar, FeatureGmail, FeatureOneDrive} {
		if Supports(id, f) {
			out = append(out, f)
		}
	}
	return out
}
