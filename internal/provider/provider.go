package provider

import (
	"fmt"
	"strings"
)

// ID identifies an identity provider. It is the join key between the scope
// registry, the token store and the session coordinators.
type ID string

const (
	Google    ID = "google"
	Microsoft ID = "microsoft"
)

// All lists every supported provider.
var All = []ID{Google, Microsoft}

// Parse converts a user-supplied provider name.
func Parse(s string) (ID, error) {
	switch ID(strings.ToLower(strings.TrimSpace(s))) {
	case Google:
		return Google, nil
	case Microsoft:
		return Microsoft, nil
	}
	return "", fmt.Errorf("unknown provider %q (supported: google, microsoft)", s)
}

// State builds the state parameter of a flow for id. The provider comes
// first so the landing page can label the message it posts.
func State(id ID, nonce string) string {
	return id.String() + "." + nonce
}

// FromState returns the provider a state parameter was built for.
func FromState(state string) (ID, bool) {
	prefix, _, ok := strings.Cut(state, ".")
	if !ok {
		return "", false
	}
	id, err := Parse(prefix)
	return id, err == nil
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Feature is a group of provider functionality that shares a scope set.
type Feature string

const (
	FeatureProfile  Feature = "profile"
	FeatureCalendar Feature = "calendar"
	FeatureGmail    Feature = "gmail"
	FeatureOneDrive Feature = "onedrive"
)
