package oauth

import (
	"time"
)

// Credential is the access token held for one provider.
// A Credential is never modified after creation; the token store replaces it
// wholesale on a new grant and deletes it on invalidation.
type Credential struct {
	Provider      string    `json:"provider"`
	AccessToken   string    `json:"access_token"`
	GrantedScopes ScopeSet  `json:"granted_scopes"`
	ObtainedAt    time.Time `json:"obtained_at"`
	// ExpiresAt is zero when the provider gave no expiry hint.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// NewCredential builds a credential from a grant. A non-positive expiresIn
// leaves the expiry unknown.
func NewCredential(provider, accessToken string, granted ScopeSet, obtainedAt time.Time, expiresIn time.Duration) *Credential {
	c := &Credential{
		Provider:      provider,
		AccessToken:   accessToken,
		GrantedScopes: granted.Clone(),
		ObtainedAt:    obtainedAt,
	}
	if expiresIn > 0 {
		c.ExpiresAt = obtainedAt.Add(expiresIn)
	}
	return c
}

// Expired reports whether the provider's expiry hint has passed.
// Credentials without a hint never expire here; a 401 from the provider is
// the authoritative signal.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Covers reports whether the credential was granted all required scopes.
func (c *Credential) Covers(required ScopeSet) bool {
	if c == nil {
		return false
	}
	return c.GrantedScopes.Covers(required)
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.GrantedScopes = c.GrantedScopes.Clone()
	return &out
}
