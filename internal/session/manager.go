package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/tokenstore"
)

// Session names.
const (
	Calendar = "calendar"
	Gmail    = "gmail"
	OneDrive = "onedrive"
)

// DefaultSessions returns the sessions of the dashboard: calendar and mail on
// Google, file storage on Microsoft.
func DefaultSessions() []Config {
	return []Config{
		{Name: Calendar, Provider: provider.Google, Features: []provider.Feature{provider.FeatureProfile, provider.FeatureCalendar}},
		{Name: Gmail, Provider: provider.Google, Features: []provider.Feature{provider.FeatureProfile, provider.FeatureGmail}},
		{Name: OneDrive, Provider: provider.Microsoft, Features: []provider.Feature{provider.FeatureProfile, provider.FeatureOneDrive}},
	}
}

// Status is a snapshot of one session for display.
type Status struct {
	Name           string         `json:"name"`
	Provider       provider.ID    `json:"provider"`
	State          State          `json:"state"`
	RequiredScopes oauth.ScopeSet `json:"required_scopes"`
	GrantedScopes  oauth.ScopeSet `json:"granted_scopes,omitempty"`
	Missing        oauth.ScopeSet `json:"missing_scopes,omitempty"`
	ObtainedAt     time.Time      `json:"obtained_at,omitzero"`
	ExpiresAt      time.Time      `json:"expires_at,omitzero"`
}

// Manager owns the named coordinators of the application.
type Manager struct {
	store        *tokenstore.Store
	names        []string
	coordinators map[string]*Coordinator
}

// NewManager creates one coordinator per config.
func NewManager(configs []Config, store *tokenstore.Store, auth Authorizer, caller Caller, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:        store,
		coordinators: make(map[string]*Coordinator, len(configs)),
	}
	for _, cfg := range configs {
		if _, dup := m.coordinators[cfg.Name]; dup {
			return nil, fmt.Errorf("session %q defined twice", cfg.Name)
		}
		c, err := New(cfg, store, auth, caller, opts...)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", cfg.Name, err)
		}
		m.coordinators[cfg.Name] = c
		m.names = append(m.names, cfg.Name)
	}
	sort.Strings(m.names)
	return m, nil
}

// Get returns the coordinator named name.
func (m *Manager) Get(name string) (*Coordinator, error) {
	c, ok := m.coordinators[name]
	if !ok {
		return nil, fmt.Errorf("unknown session %q (available: %v)", name, m.names)
	}
	return c, nil
}

// Names lists the session names in sorted order.
func (m *Manager) Names() []string {
	return append([]string(nil), m.names...)
}

// ForProvider returns the coordinators using id.
func (m *Manager) ForProvider(id provider.ID) []*Coordinator {
	var out []*Coordinator
	for _, name := range m.names {
		if c := m.coordinators[name]; c.Provider() == id {
			out = append(out, c)
		}
	}
	return out
}

// Disconnect disconnects the named session. Sessions sharing its provider
// lose their credential too and are moved to Disconnected as well.
func (m *Manager) Disconnect(ctx context.Context, name string) error {
	c, err := m.Get(name)
	if err != nil {
		return err
	}
	err = c.Disconnect(ctx)
	for _, sibling := range m.ForProvider(c.Provider()) {
		if sibling != c {
			sibling.markDisconnected()
		}
	}
	return err
}

// DisconnectAll clears every provider.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	var errs []error
	for _, id := range provider.All {
		cs := m.ForProvider(id)
		if len(cs) == 0 {
			continue
		}
		if err := m.Disconnect(ctx, cs[0].Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of every session.
func (m *Manager) Status() []Status {
	out := make([]Status, 0, len(m.names))
	for _, name := range m.names {
		c := m.coordinators[name]
		required := c.RequiredScopes()
		st := Status{
			Name:           name,
			Provider:       c.Provider(),
			State:          c.State(),
			RequiredScopes: required,
		}
		if cred := m.store.Get(c.Provider()); cred != nil {
			st.GrantedScopes = cred.GrantedScopes
			st.Missing = cred.GrantedScopes.Missing(required)
			st.ObtainedAt = cred.ObtainedAt
			st.ExpiresAt = cred.ExpiresAt
		}
		out = append(out, st)
	}
	return out
}
