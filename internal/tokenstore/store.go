package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
)

// Status classifies the stored credential against a required scope set.
type Status string

const (
	StatusValid        Status = "valid"
	StatusMissing      Status = "missing"
	StatusExpired      Status = "expired"
	StatusInsufficient Status = "insufficient"
)

// Store maps each provider to at most one credential.
//
// Reads never block on backend I/O. Writes update memory and then persist;
// persistence is serialized so the durable slot always ends in the state of
// the last write.
type Store struct {
	mu    sync.RWMutex
	creds map[provider.ID]*oauth.Credential

	persistMu sync.Mutex
	backend   Backend
	sealer    *oauth.Sealer

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBackend sets the durable backend. Without one the store is memory only.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithSealer encrypts blobs before they reach the backend.
func WithSealer(sealer *oauth.Sealer) Option {
	return func(s *Store) { s.sealer = sealer }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store. Call Load to hydrate it from the backend.
func New(opts ...Option) *Store {
	s := &Store{
		creds:  make(map[provider.ID]*oauth.Credential),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "tokenstore")
	return s
}

// Get returns a copy of the credential for id, or nil.
func (s *Store) Get(id provider.ID) *oauth.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds[id].Clone()
}

// Set replaces the credential for id wholesale.
// The in-memory value is updated even when persisting fails.
func (s *Store) Set(ctx context.Context, id provider.ID, cred *oauth.Credential) error {
	if cred == nil {
		return fmt.Errorf("tokenstore: nil credential for %s", id)
	}
	c := cred.Clone()
	c.Provider = id.String()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.creds[id] = c
	s.mu.Unlock()

	s.logger.Debug("credential stored",
		logging.Provider(id.String()),
		logging.Token(c.AccessToken),
		logging.Scopes(c.GrantedScopes.String()))

	return s.persist(ctx, id, c)
}

// Clear removes the credential for id. Clearing an absent credential is a
// no-op apart from the backend delete.
func (s *Store) Clear(ctx context.Context, id provider.ID) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	delete(s.creds, id)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Delete(ctx, id.String()); err != nil {
		s.logger.Warn("failed to delete persisted credential", logging.Provider(id.String()), logging.Err(err))
		return err
	}
	return nil
}

// Invalidate clears the credential for id only if it still holds
// accessToken, so a rejection of an old token cannot drop a newer grant.
// It reports whether a credential was removed.
func (s *Store) Invalidate(ctx context.Context, id provider.ID, accessToken string) (bool, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	cur, ok := s.creds[id]
	if !ok || cur.AccessToken != accessToken {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.creds, id)
	s.mu.Unlock()

	if s.backend == nil {
		return true, nil
	}
	if err := s.backend.Delete(ctx, id.String()); err != nil {
		s.logger.Warn("failed to delete persisted credential", logging.Provider(id.String()), logging.Err(err))
		return true, err
	}
	return true, nil
}

// IsValid reports whether a credential exists for id, has not passed its
// expiry hint, and was granted every scope in required.
func (s *Store) IsValid(id provider.ID, required oauth.ScopeSet) bool {
	_, status := s.Status(id, required)
	return status == StatusValid
}

// Status returns a copy of the credential for id together with its
// classification against required.
func (s *Store) Status(id provider.ID, required oauth.ScopeSet) (*oauth.Credential, Status) {
	cred := s.Get(id)
	switch {
	case cred == nil:
		return nil, StatusMissing
	case cred.Expired(s.now()):
		return cred, StatusExpired
	case !cred.Covers(required):
		return cred, StatusInsufficient
	}
	return cred, StatusValid
}

// Providers lists the providers that currently hold a credential.
func (s *Store) Providers() []provider.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []provider.ID
	for _, id := range provider.All {
		if _, ok := s.creds[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Load hydrates the store from the backend for every known provider.
// Slots that cannot be opened or decoded are skipped and logged; only
// backend read failures are returned.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	var errs []error
	for _, id := range provider.All {
		data, err := s.backend.Load(ctx, id.String())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", id, err))
			continue
		}

		cred, err := s.decode(data)
		if err != nil {
			s.logger.Warn("skipping unreadable persisted credential", logging.Provider(id.String()), logging.Err(err))
			continue
		}
		cred.Provider = id.String()

		s.mu.Lock()
		s.creds[id] = cred
		s.mu.Unlock()

		s.logger.Debug("credential loaded", logging.Provider(id.String()), logging.Token(cred.AccessToken))
	}
	return errors.Join(errs...)
}

func (s *Store) persist(ctx context.Context, id provider.ID, cred *oauth.Credential) error {
	if s.backend == nil {
		return nil
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}
	if err := s.backend.Save(ctx, id.String(), sealed); err != nil {
		s.logger.Warn("failed to persist credential", logging.Provider(id.String()), logging.Err(err))
		return err
	}
	return nil
}

func (s *Store) decode(data []byte) (*oauth.Credential, error) {
	plain, err := s.sealer.Open(data)
	if err != nil {
		return nil, err
	}
	var cred oauth.Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, errors.New("credential has no access token")
	}
	return &cred, nil
}
