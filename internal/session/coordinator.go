package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
	"github.com/teemow/homedash/internal/tokenstore"
)

// Authorizer runs interactive authorization flows.
type Authorizer interface {
	Authorize(ctx context.Context, req popup.Request) (*popup.Grant, error)
	Cancel(id provider.ID) bool
}

// Caller performs authenticated provider calls.
type Caller interface {
	Call(ctx context.Context, id provider.ID, required oauth.ScopeSet, fn request.RequestFunc) error
}

// Config describes one session.
type Config struct {
	Name     string
	Provider provider.ID
	Features []provider.Feature
}

// Coordinator tracks the authorization state of one session.
type Coordinator struct {
	name     string
	provider provider.ID

	store  *tokenstore.Store
	auth   Authorizer
	caller Caller

	logger  *slog.Logger
	audit   *oauth.AuditLogger
	metrics *instrumentation.Metrics
	now     func() time.Time

	group singleflight.Group

	// grantMu orders credential writes of a flow against Disconnect.
	grantMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	features  []provider.Feature
	required  oauth.ScopeSet
	observers []func(from, to State)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithAuditLogger sets the security audit logger.
func WithAuditLogger(audit *oauth.AuditLogger) Option {
	return func(c *Coordinator) { c.audit = audit }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now for credential timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator. Its initial state reflects what the store
// already holds.
func New(cfg Config, store *tokenstore.Store, auth Authorizer, caller Caller, opts ...Option) (*Coordinator, error) {
	if cfg.Name == "" {
		return nil, errors.New("session: name is required")
	}
	if store == nil || auth == nil || caller == nil {
		return nil, errors.New("session: store, authorizer and caller are required")
	}
	for _, f := range cfg.Features {
		if !provider.Supports(cfg.Provider, f) {
			return nil, errors.New("session: provider " + cfg.Provider.String() + " does not serve feature " + string(f))
		}
	}

	c := &Coordinator{
		name:     cfg.Name,
		provider: cfg.Provider,
		store:    store,
		auth:     auth,
		caller:   caller,
		logger:   slog.Default(),
		now:      time.Now,
		features: append([]provider.Feature(nil), cfg.Features...),
		required: provider.ScopesForFeatures(cfg.Provider, cfg.Features...),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithSession(c.logger, c.name, c.provider.String())

	if store.IsValid(c.provider, c.required) {
		c.state = StateConnected
		c.metrics.SessionConnected(context.Background(), c.name, true)
	}
	return c, nil
}

// Name returns the session name.
func (c *Coordinator) Name() string {
	return c.name
}

// Provider returns the session's identity provider.
func (c *Coordinator) Provider() provider.ID {
	return c.provider
}

// Features returns the features this session needs.
func (c *Coordinator) Features() []provider.Feature {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.Feature(nil), c.features...)
}

// RequiredScopes returns the union of the scopes of the session's features.
func (c *Coordinator) RequiredScopes() oauth.ScopeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.required.Clone()
}

// IsConnected reports whether the store holds a credential covering every
// scope the session needs.
func (c *Coordinator) IsConnected() bool {
	return c.store.IsValid(c.provider, c.RequiredScopes())
}

// State returns the current state, first reconciling it with the store:
// a connected session whose credential disappeared or expired reports
// Expired, one whose credential no longer covers its features reports
// Disconnected, and an idle session whose scopes were granted through a
// sibling reports Connected.
func (c *Coordinator) State() State {
	c.mu.Lock()
	current := c.state
	required := c.required.Clone()
	c.mu.Unlock()

	if current == StateConnecting {
		return current
	}

	_, status := c.store.Status(c.provider, required)
	next := current
	switch {
	case status == tokenstore.StatusValid:
		next = StateConnected
	case current == StateConnected && status == tokenstore.StatusInsufficient:
		next = StateDisconnected
	case current == StateConnected:
		next = StateExpired
	}

	if next != current {
		c.transition(current, next)
	}
	return c.currentState()
}

// OnStateChange registers fn to be called after every transition.
// fn runs on the goroutine causing the transition and must not block.
func (c *Coordinator) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// AddFeatures widens the scopes the session needs. If the stored credential
// does not cover them the next Connect asks for consent again.
func (c *Coordinator) AddFeatures(features ...provider.Feature) error {
	for _, f := range features {
		if !provider.Supports(c.provider, f) {
			return errors.New("session: provider " + c.provider.String() + " does not serve feature " + string(f))
		}
	}

	c.mu.Lock()
	for _, f := range features {
		if !containsFeature(c.features, f) {
			c.features = append(c.features, f)
		}
	}
	c.required = provider.ScopesForFeatures(c.provider, c.features...)
	c.mu.Unlock()
	return nil
}

// Connect makes sure the session holds a sufficient credential, asking the
// user for consent if needed. Concurrent calls share one authorization.
//
// If ctx ends first this caller gets a UserCancelled error; the flow itself
// keeps running. Use Cancel to stop it.
func (c *Coordinator) Connect(ctx context.Context) error {
	if c.IsConnected() {
		c.transition(c.currentState(), StateConnected)
		return nil
	}

	ch := c.group.DoChan("connect", func() (interface{}, error) {
		return nil, c.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return oauth.UserCancelled(c.provider.String(), "stopped waiting for authorization", ctx.Err())
	}
}

func (c *Coordinator) connect(ctx context.Context) error {
	gen := c.begin()

	required := c.RequiredScopes()
	existing := c.store.Get(c.provider)

	// Keep what was granted before so sibling sessions on the same provider
	// are not downgraded by this consent round.
	scopes := required
	if existing != nil && !existing.Expired(c.now()) {
		scopes = required.Union(existing.GrantedScopes)
	}

	c.logger.Info("requesting authorization",
		logging.Scopes(scopes.String()),
		slog.Bool("force_consent", existing != nil))

	grant, err := c.auth.Authorize(ctx, popup.Request{
		Provider:     c.provider,
		Scopes:       scopes,
		ForceConsent: existing != nil,
	})
	if err != nil {
		c.finish(gen, StateDisconnected)
		return err
	}

	cred := oauth.NewCredential(c.provider.String(), grant.AccessToken, grant.GrantedScopes, c.now(), grant.ExpiresIn)

	c.grantMu.Lock()
	if c.generation() != gen {
		c.grantMu.Unlock()
		c.logger.Info("grant dropped; session was disconnected during authorization")
		return oauth.UserCancelled(c.provider.String(), "session was disconnected during authorization", nil)
	}
	if err := c.store.Set(ctx, c.provider, cred); err != nil {
		// The credential is usable for this process even if it could not
		// be persisted.
		c.logger.Warn("credential not persisted", logging.Err(err))
	}
	c.grantMu.Unlock()

	if missing := cred.GrantedScopes.Missing(required); len(missing) > 0 {
		c.finish(gen, StateDisconnected)
		return oauth.ScopeInsufficient(c.provider.String(), missing)
	}

	c.finish(gen, StateConnected)
	return nil
}

// WithAuth runs fn through the request wrapper. An empty required set means
// the session's own scopes. When the credential turns out to be missing or
// rejected, a connected session moves to Expired and the error is returned;
// no consent window is opened.
func (c *Coordinator) WithAuth(ctx context.Context, required oauth.ScopeSet, fn request.RequestFunc) error {
	if len(required) == 0 {
		required = c.RequiredScopes()
	}

	err := c.caller.Call(ctx, c.provider, required, fn)
	if oauth.IsKind(err, oauth.KindExpiredOrRevoked) {
		if cur := c.currentState(); cur == StateConnected {
			c.transition(cur, StateExpired)
		}
	}
	return err
}

// Disconnect clears the provider's credential and moves to Disconnected
// from any state. An authorization in flight is cancelled and a grant it
// still delivers is dropped. It is idempotent.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.grantMu.Lock()
	from := c.reset()
	cred := c.store.Get(c.provider)
	err := c.store.Clear(ctx, c.provider)
	c.grantMu.Unlock()

	if cred != nil {
		c.audit.LogDisconnected(c.provider.String())
		c.metrics.RecordTokenInvalidation(ctx, c.provider.String(), instrumentation.InvalidationDisconnect)
		c.logger.Info("disconnected")
	}

	c.afterReset(from)
	return err
}

// Cancel stops an authorization in flight for this session's provider.
func (c *Coordinator) Cancel() bool {
	return c.auth.Cancel(c.provider)
}

// markDisconnected is Disconnect without touching the store, for sessions
// whose sibling cleared the shared credential.
func (c *Coordinator) markDisconnected() {
	c.grantMu.Lock()
	from := c.reset()
	c.grantMu.Unlock()
	c.afterReset(from)
}

// reset forces Disconnected and invalidates the running flow, if any.
func (c *Coordinator) reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	from := c.state
	c.state = StateDisconnected
	return from
}

func (c *Coordinator) afterReset(from State) {
	if from == StateConnecting {
		c.group.Forget("connect")
		c.auth.Cancel(c.provider)
	}
	c.notify(from, StateDisconnected)
}

// begin enters Connecting and returns the flow's generation.
func (c *Coordinator) begin() uint64 {
	c.mu.Lock()
	from := c.state
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	c.notify(from, StateConnecting)
	return gen
}

// finish leaves Connecting unless the flow was superseded by a disconnect.
func (c *Coordinator) finish(gen uint64, to State) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	c.notify(StateConnecting, to)
}

func (c *Coordinator) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Coordinator) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves from one state to another if the state is still from.
func (c *Coordinator) transition(from, to State) {
	c.mu.Lock()
	if from == to || c.state != from {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	c.notify(from, to)
}

func (c *Coordinator) notify(from, to State) {
	if from == to {
		return
	}

	c.mu.Lock()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	ctx := context.Background()
	if to == StateConnected {
		c.metrics.SessionConnected(ctx, c.name, true)
	} else if from == StateConnected {
		c.metrics.SessionConnected(ctx, c.name, false)
	}

	c.logger.Debug("session state changed", slog.String("from", from.String()), slog.String("to", to.String()))

	for _, fn := range observers {
		fn(from, to)
	}
}

func containsFeature(list []provider.Feature, f provider.Feature) bool {
	for _, have := range list {
		if have == f {
			return true
		}
	}
	return false
}
