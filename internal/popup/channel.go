package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
)

// Default flow timings.
const (
	DefaultTimeout      = 2 * time.Minute
	DefaultPollInterval = time.Second
)

// Config configures a Channel.
type Config struct {
	// ClientIDs holds the registered public client ID per provider.
	ClientIDs map[provider.ID]string
	// RedirectURI is the landing page URL registered with the providers.
	RedirectURI string
	// AppOrigin is the only origin whose messages are trusted.
	AppOrigin string

	Timeout      time.Duration
	PollInterval time.Duration

	// RejectConcurrent makes a second Authorize for a provider with a flow in
	// flight fail with a Busy error instead of joining it.
	RejectConcurrent bool
}

// Request describes one authorization.
type Request struct {
	Provider     provider.ID
	Scopes       oauth.ScopeSet
	ForceConsent bool
}

// Grant is the outcome of a successful authorization.
type Grant struct {
	AccessToken   string
	GrantedScopes oauth.ScopeSet
	// ExpiresIn is zero when the provider gave no lifetime.
	ExpiresIn time.Duration
}

func (g *Grant) clone() *Grant {
	out := *g
	out.GrantedScopes = g.GrantedScopes.Clone()
	return &out
}

// Channel runs authorization flows.
type Channel struct {
	cfg      Config
	registry *provider.Registry
	bus      *Bus
	opener   Opener

	logger   *slog.Logger
	audit    *oauth.AuditLogger
	metrics  *instrumentation.Metrics
	newState func() (string, error)

	group singleflight.Group

	mu      sync.Mutex
	flows   map[provider.ID]*flow
	claimed map[provider.ID]bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithAuditLogger sets the security audit logger.
func WithAuditLogger(audit *oauth.AuditLogger) Option {
	return func(c *Channel) { c.audit = audit }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithStateGenerator overrides the generator of the random part of the state
// parameter.
func WithStateGenerator(fn func() (string, error)) Option {
	return func(c *Channel) { c.newState = fn }
}

// NewChannel creates a Channel.
func NewChannel(cfg Config, registry *provider.Registry, bus *Bus, opener Opener, opts ...Option) (*Channel, error) {
	if registry == nil || bus == nil || opener == nil {
		return nil, errors.New("popup: registry, bus and opener are required")
	}
	if cfg.AppOrigin == "" {
		return nil, errors.New("popup: application origin is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Channel{
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		opener:   opener,
		logger:   slog.Default(),
		newState: oauth.GenerateState,
		flows:    make(map[provider.ID]*flow),
		claimed:  make(map[provider.ID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "popup")
	return c, nil
}

// Authorize runs an authorization flow for req.Provider, or joins the one
// already in flight. A joining caller receives the in-flight flow's result
// even if it asked for different scopes.
//
// When ctx ends first, this caller gets a UserCancelled error but the shared
// flow keeps running for other callers. Use Cancel to stop the flow itself.
func (c *Channel) Authorize(ctx context.Context, req Request) (*Grant, error) {
	var ch <-chan singleflight.Result
	if c.cfg.RejectConcurrent {
		if !c.claim(req.Provider) {
			return nil, oauth.Busy(req.Provider.String())
		}
		results := make(chan singleflight.Result, 1)
		go func() {
			defer c.unclaim(req.Provider)
			grant, err := c.run(context.WithoutCancel(ctx), req)
			results <- singleflight.Result{Val: grant, Err: err}
		}()
		ch = results
	} else {
		ch = c.group.DoChan(req.Provider.String(), func() (interface{}, error) {
			return c.run(context.WithoutCancel(ctx), req)
		})
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Grant).clone(), nil
	case <-ctx.Done():
		return nil, oauth.UserCancelled(req.Provider.String(), "stopped waiting for authorization", ctx.Err())
	}
}

// claim reserves id for one exclusive flow.
func (c *Channel) claim(id provider.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[id] || c.flows[id] != nil {
		return false
	}
	c.claimed[id] = true
	return true
}

func (c *Channel) unclaim(id provider.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, id)
}

// Cancel ends the in-flight flow for id with a UserCancelled error, tearing
// it down the same way a timeout does. It reports whether a flow was running.
func (c *Channel) Cancel(id provider.ID) bool {
	c.mu.Lock()
	f := c.flows[id]
	c.mu.Unlock()

	if f == nil {
		return false
	}
	f.finish(nil, oauth.UserCancelled(id.String(), "authorization cancelled", nil))
	return true
}

// InFlight reports whether a flow for id is running.
func (c *Channel) InFlight(id provider.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flows[id] != nil
}

type flowResult struct {
	grant *Grant
	err   error
}

// flow is the state of one running authorization.
type flow struct {
	provider  provider.ID
	desc      provider.Descriptor
	requested oauth.ScopeSet
	state     string
	logger    *slog.Logger

	result chan flowResult
	done   chan struct{}

	teardown sync.Once
}

// finish offers a terminal result. Only the first offer is kept.
func (f *flow) finish(grant *Grant, err error) {
	select {
	case f.result <- flowResult{grant: grant, err: err}:
	default:
	}
}

func (c *Channel) run(ctx context.Context, req Request) (*Grant, error) {
	start := time.Now()
	id := req.Provider
	logger := c.logger.With(logging.Flow(uuid.NewString()), logging.Provider(id.String()))

	ctx, span := instrumentation.StartAuthSpan(ctx, id.String(), req.Scopes.String(), req.ForceConsent)
	defer span.End()

	grant, err := c.authorize(ctx, req, logger)

	result := instrumentation.AuthResultSuccess
	if err != nil {
		result = string(oauth.KindOf(err))
		instrumentation.SetSpanError(span, err)
		c.audit.LogAuthFailure(id.String(), err)
		logger.Info("authorization failed", logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
		c.audit.LogAuthSuccess(id.String(), grant.AccessToken, grant.GrantedScopes)
		logger.Info("authorization succeeded",
			logging.Scopes(grant.GrantedScopes.String()))
	}
	c.metrics.RecordAuthFlow(ctx, id.String(), result, time.Since(start))

	return grant, err
}

func (c *Channel) authorize(ctx context.Context, req Request, logger *slog.Logger) (*Grant, error) {
	id := req.Provider

	desc, err := c.registry.Descriptor(id)
	if err != nil {
		return nil, oauth.NetworkFailure(id.String(), 0, "", err)
	}
	clientID := c.cfg.ClientIDs[id]
	if clientID == "" {
		return nil, oauth.NetworkFailure(id.String(), 0, "", fmt.Errorf("no client ID configured for %s", id))
	}
	nonce, err := c.newState()
	if err != nil {
		return nil, oauth.NetworkFailure(id.String(), 0, "", err)
	}
	state := provider.State(id, nonce)

	f := &flow{
		provider:  id,
		desc:      desc,
		requested: req.Scopes.Clone(),
		state:     state,
		logger:    logger,
		result:    make(chan flowResult, 1),
		done:      make(chan struct{}),
	}

	authURL := desc.AuthURL(provider.AuthRequest{
		ClientID:     clientID,
		RedirectURI:  c.cfg.RedirectURI,
		Scopes:       req.Scopes,
		State:        state,
		ForceConsent: req.ForceConsent,
	})

	c.audit.LogAuthStarted(id.String(), req.Scopes, req.ForceConsent)
	logger.Debug("opening authorization window", logging.Scopes(req.Scopes.String()))

	// Subscribe before opening so a fast redirect cannot be missed.
	unsubscribe := c.bus.Subscribe(func(m Message) { c.handleMessage(ctx, f, m) })

	c.mu.Lock()
	c.flows[id] = f
	c.mu.Unlock()

	window, err := c.opener.Open(ctx, authURL)
	if err != nil {
		unsubscribe()
		c.forget(f)
		return nil, oauth.PopupBlocked(id.String(), err)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	timer := time.AfterFunc(c.cfg.Timeout, func() {
		f.finish(nil, oauth.Timeout(id.String()))
	})

	go func() {
		for {
			select {
			case <-ticker.C:
				if window.Closed() {
					f.finish(nil, oauth.UserCancelled(id.String(), "authorization window was closed", nil))
					return
				}
			case <-f.done:
				return
			}
		}
	}()

	res := <-f.result

	f.teardown.Do(func() {
		unsubscribe()
		ticker.Stop()
		timer.Stop()
		close(f.done)
		if !window.Closed() {
			if err := window.Close(); err != nil {
				logger.Debug("failed to close authorization window", logging.Err(err))
			}
		}
		c.forget(f)
	})

	return res.grant, res.err
}

func (c *Channel) forget(f *flow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flows[f.provider] == f {
		delete(c.flows, f.provider)
	}
}

func (c *Channel) handleMessage(ctx context.Context, f *flow, m Message) {
	id := f.provider.String()

	if m.Origin != c.cfg.AppOrigin {
		c.metrics.RecordCallbackMessage(ctx, id, instrumentation.CallbackForeignOrigin)
		c.audit.LogForeignOrigin(id, m.Origin)
		return
	}
	if m.Type != f.desc.SuccessType && m.Type != f.desc.ErrorType {
		c.metrics.RecordCallbackMessage(ctx, id, instrumentation.CallbackUnrelated)
		f.logger.Debug("ignored unrelated message", "type", m.Type)
		return
	}
	if m.State != "" && m.State != f.state {
		c.metrics.RecordCallbackMessage(ctx, id, instrumentation.CallbackStateMismatch)
		c.audit.LogStateMismatch(id, m.Origin)
		f.logger.Debug("ignored message with foreign state", logging.Origin(m.Origin))
		return
	}

	c.metrics.RecordCallbackMessage(ctx, id, instrumentation.CallbackAccepted)

	if m.Type == f.desc.ErrorType {
		f.finish(nil, providerError(id, m))
		return
	}

	if m.AccessToken == "" {
		f.finish(nil, oauth.NetworkFailure(id, 0, "", errors.New("success message carried no access token")))
		return
	}

	grant := &Grant{
		AccessToken:   m.AccessToken,
		GrantedScopes: f.desc.GrantedScopes(m.Scope, f.requested),
	}
	if m.ExpiresIn > 0 {
		grant.ExpiresIn = time.Duration(m.ExpiresIn) * time.Second
	}
	f.finish(grant, nil)
}

// providerError maps an OAuth error response. The user declining consent is
// a cancellation; anything else is reported as a provider failure.
func providerError(id string, m Message) error {
	msg := m.Error
	if m.ErrorDescription != "" {
		msg = msg + ": " + m.ErrorDescription
	}
	if msg == "" {
		msg = "authorization failed"
	}

	if m.Error == "access_denied" {
		return oauth.UserCancelled(id, msg, nil)
	}
	return oauth.NetworkFailure(id, 0, "", errors.New(msg))
}
