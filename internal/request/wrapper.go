package request

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/tokenstore"
)

// RequestFunc performs provider HTTP calls with client, which adds the
// bearer token to every request.
type RequestFunc func(ctx context.Context, client *http.Client) error

// Wrapper runs RequestFuncs against the token store.
type Wrapper struct {
	store   *tokenstore.Store
	base    http.RoundTripper
	logger  *slog.Logger
	audit   *oauth.AuditLogger
	metrics *instrumentation.Metrics
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithBaseTransport sets the transport under the bearer token layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(w *Wrapper) { w.base = rt }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrapper) { w.logger = logger }
}

// WithAuditLogger sets the security audit logger.
func WithAuditLogger(audit *oauth.AuditLogger) Option {
	return func(w *Wrapper) { w.audit = audit }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(w *Wrapper) { w.metrics = m }
}

// NewWrapper creates a Wrapper over store.
func NewWrapper(store *tokenstore.Store, opts ...Option) *Wrapper {
	w := &Wrapper{
		store:  store,
		base:   http.DefaultTransport,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.WithComponent(w.logger, "request")
	return w
}

// Call runs fn with an HTTP client authorized for id.
//
// It fails with ExpiredOrRevoked when no usable credential is stored and with
// ScopeInsufficient when the credential lacks part of required. If any
// response during fn is a 401, the credential is cleared and the call fails
// with ExpiredOrRevoked; it is not retried. Other failures are returned as
// NetworkFailure carrying the response status and body.
func (w *Wrapper) Call(ctx context.Context, id provider.ID, required oauth.ScopeSet, fn RequestFunc) error {
	cred, status := w.store.Status(id, required)
	switch status {
	case tokenstore.StatusMissing, tokenstore.StatusExpired:
		return oauth.ExpiredOrRevoked(id.String(), nil)
	case tokenstore.StatusInsufficient:
		return oauth.ScopeInsufficient(id.String(), cred.GrantedScopes.Missing(required))
	}

	op := operationFrom(ctx)
	ctx, span := instrumentation.StartAPISpan(ctx, id.String(), op.service, op.operation)
	defer span.End()

	rec := &statusRecorder{base: w.base}
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cred.AccessToken,
				TokenType:   "Bearer",
			}),
			Base: rec,
		},
	}

	start := time.Now()
	err := fn(ctx, client)

	statusLabel := instrumentation.StatusError
	if s := rec.lastStatus(); s != 0 {
		statusLabel = strconv.Itoa(s)
		span.SetAttributes(instrumentation.StatusCodeAttr(s))
	}
	w.metrics.RecordAPICall(ctx, id.String(), op.service, statusLabel, time.Since(start))

	if rec.unauthorized.Load() || isUnauthorized(err) {
		w.invalidate(ctx, id, cred.AccessToken)
		authErr := oauth.ExpiredOrRevoked(id.String(), err)
		instrumentation.SetSpanError(span, authErr)
		return authErr
	}

	if err != nil {
		authErr := w.classify(id, rec.lastStatus(), err)
		instrumentation.SetSpanError(span, authErr)
		return authErr
	}

	instrumentation.SetSpanSuccess(span)
	return nil
}

func (w *Wrapper) invalidate(ctx context.Context, id provider.ID, token string) {
	// The store may already hold a newer grant; only the rejected token goes.
	removed, err := w.store.Invalidate(context.WithoutCancel(ctx), id, token)
	if err != nil {
		w.logger.Warn("failed to clear rejected credential", logging.Provider(id.String()), logging.Err(err))
	}
	if !removed {
		return
	}

	w.logger.Info("credential rejected by provider", logging.Provider(id.String()), logging.Token(token))
	w.audit.LogTokenInvalidated(id.String(), token, instrumentation.InvalidationUnauthorized)
	w.metrics.RecordTokenInvalidation(ctx, id.String(), instrumentation.InvalidationUnauthorized)
}

func (w *Wrapper) classify(id provider.ID, lastStatus int, err error) error {
	var authErr *oauth.AuthError
	if errors.As(err, &authErr) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return oauth.NetworkFailure(id.String(), gerr.Code, gerr.Body, err)
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		return oauth.NetworkFailure(id.String(), serr.StatusCode, serr.Body, err)
	}

	return oauth.NetworkFailure(id.String(), lastStatus, "", err)
}

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return true
	}

	var serr *StatusError
	if errors.As(err, &serr) && serr.StatusCode == http.StatusUnauthorized {
		return true
	}

	return false
}

type operation struct {
	service   string
	operation string
}

type operationKey struct{}

// WithOperation labels the calls made with ctx for metrics and tracing.
func WithOperation(ctx context.Context, service, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation{service: service, operation: op})
}

func operationFrom(ctx context.Context) operation {
	if op, ok := ctx.Value(operationKey{}).(operation); ok {
		return op
	}
	return operation{service: "unknown"}
}
