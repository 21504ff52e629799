package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/teemow/homedash/internal/config"
	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tokenstore"
)

// appOptions are the command-line inputs to newApp.
type appOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logOutput  io.Writer

	// opener overrides the system browser.
	opener popup.Opener
	// backend overrides the configured token store backend.
	backend tokenstore.Backend
	// instrumentation overrides instrumentation.DefaultConfig.
	instrumentation *instrumentation.Config
}

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	instr    *instrumentation.Provider
	backend  tokenstore.Backend
	store    *tokenstore.Store
	bus      *popup.Bus
	channel  *popup.Channel
	sessions *session.Manager
	callback *server.CallbackServer
	sc       *server.ServerContext
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	out := opts.logOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := logging.New(out, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	instrCfg := instrumentation.DefaultConfig()
	if opts.instrumentation != nil {
		instrCfg = *opts.instrumentation
	}
	instrCfg.ServiceVersion = version
	instr, err := instrumentation.NewProvider(ctx, instrCfg,
		instrumentation.WithProviderLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	metrics := instr.Metrics()

	a := &app{cfg: cfg, logger: logger, instr: instr, bus: popup.NewBus()}

	a.backend = opts.backend
	if a.backend == nil {
		a.backend, err = tokenstore.NewBackend(ctx, cfg.BackendConfig(), logger)
		if err != nil {
			return nil, a.fail(ctx, fmt.Errorf("failed to open token storage: %w", err))
		}
	}
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	sealer, err := oauth.NewSealer(key)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if !sealer.Enabled() {
		logger.Warn("token storage is not encrypted; set " + config.EnvEncryptionKey + " to enable encryption")
	}

	a.store = tokenstore.New(
		tokenstore.WithBackend(a.backend),
		tokenstore.WithSealer(sealer),
		tokenstore.WithLogger(logging.WithComponent(logger, "tokenstore")),
	)
	if err := a.store.Load(ctx); err != nil {
		logger.Warn("some stored credentials could not be loaded", logging.Err(err))
	}

	audit := oauth.NewAuditLogger(logging.WithComponent(logger, "audit"))
	registry := provider.NewRegistry(cfg.Microsoft.Tenant)

	opener := opts.opener
	if opener == nil {
		opener = popup.BrowserOpener{OnOpen: func(url string) {
			fmt.Fprintf(os.Stderr, "Opening the sign-in page in your browser. If it does not open, visit:\n\n  %s\n\n", url)
		}}
	}
	a.channel, err = popup.NewChannel(cfg.PopupConfig(), registry, a.bus, opener,
		popup.WithLogger(logging.WithComponent(logger, "popup")),
		popup.WithAuditLogger(audit),
		popup.WithMetrics(metrics),
	)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	wrapper := request.NewWrapper(a.store,
		request.WithLogger(logging.WithComponent(logger, "request")),
		request.WithAuditLogger(audit),
		request.WithMetrics(metrics),
	)

	a.sessions, err = session.NewManager(configuredSessions(cfg), a.store, a.channel, wrapper,
		session.WithLogger(logger),
		session.WithAuditLogger(audit),
		session.WithMetrics(metrics),
	)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	a.sc, err = server.NewServerContext(ctx, a.sessions)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.sc.SetMetrics(metrics)
	invocations := instrumentation.NewInvocationLogger(logging.WithComponent(logger, "tools"))
	invocations.SetEnabled(!cfg.Log.DisableToolInvocations)
	a.sc.SetInvocationLogger(invocations)

	for _, name := range a.sessions.Names() {
		coord, _ := a.sessions.Get(name)
		sessionLogger := logging.WithSession(logger, name, coord.Provider().String())
		coord.OnStateChange(func(from, to session.State) {
			switch {
			case to == session.StateConnected:
				sessionLogger.Info("session connected")
			case to == session.StateExpired:
				sessionLogger.Warn("session expired; run: homedash connect " + name)
			case to == session.StateDisconnected && from != session.StateConnecting:
				sessionLogger.Info("session disconnected")
			}
		})
	}

	health := server.NewHealthChecker(a.sc)
	if pinger, ok := a.backend.(interface{ Ping(context.Context) error }); ok {
		health.AddCheck("token_store", pinger.Ping)
	}

	callbackOpts := []server.CallbackOption{
		server.WithHealthChecker(health),
		server.WithLogger(logging.WithComponent(logger, "callback")),
	}
	if instr.Enabled() {
		callbackOpts = append(callbackOpts, server.WithMetrics(metrics))
		if h := instr.PrometheusHandler(); h != nil {
			callbackOpts = append(callbackOpts, server.WithMetricsHandler(h))
		}
	}
	a.callback, err = server.NewCallbackServer(server.CallbackConfig{
		Addr:         cfg.Server.Addr,
		CallbackPath: cfg.Server.CallbackPath,
	}, a.bus, registry, callbackOpts...)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	return a, nil
}

// configuredSessions keeps the default sessions whose provider has a client
// ID.
func configuredSessions(cfg *config.Config) []session.Config {
	ids := cfg.ClientIDs()
	var out []session.Config
	for _, s := range session.DefaultSessions() {
		if _, ok := ids[s.Provider]; ok {
			out = append(out, s)
		}
	}
	return out
}

// fail releases what newApp built so far and returns err.
func (a *app) fail(ctx context.Context, err error) error {
	return errors.Join(err, a.close(ctx))
}

// close stops the callback server, cancels running flows and releases the
// storage and instrumentation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.callback != nil {
		errs = append(errs, a.callback.Shutdown(ctx))
	}
	if a.sc != nil {
		errs = append(errs, a.sc.Shutdown())
	}
	if c, ok := a.backend.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.instr != nil {
		errs = append(errs, a.instr.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
