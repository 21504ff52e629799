package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
)

const (
	// MessagePath receives the messages posted by the landing page.
	MessagePath = "/oauth/message"

	maxMessageBytes   = 16 << 10
	readHeaderTimeout = 10 * time.Second
)

// CallbackConfig configures a CallbackServer.
type CallbackConfig struct {
	// Addr is the loopback address the providers redirect to.
	Addr string
	// CallbackPath serves the landing page.
	CallbackPath string
}

// CallbackServer serves the redirect landing page and relays its messages to
// the popup bus.
type CallbackServer struct {
	cfg            CallbackConfig
	bus            *popup.Bus
	types          map[string]messageTypes
	health         *HealthChecker
	metrics        *instrumentation.Metrics
	metricsHandler http.Handler
	logger         *slog.Logger
	router         chi.Router

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// CallbackOption configures a CallbackServer.
type CallbackOption func(*CallbackServer)

// WithHealthChecker sets the health checker behind /healthz and /readyz.
func WithHealthChecker(h *HealthChecker) CallbackOption {
	return func(s *CallbackServer) { s.health = h }
}

// WithMetrics records HTTP request metrics.
func WithMetrics(m *instrumentation.Metrics) CallbackOption {
	return func(s *CallbackServer) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) CallbackOption {
	return func(s *CallbackServer) { s.metricsHandler = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CallbackOption {
	return func(s *CallbackServer) { s.logger = logger }
}

// NewCallbackServer creates the callback server. It does not listen until
// Start.
func NewCallbackServer(cfg CallbackConfig, bus *popup.Bus, registry *provider.Registry, opts ...CallbackOption) (*CallbackServer, error) {
	if bus == nil || registry == nil {
		return nil, fmt.Errorf("callback server requires a bus and a provider registry")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("callback address is required")
	}
	if cfg.CallbackPath == "" || cfg.CallbackPath[0] != '/' {
		return nil, fmt.Errorf("callback path %q must start with /", cfg.CallbackPath)
	}

	s := &CallbackServer{
		cfg:    cfg,
		bus:    bus,
		types:  landingTypes(registry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = NewHealthChecker(nil)
	}
	s.router = s.routes()
	return s, nil
}

func (s *CallbackServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}

	r.Get(s.cfg.CallbackPath, s.handleLanding)
	r.Post(MessagePath, s.handleMessage)
	s.health.RegisterHealthEndpoints(r)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}
	return r
}

// Handler returns the router.
func (s *CallbackServer) Handler() http.Handler {
	return s.router
}

// Health returns the health checker.
func (s *CallbackServer) Health() *HealthChecker {
	return s.health
}

// Start binds the address and serves in the background. A bind failure,
// typically another homedash holding the port, is returned.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("callback server listening", "addr", ln.Addr().String(), "path", s.cfg.CallbackPath)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped", logging.Err(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown stops the server. It is a no-op before Start.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.health.SetReady(false)
	return srv.Shutdown(ctx)
}

// handleMessage relays a landing page message. Any well-formed message is
// accepted; the popup channel filters by origin, type and state.
func (s *CallbackServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg popup.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := dec.Decode(&msg); err != nil {
		http.Error(w, "malformed message", http.StatusBadRequest)
		return
	}
	msg.Origin = r.Header.Get("Origin")

	attrs := []any{"type", msg.Type, logging.Origin(msg.Origin)}
	if id, ok := provider.FromState(msg.State); ok {
		attrs = append(attrs, logging.Provider(id.String()))
	}
	s.logger.Debug("callback message received", attrs...)
	s.bus.Post(msg)
	w.WriteHeader(http.StatusAccepted)
}
