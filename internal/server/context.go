package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/homedash/internal/calendar"
	"github.com/teemow/homedash/internal/gmail"
	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/onedrive"
	"github.com/teemow/homedash/internal/session"
)

// ServerContext holds the context for the MCP server
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sessions *session.Manager

	metrics     *instrumentation.Metrics
	invocations *instrumentation.InvocationLogger

	mu             sync.RWMutex
	calendarClient *calendar.Client
	gmailClient    *gmail.Client
	onedriveClient *onedrive.Client
	shutdown       bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, sessions *session.Manager) (*ServerContext, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		sessions: sessions,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Sessions returns the session manager
func (sc *ServerContext) Sessions() *session.Manager {
	return sc.sessions
}

// SetMetrics sets the metrics recorder used by the tools.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetInvocationLogger sets the tool invocation logger.
func (sc *ServerContext) SetInvocationLogger(l *instrumentation.InvocationLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.invocations = l
}

// InvocationLogger returns the tool invocation logger, or nil.
func (sc *ServerContext) InvocationLogger() *instrumentation.InvocationLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.invocations
}

// CalendarClient returns the Calendar client, creating it on first use.
func (sc *ServerContext) CalendarClient() (*calendar.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.calendarClient == nil {
		coord, err := sc.sessions.Get(session.Calendar)
		if err != nil {
			return nil, err
		}
		sc.calendarClient = calendar.NewClient(coord)
	}
	return sc.calendarClient, nil
}

// SetCalendarClient replaces the Calendar client
func (sc *ServerContext) SetCalendarClient(client *calendar.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.calendarClient = client
}

// GmailClient returns the Gmail client, creating it on first use.
func (sc *ServerContext) GmailClient() (*gmail.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.gmailClient == nil {
		coord, err := sc.sessions.Get(session.Gmail)
		if err != nil {
			return nil, err
		}
		sc.gmailClient = gmail.NewClient(coord)
	}
	return sc.gmailClient, nil
}

// SetGmailClient replaces the Gmail client
func (sc *ServerContext) SetGmailClient(client *gmail.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gmailClient = client
}

// OneDriveClient returns the OneDrive client, creating it on first use.
func (sc *ServerContext) OneDriveClient() (*onedrive.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.onedriveClient == nil {
		coord, err := sc.sessions.Get(session.OneDrive)
		if err != nil {
			return nil, err
		}
		sc.onedriveClient = onedrive.NewClient(coord)
	}
	return sc.onedriveClient, nil
}

// SetOneDriveClient replaces the OneDrive client
func (sc *ServerContext) SetOneDriveClient(client *onedrive.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onedriveClient = client
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and cancels in-flight
// authorization flows.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	sc.mu.Unlock()

	for _, name := range sc.sessions.Names() {
		if coord, err := sc.sessions.Get(name); err == nil {
			coord.Cancel()
		}
	}
	return nil
}
