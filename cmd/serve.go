package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/resources"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tools/calendar_tools"
	"github.com/teemow/homedash/internal/tools/connection_tools"
	"github.com/teemow/homedash/internal/tools/gmail_tools"
	"github.com/teemow/homedash/internal/tools/onedrive_tools"
)

func newServeCmd() *cobra.Command {
	var (
		yolo        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on standard input/output to
provide Calendar, Gmail and OneDrive tools for AI assistants.

The callback server for provider sign-in runs alongside it on the configured
address (default 127.0.0.1:8765). Register http://127.0.0.1:8765/oauth/callback
as redirect URI with your Google and Microsoft app registrations.

Safety Mode:
  By default, the server operates in read-only mode, providing only safe operations.
  Use --yolo to enable write operations (sending email, creating events,
  deleting files, etc.)

Metrics:
  Prometheus metrics are served at /metrics on the callback server. Use
  --metrics-addr to serve them on a dedicated address as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, baseAppOptions(), !yolo, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (sending email, creating events, deleting files)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on a dedicated address (e.g. 127.0.0.1:9090)")

	return cmd
}

func runServe(ctx context.Context, opts appOptions, readOnly bool, metricsAddr string) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	if err := a.callback.Start(); err != nil {
		return fmt.Errorf("callback server: %w (is another homedash running?)", err)
	}

	if metricsAddr != "" {
		ms, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			InstrumentationProvider: a.instr,
			Logger:                  logging.WithComponent(a.logger, "metrics"),
		})
		if err != nil {
			return err
		}
		if err := ms.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, a.sc, readOnly); err != nil {
		return err
	}

	a.logger.Info("MCP server ready",
		"sessions", a.sessions.Names(),
		"read_only", readOnly,
		"callback", a.callback.Addr())

	return runStdioServer(ctx, mcpSrv)
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("homedash", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// registerAllTools registers the tools of every configured session and the
// connection tools and resources.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		session  string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Connection",
			register: func() error {
				return connection_tools.RegisterConnectionTools(mcpSrv, sc)
			},
		},
		{
			name:    "Calendar",
			session: session.Calendar,
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name:    "Gmail",
			session: session.Gmail,
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name:    "OneDrive",
			session: session.OneDrive,
			register: func() error {
				return onedrive_tools.RegisterOneDriveTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Resources",
			register: func() error {
				return resources.RegisterResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if reg.session != "" {
			if _, err := sc.Sessions().Get(reg.session); err != nil {
				continue
			}
		}
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}
	return nil
}
