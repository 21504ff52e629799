package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
)

func sessionNames() []string {
	var names []string
	for _, s := range session.DefaultSessions() {
		names = append(names, s.Name)
	}
	return names
}

func completeSessionNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return sessionNames(), cobra.ShellCompDirectiveNoFileComp
}

func newConnectCmd() *cobra.Command {
	var features []string

	cmd := &cobra.Command{
		Use:   "connect <session>",
		Short: "Connect a session by signing in with its provider",
		Long: fmt.Sprintf(`Open the provider sign-in page in your browser and wait until you finish.

Sessions: %s

The access token is stored once you grant access. Connecting a session again
asks the provider for consent again, keeping the scopes other sessions on the
same provider already hold. Use --feature to also request the scopes of
another feature of the provider, e.g. "connect gmail --feature calendar".`, strings.Join(sessionNames(), ", ")),
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeSessionNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, baseAppOptions(), args[0], features, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&features, "feature", nil, "Additional provider feature to request scopes for (repeatable)")

	return cmd
}

func runConnect(ctx context.Context, opts appOptions, name string, features []string, out io.Writer) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	coord, err := a.sessions.Get(name)
	if err != nil {
		return err
	}
	for _, f := range features {
		if err := coord.AddFeatures(provider.Feature(f)); err != nil {
			return err
		}
	}
	if err := a.callback.Start(); err != nil {
		return fmt.Errorf("callback server: %w (is another homedash running?)", err)
	}

	err = coord.Connect(ctx)
	if ctx.Err() != nil {
		coord.Cancel()
	}
	if err != nil {
		if msg := oauth.UserMessage(err); msg != err.Error() {
			fmt.Fprintln(out, msg)
		}
		return err
	}

	fmt.Fprintf(out, "Session %s is connected to %s.\n", name, coord.Provider())
	return nil
}

func newDisconnectCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "disconnect [session]",
		Short: "Disconnect a session and forget its provider credential",
		Long: `Forget the stored credential of the session's provider. Other sessions on the
same provider are disconnected too. With --all every provider is forgotten.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		ValidArgsFunction: completeSessionNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return runDisconnectAll(cmd.Context(), baseAppOptions(), cmd.OutOrStdout())
			}
			return runDisconnect(cmd.Context(), baseAppOptions(), args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Disconnect every session")

	return cmd
}

func runDisconnectAll(ctx context.Context, opts appOptions, out io.Writer) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	if err := a.sessions.DisconnectAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "All sessions are disconnected.")
	return nil
}

func runDisconnect(ctx context.Context, opts appOptions, name string, out io.Writer) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	coord, err := a.sessions.Get(name)
	if err != nil {
		return err
	}
	if err := a.sessions.Disconnect(ctx, name); err != nil {
		return err
	}

	fmt.Fprintf(out, "Session %s is disconnected from %s.\n", name, coord.Provider())
	return nil
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connection state of every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), baseAppOptions(), asJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")

	return cmd
}

func runStatus(ctx context.Context, opts appOptions, asJSON bool, out io.Writer) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	status := a.sessions.Status()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	return writeStatusTable(out, status, time.Now())
}

func writeStatusTable(out io.Writer, status []session.Status, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPROVIDER\tSTATE\tEXPIRES\tMISSING SCOPES")
	for _, st := range status {
		expires := "-"
		if !st.ExpiresAt.IsZero() {
			expires = st.ExpiresAt.Sub(now).Round(time.Minute).String()
			if st.ExpiresAt.Before(now) {
				expires = "expired"
			}
		}
		missing := "-"
		if st.GrantedScopes != nil && len(st.Missing) > 0 {
			missing = st.Missing.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.Name, st.Provider, st.State, expires, missing)
	}
	return tw.Flush()
}

func closeApp(ctx context.Context, a *app) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
	defer cancel()
	if err := a.close(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("shutdown incomplete", logging.Err(err))
	}
}
