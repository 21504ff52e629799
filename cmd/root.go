package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the homedash application
var rootCmd = &cobra.Command{
	Use:   "homedash",
	Short: "Connects a personal dashboard to Google and Microsoft accounts",
	Long: `homedash connects your Google Calendar, Gmail and OneDrive to AI assistants.

Accounts are connected through the provider's own sign-in page, opened in your
browser. Access tokens are stored locally and are never refreshed silently:
when one expires, homedash asks you to connect again.

It can run as:
  - A CLI to connect, disconnect and inspect sessions
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globalOptions are the persistent flags shared by all commands.
var globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "homedash version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// baseAppOptions returns the app options from the persistent flags.
func baseAppOptions() appOptions {
	return appOptions{
		configPath: globalOptions.configPath,
		logLevel:   globalOptions.logLevel,
		logFormat:  globalOptions.logFormat,
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOptions.configPath, "config", "", "Path to the config file (default: $XDG_CONFIG_HOME/homedash/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalOptions.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&globalOptions.logFormat, "log-format", "", "Log format: text or json (overrides the config file)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
