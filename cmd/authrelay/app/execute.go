package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/authrelay/cmd/emit"
	"github.com/agentstation/authrelay/cmd/authrelay/cmd/health"
	"github.com/agentstation/authrelay/cmd/authrelay/cmd/history"
	"github.com/agentstation/authrelay/cmd/authrelay/cmd/serve"
	"github.com/agentstation/authrelay/cmd/authrelay/cmd/watch"
	"github.com/agentstation/authrelay/internal/server"
	"github.com/agentstation/authrelay/pkg/client"
)

// Execute runs the authrelay CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "authrelay",
		Short:   "Live event relay for authentication flow demos",
		Version: a.version,
		Long: `authrelay receives instrumentation events from server-side auth hooks,
keeps a bounded history of them and pushes each one live to connected
viewers over WebSocket or Server-Sent Events.

Run "authrelay serve" to start the relay, then point instrumented hooks at
POST /api/events/capture with the shared X-Demo-Secret header. Use
"authrelay watch" to follow the live timeline from a terminal.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "client", Title: "Client Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./.authrelay.yaml or $HOME/.authrelay.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, wide, json, yaml")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.String("relay", "", "relay base URL (env RELAY_URL)")
	flags.String("secret", "", "shared ingress secret (env DEMO_SECRET)")
	flags.String("admin-key", "", "admin key for clearing history (env ADMIN_KEY)")

	rootCmd.SetVersionTemplate("authrelay {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if path := mustGetString(cmd, "config"); path != "" {
		cfg, err := loadConfig(newViper(path))
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.config = cfg
		a.mu.Unlock()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.config.UpdateFromFlags(
		mustGetBool(cmd, "verbose"),
		mustGetBool(cmd, "quiet"),
		mustGetBool(cmd, "no-color"),
		mustGetString(cmd, "format"),
		mustGetString(cmd, "log-level"),
	)
	if cmd.Flags().Changed("relay") {
		a.config.RelayURL = mustGetString(cmd, "relay")
	}
	if cmd.Flags().Changed("secret") {
		a.config.Secret = mustGetString(cmd, "secret")
		a.config.Server.Secret = a.config.Secret
	}
	if cmd.Flags().Changed("admin-key") {
		a.config.AdminKey = mustGetString(cmd, "admin-key")
		a.config.Server.AdminKey = a.config.AdminKey
	}

	logger := NewLogger(a.config)
	a.logger = &logger
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(watch.NewCommand(a))

	rootCmd.AddCommand(history.NewCommand(a))
	rootCmd.AddCommand(history.NewClearCommand(a))
	rootCmd.AddCommand(emit.NewCommand(a))
	rootCmd.AddCommand(health.NewCommand(a))

	rootCmd.AddCommand(a.newVersionCommand())
}

// ServerConfig returns the relay server settings.
func (a *App) ServerConfig() server.Config {
	return a.Config().Server
}

// GeneratorConfig returns the sign-in details used for synthetic events.
func (a *App) GeneratorConfig() client.GeneratorConfig {
	cfg := a.Config()
	return client.GeneratorConfig{Issuer: cfg.OrgURL, ClientID: cfg.ClientID}
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("authrelay %s\n", a.version)
			if a.Config().Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
