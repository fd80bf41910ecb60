// Package application provides the application interface for relay commands.
//
// Commands and the HTTP server accept this interface rather than the
// concrete App type, so tests can supply a small mock.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            c, err := app.Client()
//	            if err != nil {
//	                return err
//	            }
//	            list, err := c.History(cmd.Context())
//	            // ... render list
//	        },
//	    }
//	}
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/pkg/client"
)

// Application provides what commands need from the running CLI.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Client returns a relay client configured from the relay URL and
	// secret settings. Options are applied after the configured ones.
	Client(opts ...client.Option) (*client.Client, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
