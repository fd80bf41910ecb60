// Package health provides the command that checks a relay's health endpoint.
package health

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/internal/cmd/output"
)

// NewCommand creates the health command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		GroupID: "client",
		Short:   "Check that the relay is up",
		Example: `  authrelay health --relay https://relay.example.com`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s relay at %s is unreachable: %w", emoji.Error, c.BaseURL(), err)
			}

			format := output.DetectFormat(app.OutputFormat())
			if format == output.FormatTable || format == output.FormatWide {
				uptime := (time.Duration(h.Uptime * float64(time.Second))).Round(time.Second)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s, up %s)\n",
					emoji.Success, c.BaseURL(), h.Status, h.Environment, uptime)
				return err
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), h)
		},
	}
}
