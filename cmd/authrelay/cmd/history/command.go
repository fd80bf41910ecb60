// Package history provides the commands that read and clear the relay's
// retained events.
package history

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/internal/cmd/output"
	"github.com/agentstation/authrelay/pkg/events"
)

// NewCommand creates the history command.
func NewCommand(app application.Application) *cobra.Command {
	var (
		limit int
		types []string
	)

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls", "list"},
		GroupID: "client",
		Short:   "List events retained by the relay",
		Long: `List the events the relay currently retains, oldest first.

The relay keeps a bounded number of recent events; older ones are evicted
as new ones arrive.`,
		Example: `  # Show retained events as a table
  authrelay history

  # Only the five most recent telephony hooks, as JSON
  authrelay history --type telephony_hook --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			list, err := c.History(cmd.Context())
			if err != nil {
				return err
			}

			list = filter(list, types, limit)
			app.Logger().Debug().Int("count", len(list)).Msg("Fetched history")

			return output.Events(cmd.OutOrStdout(), list, output.DetectFormat(app.OutputFormat()))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent N events (0 for all)")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Filter by event type (repeatable)")

	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "clear",
		GroupID: "client",
		Short:   "Clear the relay's event history",
		Long: `Remove every retained event from the relay. Connected viewers are not
notified; they see the empty history the next time they fetch it.

Relays started with an admin key require --admin-key (or ADMIN_KEY).`,
		Example: `  authrelay clear --admin-key hunter2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			if err := c.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			app.Logger().Info().Str("relay", c.BaseURL()).Msg("History cleared")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s History cleared\n", emoji.Success)
			return err
		},
	}
}

// filter keeps events whose type is in types (all when empty), then the
// last limit of them.
func filter(list []events.Event, types []string, limit int) []events.Event {
	if len(types) > 0 {
		want := make(map[events.Type]bool, len(types))
		for _, t := range types {
			want[events.Type(strings.ToLower(strings.TrimSpace(t)))] = true
		}
		kept := list[:0:0]
		for _, e := range list {
			if want[e.Type] {
				kept = append(kept, e)
			}
		}
		list = kept
	}
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}
