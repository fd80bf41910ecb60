// Package emit provides the command that sends sample events to a relay.
package emit

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/internal/cmd/output"
	"github.com/agentstation/authrelay/pkg/client"
	"github.com/agentstation/authrelay/pkg/events"
)

type options struct {
	phone   string
	channel string
	user    string
	count   int
}

// NewCommand creates the emit command.
func NewCommand(app application.Application) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "emit [type]",
		GroupID: "client",
		Short:   "Send a sample event to the relay",
		Long: `Send a sample capture the way the instrumented backend would. The type
is one of telephony_hook, verify_api or event_hook (default telephony_hook).

The request carries the shared secret from --secret or DEMO_SECRET.`,
		Example: `  # One SMS telephony hook
  authrelay emit

  # Three voice verifications for a specific number
  authrelay emit verify_api --channel voice --phone +15555550123 --count 3`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: typeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := events.TypeTelephonyHook
			if len(args) == 1 {
				typ = events.Type(strings.ToLower(args[0]))
			}
			if !typ.IsServerType() {
				return fmt.Errorf("unsupported event type %q: must be one of %s", typ, strings.Join(typeNames(), ", "))
			}
			if opts.count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			return run(cmd, app, typ, opts)
		},
	}

	cmd.Flags().StringVar(&opts.phone, "phone", "", "Phone number in the sample body")
	cmd.Flags().StringVar(&opts.channel, "channel", events.ChannelSMS, "Delivery channel (sms or voice)")
	cmd.Flags().StringVar(&opts.user, "user", "", "User id in the sample body")
	cmd.Flags().IntVarP(&opts.count, "count", "c", 1, "Number of events to send")

	return cmd
}

func run(cmd *cobra.Command, app application.Application, typ events.Type, opts options) error {
	c, err := app.Client()
	if err != nil {
		return err
	}

	gen := client.NewGenerator(client.DefaultGeneratorConfig())
	format := output.DetectFormat(app.OutputFormat())
	sent := make([]string, 0, opts.count)

	for i := 0; i < opts.count; i++ {
		p, err := gen.SamplePayload(typ, client.SampleOptions{
			Phone:   opts.phone,
			Channel: opts.channel,
			User:    opts.user,
		})
		if err != nil {
			return err
		}
		id, err := c.Capture(cmd.Context(), p)
		if err != nil {
			return fmt.Errorf("sending event %d of %d: %w", i+1, opts.count, err)
		}
		app.Logger().Debug().Str("event_id", id).Str("type", string(typ)).Msg("Event captured")
		sent = append(sent, id)

		if format == output.FormatTable || format == output.FormatWide {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", emoji.Success, typ.Label(), id)
		}
	}

	if format == output.FormatTable || format == output.FormatWide {
		return nil
	}
	return output.NewFormatter(format).Format(cmd.OutOrStdout(), map[string]any{
		"success":  true,
		"eventIds": sent,
	})
}

func typeNames() []string {
	types := events.ServerTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
