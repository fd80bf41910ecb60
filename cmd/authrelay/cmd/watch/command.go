// Package watch provides the command that follows a relay's live events.
package watch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/internal/cmd/output"
	"github.com/agentstation/authrelay/pkg/client"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// Application is what the watch command needs from the CLI app.
type Application interface {
	application.Application
	GeneratorConfig() client.GeneratorConfig
}

type options struct {
	simulate         bool
	simulateInterval time.Duration
	sessionFile      string
	reset            bool
	maxAttempts      int
	backoff          time.Duration
}

// NewCommand creates the watch command.
func NewCommand(app Application) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"tail", "follow"},
		GroupID: "client",
		Short:   "Follow the relay's events live",
		Long: `Print the relay's retained events, then every new event as it is pushed.

If the connection drops, watch reconnects with backoff and fetches history
again, so events captured while disconnected still appear once, in
timestamp order.

--simulate adds the synthetic frontend login flow (widget init, OAuth
redirect, callback, token exchange, auth success) to the local timeline.
Local events are kept in the session file and shown again on restart until
--reset clears them.`,
		Example: `  # Follow a local relay
  authrelay watch

  # Follow a remote relay and play a login flow alongside it
  authrelay watch --relay https://relay.example.com --simulate

  # Start a fresh session
  authrelay watch --reset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "Add a synthetic login flow to the timeline")
	cmd.Flags().DurationVar(&opts.simulateInterval, "simulate-interval", 750*time.Millisecond, "Delay between synthetic events")
	cmd.Flags().StringVar(&opts.sessionFile, "session-file", constants.DefaultSessionFile, "File keeping local events across restarts, empty to disable")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Discard local events from earlier sessions")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", client.DefaultMaxAttempts, "Consecutive failed reconnects before giving up, 0 for no limit")
	cmd.Flags().DurationVar(&opts.backoff, "backoff", constants.RetryBackoff, "Initial reconnect delay")

	return cmd
}

func run(ctx context.Context, app Application, opts options, out, errOut io.Writer) error {
	logger := app.Logger()

	c, err := app.Client()
	if err != nil {
		return err
	}

	p := &printer{w: out, format: output.DetectFormat(app.OutputFormat()), printed: make(map[string]bool)}

	m, err := client.NewMerger(
		client.WithSessionFile(opts.sessionFile),
		client.WithOnChange(p.print),
		client.WithMergerLogger(logger),
	)
	if err != nil {
		return err
	}
	if opts.reset {
		if err := m.Reset(); err != nil {
			return err
		}
		logger.Info().Str("file", opts.sessionFile).Msg("Session reset")
	}
	p.print(m.Events())

	stream := c.NewStream(m,
		client.WithMaxAttempts(opts.maxAttempts),
		client.WithBackoff(opts.backoff, constants.MaxRetryBackoff),
		client.WithOnState(func(s client.State) {
			switch s {
			case client.StateConnected:
				_, _ = fmt.Fprintf(errOut, "%s Connected to %s\n", emoji.Connected, c.StreamURL())
			case client.StateDisconnected:
				_, _ = fmt.Fprintf(errOut, "%s Disconnected\n", emoji.Disconnected)
			}
		}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if opts.simulate {
		gen := client.NewGenerator(app.GeneratorConfig())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := simulate(ctx, m, gen, opts.simulateInterval); err != nil {
				logger.Warn().Err(err).Msg("Simulated login flow stopped")
			}
		}()
	}

	err = stream.Run(ctx)
	cancel()
	wg.Wait()

	if errors.Is(err, client.ErrGaveUp) {
		return fmt.Errorf("%s relay at %s unreachable: %w", emoji.Error, c.BaseURL(), err)
	}
	return err
}

// simulate adds the login flow to m one event per interval.
func simulate(ctx context.Context, m *client.Merger, gen *client.Generator, interval time.Duration) error {
	for i, e := range gen.LoginFlow(interval) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		if err := m.AddLocal(e); err != nil {
			return err
		}
	}
	return nil
}

// printer writes each event of the merged timeline once.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	format  output.Format
	printed map[string]bool
}

func (p *printer) print(list []events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range list {
		if p.printed[e.ID] {
			continue
		}
		p.printed[e.ID] = true
		_ = output.Event(p.w, e, p.format)
	}
}
