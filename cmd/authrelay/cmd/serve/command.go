// Package serve provides the command that runs the relay server.
package serve

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/internal/server"
	"github.com/agentstation/authrelay/internal/telemetry"
	"github.com/agentstation/authrelay/pkg/constants"
)

// Application is what the serve command needs from the CLI app.
type Application interface {
	application.Application
	ServerConfig() server.Config
}

// NewCommand creates the serve command.
func NewCommand(app Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Run the relay server",
		Long: `Run the relay: accept instrumentation events on POST {prefix}/capture,
keep the most recent ones in memory, and push each accepted event to every
connected viewer.

Endpoints:
  POST   {prefix}/capture   capture an event (requires the shared secret header)
  GET    {prefix}/history   retained events, oldest first
  DELETE {prefix}/history   clear history (requires --admin-key when set)
  GET    {prefix}/ws        WebSocket push channel
  GET    {prefix}/stream    Server-Sent Events push channel
  GET    /health, /ready    liveness and readiness

Settings come from flags, environment variables (PORT, DEMO_SECRET,
ALLOWED_ORIGINS, TRUSTED_PROXIES, HISTORY_CAPACITY, NODE_ENV, ...), .env files and the
config file, in that order of precedence.

X-Forwarded-For is only used for the client address when the direct peer
is listed in --trusted-proxies.`,
		Example: `  # Start on the default port 3001
  authrelay serve

  # Custom port, secret and viewer origin
  DEMO_SECRET=s3cret authrelay serve --port 8080 --allowed-origins https://demo.example.com

  # Protect history deletion and print request spans
  authrelay serve --admin-key hunter2 --trace`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.ServerConfig()
			applyFlags(cmd, &cfg)
			return runServer(cmd.Context(), app, cfg, cmd.OutOrStdout())
		},
	}

	d := server.DefaultConfig()
	cmd.Flags().Int("port", d.Port, "Server port (env PORT)")
	cmd.Flags().String("host", d.Host, "Bind address, empty for all interfaces (env HOST)")
	cmd.Flags().String("prefix", d.PathPrefix, "Path prefix of the event endpoints")
	cmd.Flags().String("secret-header", d.SecretHeader, "Header carrying the shared secret")
	cmd.Flags().StringSlice("allowed-origins", d.AllowedOrigins, "Allowed viewer origins (env ALLOWED_ORIGINS)")
	cmd.Flags().StringSlice("trusted-proxies", d.TrustedProxies, "Proxy IPs or CIDRs whose X-Forwarded-For is honored (env TRUSTED_PROXIES)")
	cmd.Flags().Int("history-capacity", d.HistoryCapacity, "Number of events retained (env HISTORY_CAPACITY)")
	cmd.Flags().String("environment", d.Environment, "Environment name reported by /health (env NODE_ENV)")
	cmd.Flags().Int("rate-limit", d.RateLimit, "Requests per minute per IP, 0 to disable")
	cmd.Flags().Duration("cache-ttl", d.CacheTTL, "TTL of cached history encodings")
	cmd.Flags().Int64("max-body-bytes", d.MaxBodyBytes, "Maximum capture body size")
	cmd.Flags().Duration("read-timeout", d.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", d.WriteTimeout, "HTTP write timeout, 0 keeps SSE streams open")
	cmd.Flags().Duration("idle-timeout", d.IdleTimeout, "HTTP idle timeout")
	cmd.Flags().Bool("trace", false, "Print OpenTelemetry request spans to stderr")

	return cmd
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *server.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = mustGet(f.GetInt("port"))
	}
	if f.Changed("host") {
		cfg.Host = mustGet(f.GetString("host"))
	}
	if f.Changed("prefix") {
		cfg.PathPrefix = mustGet(f.GetString("prefix"))
	}
	if f.Changed("secret-header") {
		cfg.SecretHeader = mustGet(f.GetString("secret-header"))
	}
	if f.Changed("allowed-origins") {
		cfg.AllowedOrigins = mustGet(f.GetStringSlice("allowed-origins"))
	}
	if f.Changed("trusted-proxies") {
		cfg.TrustedProxies = mustGet(f.GetStringSlice("trusted-proxies"))
	}
	if f.Changed("history-capacity") {
		cfg.HistoryCapacity = mustGet(f.GetInt("history-capacity"))
	}
	if f.Changed("environment") {
		cfg.Environment = mustGet(f.GetString("environment"))
	}
	if f.Changed("rate-limit") {
		cfg.RateLimit = mustGet(f.GetInt("rate-limit"))
	}
	if f.Changed("cache-ttl") {
		cfg.CacheTTL = mustGet(f.GetDuration("cache-ttl"))
	}
	if f.Changed("max-body-bytes") {
		cfg.MaxBodyBytes = mustGet(f.GetInt64("max-body-bytes"))
	}
	if f.Changed("read-timeout") {
		cfg.ReadTimeout = mustGet(f.GetDuration("read-timeout"))
	}
	if f.Changed("write-timeout") {
		cfg.WriteTimeout = mustGet(f.GetDuration("write-timeout"))
	}
	if f.Changed("idle-timeout") {
		cfg.IdleTimeout = mustGet(f.GetDuration("idle-timeout"))
	}
	if f.Changed("trace") {
		cfg.Trace = mustGet(f.GetBool("trace"))
	}
}

// runServer starts the relay and blocks until ctx is cancelled.
func runServer(ctx context.Context, app application.Application, cfg server.Config, out io.Writer) error {
	logger := app.Logger()

	if cfg.Trace {
		shutdownTracer, err := telemetry.InitTracer("authrelay", app.Version(), os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("starting tracer: %w", err)
		}
		defer func() {
			tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(tctx); err != nil {
				logger.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	srv, err := server.New(app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	cfg = srv.Config()

	if cfg.UsingDefaultSecret() {
		logger.Warn().Msg("Using the default demo secret; set DEMO_SECRET before exposing the relay")
		_, _ = fmt.Fprintf(out, "%s Using the default demo secret. Set DEMO_SECRET in production.\n", emoji.Warning)
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("prefix", cfg.PathPrefix).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Strs("trusted_proxies", cfg.TrustedProxies).
		Int("history_capacity", cfg.HistoryCapacity).
		Int("rate_limit", cfg.RateLimit).
		Bool("admin_key", cfg.AdminKey != "").
		Str("environment", cfg.Environment).
		Msg("Starting relay server")

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}

	srv.Start()

	httpServer := &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return startWithGracefulShutdown(ctx, httpServer, ln, srv, logger, out)
}

// startWithGracefulShutdown serves on ln until ctx is cancelled, then drains
// HTTP connections and stops the relay.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, ln net.Listener, srv *server.Server, logger *zerolog.Logger, out io.Writer) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		_, _ = fmt.Fprintf(out, "%s Relay listening on %s\n", emoji.Rocket, ln.Addr())
		_, _ = fmt.Fprintln(out, "   Press Ctrl+C to stop")

		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")
		_, _ = fmt.Fprintf(out, "\n%s Shutting down relay...\n", emoji.Stop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		// Stop the relay first: it closes push streams, which would
		// otherwise hold httpServer.Shutdown open until the deadline.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Relay shutdown had issues")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		_, _ = fmt.Fprintf(out, "%s Relay stopped\n", emoji.Success)
		return nil
	}
}

// mustGet unwraps a flag lookup for flags defined in this package.
func mustGet[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("programming error: %v", err))
	}
	return v
}
