// Package app provides the application context and dependency management
// for the authrelay CLI: configuration, logging, the relay client and
// lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/pkg/client"
	"github.com/agentstation/authrelay/pkg/errors"
)

// App represents the authrelay application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	mu     sync.RWMutex
	config *Config
	logger *zerolog.Logger

	// shutdownHooks run in reverse order on Shutdown.
	shutdownHooks []func(context.Context) error
}

var _ application.Application = (*App)(nil)

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.Config().Format
}

// Client returns a relay client built from the configured relay URL,
// secret and admin key. opts are applied last.
func (a *App) Client(opts ...client.Option) (*client.Client, error) {
	cfg := a.Config()
	base := []client.Option{
		client.WithSecret(cfg.Secret),
		client.WithSecretHeader(cfg.SecretHeader),
		client.WithAdminKey(cfg.AdminKey),
		client.WithPathPrefix(cfg.PathPrefix),
		client.WithLogger(a.Logger()),
	}
	if cfg.Trace {
		base = append(base, client.WithTracing())
	}
	c, err := client.New(cfg.RelayURL, append(base, opts...)...)
	if err != nil {
		return nil, errors.WrapResource("create", "client", cfg.RelayURL, err)
	}
	return c, nil
}

// OnShutdown registers fn to run during Shutdown.
func (a *App) OnShutdown(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownHooks = append(a.shutdownHooks, fn)
}

// Shutdown runs the registered shutdown hooks, newest first. It returns
// the first error but runs every hook.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.shutdownHooks
	a.shutdownHooks = nil
	a.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			a.Logger().Error().Err(err).Msg("Shutdown hook failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
