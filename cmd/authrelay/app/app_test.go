package app

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/server"
	"github.com/agentstation/authrelay/pkg/constants"
)

func newTestApp(cfg *Config) *App {
	logger := zerolog.Nop()
	return &App{version: "1.2.3", commit: "abc123", config: cfg, logger: &logger}
}

// TestApp_Client verifies the client is built from configuration.
func TestApp_Client(t *testing.T) {
	a := newTestApp(&Config{RelayURL: "https://relay.example.com", PathPrefix: "/api/events"})
	c, err := a.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if c.BaseURL() != "https://relay.example.com" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
	if got := c.StreamURL(); got != "wss://relay.example.com/api/events/ws" {
		t.Errorf("StreamURL() = %q", got)
	}

	a = newTestApp(&Config{RelayURL: "ftp://relay.example.com"})
	if _, err := a.Client(); err == nil {
		t.Error("Client() expected error for unsupported scheme")
	}
}

// TestApp_Shutdown verifies hooks run newest first and all of them run.
func TestApp_Shutdown(t *testing.T) {
	a := newTestApp(&Config{})

	var order []string
	boom := errors.New("boom")
	a.OnShutdown(func(context.Context) error { order = append(order, "first"); return nil })
	a.OnShutdown(func(context.Context) error { order = append(order, "second"); return boom })
	a.OnShutdown(func(context.Context) error { order = append(order, "third"); return nil })

	if err := a.Shutdown(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want %v", err, boom)
	}
	if want := []string{"third", "second", "first"}; !reflect.DeepEqual(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}

	// Hooks run once.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if len(order) != 3 {
		t.Errorf("hooks ran %d times, want 3", len(order))
	}
}

// TestApp_GlobalFlags verifies persistent flags override configuration.
func TestApp_GlobalFlags(t *testing.T) {
	a := newTestApp(&Config{
		RelayURL:  constants.DefaultRelayURL,
		Secret:    constants.DefaultSecret,
		LogOutput: "discard",
		Server:    server.DefaultConfig(),
	})

	root := a.createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--relay", "https://relay.example.com", "--secret", "s3cret", "--admin-key", "k", "-o", "json", "-v", "version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	cfg := a.Config()
	if cfg.RelayURL != "https://relay.example.com" {
		t.Errorf("RelayURL = %q", cfg.RelayURL)
	}
	if cfg.Secret != "s3cret" || cfg.Server.Secret != "s3cret" {
		t.Errorf("Secret = %q, Server.Secret = %q, want s3cret", cfg.Secret, cfg.Server.Secret)
	}
	if cfg.AdminKey != "k" || cfg.Server.AdminKey != "k" {
		t.Errorf("AdminKey = %q, Server.AdminKey = %q, want k", cfg.AdminKey, cfg.Server.AdminKey)
	}
	if a.OutputFormat() != "json" {
		t.Errorf("OutputFormat() = %q, want json", a.OutputFormat())
	}
	if !strings.Contains(out.String(), "authrelay 1.2.3") || !strings.Contains(out.String(), "abc123") {
		t.Errorf("version output = %q", out.String())
	}
}

// TestApp_GeneratorConfig verifies the identity provider settings flow
// into synthetic events.
func TestApp_GeneratorConfig(t *testing.T) {
	a := newTestApp(&Config{OrgURL: "https://dev-1.okta.com", ClientID: "0oa1"})
	got := a.GeneratorConfig()
	if got.Issuer != "https://dev-1.okta.com" || got.ClientID != "0oa1" {
		t.Errorf("GeneratorConfig() = %+v", got)
	}
}
