package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/authrelay/internal/server"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files. Flags are applied on top by the
// commands that define them.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string

	// Relay client settings
	RelayURL     string
	Secret       string
	SecretHeader string
	AdminKey     string
	PathPrefix   string
	Trace        bool

	// Identity provider details narrated by synthetic events
	OrgURL   string
	ClientID string

	// Server settings for the serve command
	Server server.Config
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. Environment variables
//  3. .env and .env.local files
//  4. Config file (./.authrelay.yaml or ~/.authrelay.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()
	return loadConfig(newViper(os.Getenv("AUTHRELAY_CONFIG")))
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := server.DefaultConfig()
	v.SetDefault("relay_url", constants.DefaultRelayURL)
	v.SetDefault("demo_secret", d.Secret)
	v.SetDefault("secret_header", d.SecretHeader)
	v.SetDefault("path_prefix", d.PathPrefix)
	v.SetDefault("port", d.Port)
	v.SetDefault("host", d.Host)
	v.SetDefault("allowed_origins", strings.Join(d.AllowedOrigins, ","))
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("history_capacity", d.HistoryCapacity)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	// NODE_ENV is honored for deployments that already set it.
	_ = v.BindEnv("environment", "ENVIRONMENT", "NODE_ENV")
	_ = v.BindEnv("org_url", "OKTA_ORG_URL", "ORG_URL")
	_ = v.BindEnv("client_id", "OKTA_CLIENT_ID", "CLIENT_ID")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".authrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	return v
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// A missing config file is fine; a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.WrapParse("yaml", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{
		ConfigFile: v.ConfigFileUsed(),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),

		RelayURL:     v.GetString("relay_url"),
		Secret:       v.GetString("demo_secret"),
		SecretHeader: v.GetString("secret_header"),
		AdminKey:     v.GetString("admin_key"),
		PathPrefix:   v.GetString("path_prefix"),
		Trace:        v.GetBool("trace"),

		OrgURL:   v.GetString("org_url"),
		ClientID: v.GetString("client_id"),
	}

	cfg.Server = server.Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		PathPrefix:      cfg.PathPrefix,
		SecretHeader:    cfg.SecretHeader,
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		Secret:          cfg.Secret,
		AdminKey:        cfg.AdminKey,
		AllowedOrigins:  stringList(v.Get("allowed_origins")),
		TrustedProxies:  stringList(v.Get("trusted_proxies")),
		HistoryCapacity: v.GetInt("history_capacity"),
		Environment:     v.GetString("environment"),
		RateLimit:       v.GetInt("rate_limit"),
		CacheTTL:        v.GetDuration("cache_ttl"),
		ReadTimeout:     v.GetDuration("read_timeout"),
		WriteTimeout:    v.GetDuration("write_timeout"),
		IdleTimeout:     v.GetDuration("idle_timeout"),
		Trace:           cfg.Trace,
	}
	return cfg, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set in the process environment win.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// stringList reads a comma-separated string or a YAML list.
func stringList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
