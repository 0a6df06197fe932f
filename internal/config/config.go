// ABOUTME: Configuration loading and parsing for mcp-web-client
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding a config path.
const EnvConfigPath = "MCP_WEB_CLIENT_CONFIG"

// minSecretLen is the shortest accepted HS256 secret.
const minSecretLen = 32

// Config represents the complete mcp-web-client configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale" toml:"tailscale"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
	Sessions     SessionsConfig     `yaml:"sessions" toml:"sessions"`
	Interpreters InterpretersConfig `yaml:"interpreters" toml:"interpreters"`
	Broadcast    BroadcastConfig    `yaml:"broadcast" toml:"broadcast"`
	Redis        RedisConfig        `yaml:"redis" toml:"redis"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS via Funnel
}

// DatabaseConfig holds frame ledger configuration.
type DatabaseConfig struct {
	// Path of the SQLite ledger. Empty disables history.
	Path string `yaml:"path" toml:"path"`

	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// JWTSecret enables bearer auth on the API when set.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// SessionsConfig holds handshake timing and client identity.
type SessionsConfig struct {
	HandshakeTimeout time.Duration `yaml:"-" toml:"-"`
	SettleDelay      time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HandshakeTimeoutRaw string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	SettleDelayRaw      string `yaml:"settle_delay" toml:"settle_delay"`
	ShutdownTimeoutRaw  string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	ProtocolVersion string `yaml:"protocol_version" toml:"protocol_version"`
	ClientName      string `yaml:"client_name" toml:"client_name"`
	ClientVersion   string `yaml:"client_version" toml:"client_version"`
}

// InterpretersConfig maps server file extensions to interpreter commands.
type InterpretersConfig struct {
	Extensions map[string]string `yaml:"extensions" toml:"extensions"`
	Fallback   string            `yaml:"fallback" toml:"fallback"`
}

// BroadcastConfig holds fan-out tuning.
type BroadcastConfig struct {
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`
}

// RedisConfig holds the optional stream mirror configuration.
type RedisConfig struct {
	// Addr enables the mirror when set.
	Addr   string `yaml:"addr" toml:"addr"`
	Stream string `yaml:"stream" toml:"stream"`
	MaxLen int64  `yaml:"maxlen" toml:"maxlen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration that runs a loopback server with history
// stored under the user's data directory.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:3000"},
		Tailscale: TailscaleConfig{
			Hostname: "mcp-web-client",
		},
		Database: DatabaseConfig{
			Path:         defaultDatabasePath(),
			RetentionRaw: "168h",
		},
		Sessions: SessionsConfig{
			HandshakeTimeoutRaw: "10s",
			SettleDelayRaw:      "0s",
			ShutdownTimeoutRaw:  "5s",
			ProtocolVersion:     "2024-11-05",
			ClientName:          "mcp-web-client",
			ClientVersion:       "1.0.0",
		},
		Interpreters: InterpretersConfig{
			Extensions: map[string]string{".js": "node"},
			Fallback:   "python3",
		},
		Broadcast: BroadcastConfig{BufferSize: 64},
		Redis: RedisConfig{
			Stream: "mcp-web-client:events",
			MaxLen: 10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	if err := parseDurations(cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads a configuration file on top of the defaults. Files ending in
// .toml are parsed as TOML, everything else as YAML. Environment variables in
// the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Tailscale.StateDir = expandHome(cfg.Tailscale.StateDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Resolve picks the config path from the flag value, the environment and the
// default location. explicit reports whether the caller named the file, in
// which case a missing file is an error.
func Resolve(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return DefaultPath(), false
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mcp-web-client", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "mcp-web-client", "config.yaml")
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and was not explicitly requested.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func defaultDatabasePath() string {
	if data := os.Getenv("XDG_DATA_HOME"); data != "" {
		return filepath.Join(data, "mcp-web-client", "ledger.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".local", "share", "mcp-web-client", "ledger.db")
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minSecretLen)
	}

	if c.Sessions.HandshakeTimeout <= 0 {
		return fmt.Errorf("sessions.handshake_timeout must be positive")
	}
	if c.Sessions.SettleDelay < 0 {
		return fmt.Errorf("sessions.settle_delay must not be negative")
	}
	if c.Sessions.SettleDelay >= c.Sessions.HandshakeTimeout {
		return fmt.Errorf("sessions.settle_delay must be shorter than sessions.handshake_timeout")
	}
	if c.Sessions.ShutdownTimeout <= 0 {
		return fmt.Errorf("sessions.shutdown_timeout must be positive")
	}

	if strings.TrimSpace(c.Interpreters.Fallback) == "" {
		return fmt.Errorf("interpreters.fallback is required")
	}
	for ext, interp := range c.Interpreters.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("interpreters.extensions key %q must start with a dot", ext)
		}
		if strings.TrimSpace(interp) == "" {
			return fmt.Errorf("interpreters.extensions[%q] is empty", ext)
		}
	}

	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}
	if c.Broadcast.BufferSize < 0 {
		return fmt.Errorf("broadcast.buffer_size must not be negative")
	}
	if c.Redis.MaxLen < 0 {
		return fmt.Errorf("redis.maxlen must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sessions.handshake_timeout", cfg.Sessions.HandshakeTimeoutRaw, &cfg.Sessions.HandshakeTimeout},
		{"sessions.settle_delay", cfg.Sessions.SettleDelayRaw, &cfg.Sessions.SettleDelay},
		{"sessions.shutdown_timeout", cfg.Sessions.ShutdownTimeoutRaw, &cfg.Sessions.ShutdownTimeout},
		{"database.retention", cfg.Database.RetentionRaw, &cfg.Database.Retention},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = 0
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
