// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default values applied when a field is left empty.
const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultEngineKind      = "claude"
	DefaultEngineCommand   = "claude"
	DefaultEngineTimeout   = 5 * time.Minute
	DefaultDemoDelay       = 50 * time.Millisecond
	DefaultDatabaseDriver  = "sqlite"
	DefaultMetricsPath     = "/metrics"

	DefaultChatInstructions  = "You are a helpful AI assistant. Answer questions politely and carefully."
	DefaultChatTurnLimit     = 10
	DefaultLegalInstructions = "You are a legal assistant. Identify risks and suggest improvements."
	DefaultLegalTurnLimit    = 2
	DefaultLegalMaxTurnLimit = 3
	DefaultCommandsDir       = ".claude/commands"

	minJWTSecretLength = 32
)

// Engine kinds.
const (
	EngineClaude = "claude"
	EngineDemo   = "demo"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Profiles  ProfilesConfig  `yaml:"profiles" toml:"profiles"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Commands  CommandsConfig  `yaml:"commands" toml:"commands"`
	Debug     DebugConfig     `yaml:"debug" toml:"debug"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // optional, serves grpc.health.v1

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// EngineConfig selects and configures the conversation engine
type EngineConfig struct {
	Kind         string   `yaml:"kind" toml:"kind"`
	Command      string   `yaml:"command" toml:"command"`
	Model        string   `yaml:"model" toml:"model"`
	WorkDir      string   `yaml:"work_dir" toml:"work_dir"`
	AllowedTools []string `yaml:"allowed_tools" toml:"allowed_tools"`

	Timeout   time.Duration `yaml:"-" toml:"-"`
	DemoDelay time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw   string `yaml:"timeout" toml:"timeout"`
	DemoDelayRaw string `yaml:"demo_delay" toml:"demo_delay"`
}

// ProfilesConfig holds the two request profiles
type ProfilesConfig struct {
	Chat  ProfileConfig `yaml:"chat" toml:"chat"`
	Legal ProfileConfig `yaml:"legal" toml:"legal"`
}

// ProfileConfig fixes the instructions and turn limit for one profile
type ProfileConfig struct {
	Instructions string `yaml:"instructions" toml:"instructions"`
	TurnLimit    int    `yaml:"turn_limit" toml:"turn_limit"`

	// MaxTurnLimit caps a caller's max_turns. Only the legal profile accepts one.
	MaxTurnLimit int `yaml:"max_turn_limit" toml:"max_turn_limit"`
}

// DatabaseConfig holds journal database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"` // empty disables the journal
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"` // empty disables auth
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTPS with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// CommandsConfig locates the markdown command templates served by /api/command
type CommandsConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// DebugConfig holds developer-facing switches
type DebugConfig struct {
	// IncludeMessages adds the raw engine event dump to /api/chat responses.
	IncludeMessages bool `yaml:"include_messages" toml:"include_messages"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	return Parse(data, format)
}

// Parse decodes configuration data in the given format ("yaml" or "toml").
func Parse(data []byte, format string) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "yaml", "yml", "":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Engine.Kind == "" {
		c.Engine.Kind = DefaultEngineKind
	}
	if c.Engine.Command == "" {
		c.Engine.Command = DefaultEngineCommand
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = DefaultEngineTimeout
	}
	if c.Engine.DemoDelay == 0 {
		c.Engine.DemoDelay = DefaultDemoDelay
	}

	if c.Profiles.Chat.Instructions == "" {
		c.Profiles.Chat.Instructions = DefaultChatInstructions
	}
	if c.Profiles.Chat.TurnLimit == 0 {
		c.Profiles.Chat.TurnLimit = DefaultChatTurnLimit
	}
	if c.Profiles.Legal.Instructions == "" {
		c.Profiles.Legal.Instructions = DefaultLegalInstructions
	}
	if c.Profiles.Legal.TurnLimit == 0 {
		c.Profiles.Legal.TurnLimit = DefaultLegalTurnLimit
	}
	if c.Profiles.Legal.MaxTurnLimit == 0 {
		c.Profiles.Legal.MaxTurnLimit = max(DefaultLegalMaxTurnLimit, c.Profiles.Legal.TurnLimit)
	}

	if c.Commands.Dir == "" {
		c.Commands.Dir = DefaultCommandsDir
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Engine.Kind {
	case EngineClaude, EngineDemo:
	default:
		return fmt.Errorf("engine.kind must be %q or %q, got %q", EngineClaude, EngineDemo, c.Engine.Kind)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative")
	}

	if c.Profiles.Chat.TurnLimit < 0 {
		return fmt.Errorf("profiles.chat.turn_limit must be positive")
	}
	if c.Profiles.Legal.TurnLimit < 0 {
		return fmt.Errorf("profiles.legal.turn_limit must be positive")
	}
	if c.Profiles.Chat.MaxTurnLimit != 0 {
		return fmt.Errorf("profiles.chat.max_turn_limit is not supported; chat always uses turn_limit")
	}
	if c.Profiles.Legal.MaxTurnLimit < c.Profiles.Legal.TurnLimit {
		return fmt.Errorf("profiles.legal.max_turn_limit must be at least turn_limit (%d)", c.Profiles.Legal.TurnLimit)
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"sqlite3\", got %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if err := validateMetricsPath(c.Metrics.Path); err != nil {
		return err
	}

	return nil
}

// metricsPathPattern accepts plain URL paths only, so the path is always a
// valid literal ServeMux pattern.
var metricsPathPattern = regexp.MustCompile(`^/[A-Za-z0-9._~/-]*$`)

// validateMetricsPath rejects paths that the gateway's own routes already own.
func validateMetricsPath(path string) error {
	if !metricsPathPattern.MatchString(path) {
		return fmt.Errorf("metrics.path must be a plain URL path starting with /, got %q", path)
	}
	trimmed := strings.TrimSuffix(path, "/")
	switch {
	case trimmed == "":
		return fmt.Errorf("metrics.path must not be /")
	case trimmed == "/health" || strings.HasPrefix(path, "/health/"),
		trimmed == "/api" || strings.HasPrefix(path, "/api/"):
		return fmt.Errorf("metrics.path %q collides with a gateway route", path)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"engine.timeout", cfg.Engine.TimeoutRaw, &cfg.Engine.Timeout},
		{"engine.demo_delay", cfg.Engine.DemoDelayRaw, &cfg.Engine.DemoDelay},
	}

	for _, f := range fields {
		if f.raw == "" {
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
