// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8000"
  grpc_addr: "0.0.0.0:50051"
  shutdown_timeout: "10s"

engine:
  kind: "claude"
  command: "/usr/local/bin/claude"
  model: "sonnet"
  timeout: "2m"
  allowed_tools:
    - "Read"
    - "Grep"

profiles:
  chat:
    instructions: "Be brief."
    turn_limit: 4

database:
  driver: "sqlite3"
  path: "./journal.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"

debug:
  include_messages: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8000")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}

	if cfg.Engine.Command != "/usr/local/bin/claude" {
		t.Errorf("Engine.Command = %q", cfg.Engine.Command)
	}
	if cfg.Engine.Model != "sonnet" {
		t.Errorf("Engine.Model = %q, want %q", cfg.Engine.Model, "sonnet")
	}
	if cfg.Engine.Timeout != 2*time.Minute {
		t.Errorf("Engine.Timeout = %v, want 2m", cfg.Engine.Timeout)
	}
	if strings.Join(cfg.Engine.AllowedTools, ",") != "Read,Grep" {
		t.Errorf("Engine.AllowedTools = %v", cfg.Engine.AllowedTools)
	}

	if cfg.Profiles.Chat.Instructions != "Be brief." || cfg.Profiles.Chat.TurnLimit != 4 {
		t.Errorf("Profiles.Chat = %+v", cfg.Profiles.Chat)
	}
	// legal profile was not set and falls back to defaults
	if cfg.Profiles.Legal.TurnLimit != DefaultLegalTurnLimit {
		t.Errorf("Profiles.Legal.TurnLimit = %d, want %d", cfg.Profiles.Legal.TurnLimit, DefaultLegalTurnLimit)
	}
	if cfg.Profiles.Legal.Instructions != DefaultLegalInstructions {
		t.Errorf("Profiles.Legal.Instructions = %q", cfg.Profiles.Legal.Instructions)
	}

	if cfg.Database.Driver != "sqlite3" || cfg.Database.Path != "./journal.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if !cfg.Debug.IncludeMessages {
		t.Error("Debug.IncludeMessages = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "localhost:8000"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Engine.Kind != EngineClaude {
		t.Errorf("Engine.Kind = %q, want %q", cfg.Engine.Kind, EngineClaude)
	}
	if cfg.Engine.Command != DefaultEngineCommand {
		t.Errorf("Engine.Command = %q, want %q", cfg.Engine.Command, DefaultEngineCommand)
	}
	if cfg.Engine.Timeout != DefaultEngineTimeout {
		t.Errorf("Engine.Timeout = %v, want %v", cfg.Engine.Timeout, DefaultEngineTimeout)
	}
	if cfg.Engine.DemoDelay != DefaultDemoDelay {
		t.Errorf("Engine.DemoDelay = %v, want %v", cfg.Engine.DemoDelay, DefaultDemoDelay)
	}
	if cfg.Profiles.Chat.TurnLimit != DefaultChatTurnLimit {
		t.Errorf("Profiles.Chat.TurnLimit = %d, want %d", cfg.Profiles.Chat.TurnLimit, DefaultChatTurnLimit)
	}
	if cfg.Database.Driver != DefaultDatabaseDriver {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DefaultDatabaseDriver)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty", cfg.Database.Path)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "localhost:9000"
shutdown_timeout = "3s"

[engine]
kind = "demo"
demo_delay = "5ms"

[profiles.legal]
turn_limit = 3
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Engine.Kind != EngineDemo {
		t.Errorf("Engine.Kind = %q, want %q", cfg.Engine.Kind, EngineDemo)
	}
	if cfg.Engine.DemoDelay != 5*time.Millisecond {
		t.Errorf("Engine.DemoDelay = %v, want 5ms", cfg.Engine.DemoDelay)
	}
	if cfg.Profiles.Legal.TurnLimit != 3 {
		t.Errorf("Profiles.Legal.TurnLimit = %d, want 3", cfg.Profiles.Legal.TurnLimit)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PARLEY_TEST_ADDR", "127.0.0.1:8123")

	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "${PARLEY_TEST_ADDR}"
auth:
  jwt_secret: "${PARLEY_TEST_SECRET}"
engine:
  model: "${PARLEY_TEST_UNSET_VARIABLE}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8123" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Engine.Model != "" {
		t.Errorf("Engine.Model = %q, want empty", cfg.Engine.Model)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "engine:\n  kind: demo\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "bad duration",
			content: "server:\n  http_addr: \":8000\"\nengine:\n  timeout: \"soon\"\n",
			wantErr: "engine.timeout",
		},
		{
			name:    "unknown engine",
			content: "server:\n  http_addr: \":8000\"\nengine:\n  kind: \"gpt\"\n",
			wantErr: "engine.kind",
		},
		{
			name:    "short secret",
			content: "server:\n  http_addr: \":8000\"\nauth:\n  jwt_secret: \"short\"\n",
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "negative turn limit",
			content: "server:\n  http_addr: \":8000\"\nprofiles:\n  chat:\n    turn_limit: -1\n",
			wantErr: "profiles.chat.turn_limit",
		},
		{
			name:    "bad driver",
			content: "server:\n  http_addr: \":8000\"\ndatabase:\n  driver: \"postgres\"\n",
			wantErr: "database.driver",
		},
		{
			name:    "bad log level",
			content: "server:\n  http_addr: \":8000\"\nlogging:\n  level: \"loud\"\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad metrics path",
			content: "server:\n  http_addr: \":8000\"\nmetrics:\n  path: \"metrics\"\n",
			wantErr: "metrics.path",
		},
		{
			name:    "chat max turn limit",
			content: "server:\n  http_addr: \":8000\"\nprofiles:\n  chat:\n    max_turn_limit: 50\n",
			wantErr: "profiles.chat.max_turn_limit",
		},
		{
			name:    "legal max below turn limit",
			content: "server:\n  http_addr: \":8000\"\nprofiles:\n  legal:\n    turn_limit: 3\n    max_turn_limit: 1\n",
			wantErr: "profiles.legal.max_turn_limit",
		},
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "gateway.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMetricsPath(t *testing.T) {
	for _, path := range []string{"/metrics", "/internal/metrics", "/healthz", "/apis", "/metrics/"} {
		if err := validateMetricsPath(path); err != nil {
			t.Errorf("validateMetricsPath(%q) = %v, want nil", path, err)
		}
	}

	for _, path := range []string{
		"/", "/health", "/health/", "/health/ready", "/api", "/api/chat",
		"/api/exchanges/x", "/api/command", "metrics", "/me trics", "/metrics/{id}", "",
	} {
		if err := validateMetricsPath(path); err == nil {
			t.Errorf("validateMetricsPath(%q) should fail", path)
		}
	}
}

func TestLoad_MetricsPathCollision(t *testing.T) {
	_, err := Load(writeConfig(t, "gateway.yaml",
		"server:\n  http_addr: \":8000\"\nmetrics:\n  enabled: true\n  path: \"/health\"\n"))
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("Load() error = %v, want a route collision", err)
	}
}

func TestLoad_LegalMaxTurnLimitDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, "gateway.yaml", "server:\n  http_addr: \":8000\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profiles.Legal.MaxTurnLimit != DefaultLegalMaxTurnLimit {
		t.Errorf("Profiles.Legal.MaxTurnLimit = %d, want %d", cfg.Profiles.Legal.MaxTurnLimit, DefaultLegalMaxTurnLimit)
	}
	if cfg.Profiles.Chat.MaxTurnLimit != 0 {
		t.Errorf("Profiles.Chat.MaxTurnLimit = %d, want 0", cfg.Profiles.Chat.MaxTurnLimit)
	}
	if cfg.Commands.Dir != DefaultCommandsDir {
		t.Errorf("Commands.Dir = %q, want %q", cfg.Commands.Dir, DefaultCommandsDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse([]byte("{}"), "json")
	if err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("Parse() error = %v", err)
	}
}
