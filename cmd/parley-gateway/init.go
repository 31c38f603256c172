// ABOUTME: Interactive config file generator for parley-gateway
// ABOUTME: Writes a YAML config from answers given on stdin

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/parley-gateway/internal/config"
)

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr  string
	GRPCAddr  string
	Engine    string
	Model     string
	DBPath    string
	JWTSecret string

	TailscaleEnabled bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool

	LogLevel  string
	LogFormat string
	Metrics   bool
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("parley-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	a.GRPCAddr = prompt(reader, "gRPC health address (leave empty to disable)", "")

	fmt.Println("\n--- Engine Configuration ---")
	a.Engine = prompt(reader, "Engine (claude/demo)", config.EngineClaude)
	if a.Engine == config.EngineClaude {
		a.Model = prompt(reader, "Model (leave empty for CLI default)", "")
	}

	fmt.Println("\n--- Journal Configuration ---")
	a.DBPath = prompt(reader, "SQLite journal path (leave empty to disable)", defaultDBPath)

	fmt.Println("\n--- Auth Configuration ---")
	if yes(prompt(reader, "Require bearer tokens on /api?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TSHostname = prompt(reader, "Tailscale hostname", "parley-gateway")
		a.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		a.TSFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")
	a.Metrics = yes(prompt(reader, "Expose Prometheus metrics?", "no"))

	content := renderConfig(a)

	// Refuse to write something serve would reject.
	if _, err := config.Parse([]byte(content), "yaml"); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  parley-gateway serve")
	if a.JWTSecret != "" {
		fmt.Println("\nTo issue a client token:")
		fmt.Println("  parley-gateway token --subject <name>")
	}

	return nil
}

// renderConfig formats the answers as a YAML config file.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# parley-gateway configuration\n")
	cfg.WriteString("# Generated by parley-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	if a.GRPCAddr != "" {
		cfg.WriteString(fmt.Sprintf("  grpc_addr: %q\n", a.GRPCAddr))
	}
	cfg.WriteString("  shutdown_timeout: \"5s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString(fmt.Sprintf("  kind: %q\n", a.Engine))
	if a.Model != "" {
		cfg.WriteString(fmt.Sprintf("  model: %q\n", a.Model))
	}
	cfg.WriteString("  timeout: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("profiles:\n")
	cfg.WriteString("  chat:\n")
	cfg.WriteString(fmt.Sprintf("    turn_limit: %d\n", config.DefaultChatTurnLimit))
	cfg.WriteString("  legal:\n")
	cfg.WriteString(fmt.Sprintf("    turn_limit: %d\n", config.DefaultLegalTurnLimit))
	cfg.WriteString(fmt.Sprintf("    max_turn_limit: %d\n", config.DefaultLegalMaxTurnLimit))
	cfg.WriteString("\n")

	cfg.WriteString("commands:\n")
	cfg.WriteString(fmt.Sprintf("  dir: %q\n", config.DefaultCommandsDir))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", config.DefaultDatabaseDriver))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.TailscaleEnabled))
	if a.TailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TSHostname))
		if a.TSAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TSAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TSEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", a.TSFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.Metrics))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", config.DefaultMetricsPath))

	return cfg.String()
}

// generateSecret returns a random base64 secret suitable for auth.jwt_secret.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
