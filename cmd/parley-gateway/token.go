// ABOUTME: Token subcommand issuing HS256 bearer tokens for API clients
// ABOUTME: Signs with auth.jwt_secret from the gateway config

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/config"
)

const defaultTokenTTL = 30 * 24 * time.Hour

type tokenOptions struct {
	subject string
	ttl     time.Duration
	save    bool
}

func parseTokenFlags(args []string) (*tokenOptions, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts tokenOptions
	fs.StringVar(&opts.subject, "subject", "", "token subject (client name)")
	fs.DurationVar(&opts.ttl, "ttl", defaultTokenTTL, "token lifetime")
	fs.BoolVar(&opts.save, "save", false, "also write the token next to the config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	opts.subject = strings.TrimSpace(opts.subject)
	if opts.subject == "" {
		return nil, errors.New("--subject is required")
	}
	if len(opts.subject) > 100 {
		return nil, errors.New("subject exceeds maximum length of 100 characters")
	}
	if opts.ttl <= 0 {
		return nil, errors.New("--ttl must be positive")
	}
	return &opts, nil
}

func runToken(args []string, out io.Writer) error {
	opts, err := parseTokenFlags(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	token, err := issueToken(cfg.Auth.JWTSecret, opts)
	if err != nil {
		return err
	}

	if opts.save {
		tokenPath := filepath.Join(filepath.Dir(configPath), "token")
		if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
			return fmt.Errorf("writing token file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Saved token: %s (expires %s)\n",
			tokenPath, time.Now().Add(opts.ttl).UTC().Format("Jan 02, 2006"))
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func issueToken(secret string, opts *tokenOptions) (string, error) {
	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(opts.subject, opts.ttl)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return token, nil
}
