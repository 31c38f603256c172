// ABOUTME: Interactive terminal client for parley-gateway
// ABOUTME: Keeps the returned session id so each line continues the same conversation

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// getToken returns the bearer token from PARLEY_TOKEN or ~/.config/parley/token.
func getToken() string {
	if token := os.Getenv("PARLEY_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "parley", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// session holds client-side conversation state between lines.
type session struct {
	client *GatewayClient
	id     string
	legal  bool
	stream bool
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Gateway server URL")
	sessionID := flag.String("session", "", "Session ID to resume")
	legal := flag.Bool("legal", false, "Use the legal analysis profile")
	stream := flag.Bool("stream", false, "Stream the legal profile over SSE (implies -legal)")
	flag.Parse()

	token := getToken()

	fmt.Printf("parley-chat connected to %s\n", *server)
	if token != "" {
		fmt.Println("Auth: bearer token configured")
	} else {
		fmt.Println("Auth: none (set PARLEY_TOKEN for authentication)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := &session{
		client: NewGatewayClient(*server, token),
		id:     *sessionID,
		legal:  *legal || *stream,
		stream: *stream,
	}
	if err := s.run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func (s *session) run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		s.printPrompt(out)

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch input {
		case "/quit", "/exit", "/q":
			return nil
		case "/new":
			s.id = ""
			fmt.Fprintln(out, "Started a new conversation")
			continue
		case "/session":
			if s.id == "" {
				fmt.Fprintln(out, "No session yet")
			} else {
				fmt.Fprintln(out, s.id)
			}
			continue
		case "/help":
			printHelp(out)
			continue
		}

		if rest, ok := strings.CutPrefix(input, "/run"); ok && (rest == "" || rest[0] == ' ') {
			if err := s.runCommand(ctx, strings.TrimSpace(rest), out); err != nil {
				fmt.Fprintln(out, color.RedString("[error] %v", err))
			}
			fmt.Fprintln(out)
			continue
		}

		if err := s.send(ctx, input, out); err != nil {
			fmt.Fprintln(out, color.RedString("[error] %v", err))
		}
		fmt.Fprintln(out)
	}
}

func (s *session) printPrompt(out io.Writer) {
	label := "chat"
	if s.legal {
		label = "legal"
	}
	if s.id != "" {
		fmt.Fprint(out, color.HiBlackString("[%s %s]", label, shortID(s.id)), "> ")
		return
	}
	fmt.Fprint(out, color.HiBlackString("[%s]", label), "> ")
}

// send posts one line and remembers the session id the gateway returns.
func (s *session) send(ctx context.Context, text string, out io.Writer) error {
	req := QueryRequest{Query: text, ResumeSession: s.id}

	if s.stream {
		done, err := s.client.Stream(ctx, req, func(fragment string) {
			fmt.Fprint(out, fragment)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		if done.SessionID != "" {
			s.id = done.SessionID
		}
		return nil
	}

	path := "/api/chat"
	if s.legal {
		path = "/api/legal-query"
	}
	resp, err := s.client.Query(ctx, path, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Response)
	if resp.SessionID != "" {
		s.id = resp.SessionID
	}
	return nil
}

// runCommand handles "/run <name> [arguments]". The command's session
// becomes the current one so the next message continues it.
func (s *session) runCommand(ctx context.Context, line string, out io.Writer) error {
	name, args, _ := strings.Cut(line, " ")
	if name == "" {
		return errors.New("usage: /run <command> [arguments]")
	}

	resp, err := s.client.RunCommand(ctx, CommandRequest{Command: name, Arguments: strings.TrimSpace(args)})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Result)
	if resp.ResumeSession != "" {
		s.id = resp.ResumeSession
	}
	return nil
}

// printHelp displays available commands.
func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /new           Start a new conversation")
	fmt.Fprintln(out, "  /session       Show the current session id")
	fmt.Fprintln(out, "  /run NAME ARGS Run a command template")
	fmt.Fprintln(out, "  /help          Show this help")
	fmt.Fprintln(out, "  /quit          Exit")
}

// shortID abbreviates long session ids for the prompt.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
