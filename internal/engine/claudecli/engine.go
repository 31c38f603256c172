// ABOUTME: Engine adapter that drives the claude CLI in stream-json mode
// ABOUTME: Streams assistant text and session ids as engine events

package claudecli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/2389/parley-gateway/internal/engine"
)

const (
	// DefaultCommand is the CLI looked up on PATH when none is configured.
	DefaultCommand = "claude"

	// DefaultTimeout bounds one invocation when the caller sets no deadline.
	DefaultTimeout = 5 * time.Minute

	// maxLineSize caps a single stream-json line.
	maxLineSize = 16 * 1024 * 1024

	// maxStderr caps how much stderr is kept for diagnostics.
	maxStderr = 8 * 1024
)

// Config holds CLI invocation settings.
type Config struct {
	Command      string
	Model        string
	WorkDir      string
	AllowedTools []string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// process is a started CLI invocation.
type process interface {
	Stdout() io.Reader
	Wait() error
}

// startFunc launches the CLI. Tests replace it with a fake.
type startFunc func(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) (process, error)

// Engine implements engine.Engine by running the claude CLI.
type Engine struct {
	cfg    Config
	start  startFunc
	lookup func(string) (string, error)
	logger *slog.Logger
}

// New creates a CLI-backed engine.
func New(cfg Config) *Engine {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		start:  startProcess,
		lookup: exec.LookPath,
		logger: logger.With("component", "claudecli"),
	}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "claude" }

// Ready implements engine.ReadinessChecker by resolving the CLI on PATH.
func (e *Engine) Ready(context.Context) error {
	if _, err := e.lookup(e.cfg.Command); err != nil {
		return fmt.Errorf("claude CLI not available: %w", err)
	}
	return nil
}

// Query implements engine.Engine.
func (e *Engine) Query(ctx context.Context, prompt string, cfg engine.Config) (<-chan *engine.Event, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	runCtx, cancel := withDefaultTimeout(ctx, e.cfg.Timeout)
	args := buildArgs(e.cfg, cfg)

	e.logger.Debug("starting claude",
		"resume", cfg.Continue,
		"turn_limit", cfg.TurnLimit,
		"args", len(args),
	)

	proc, err := e.start(runCtx, e.cfg.WorkDir, strings.NewReader(prompt), e.cfg.Command, args...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting claude: %w", err)
	}

	out := make(chan *engine.Event)
	go func() {
		defer close(out)
		defer cancel()
		e.pump(ctx, runCtx, cancel, proc, out)
	}()
	return out, nil
}

// pump forwards parsed stdout lines until EOF, then reports the exit status.
// Events are delivered under the caller's ctx; runCtx bounds the process.
// Early exits cancel the process before waiting so a blocked writer can't hang Wait.
func (e *Engine) pump(ctx, runCtx context.Context, stop context.CancelFunc, proc process, out chan<- *engine.Event) {
	abort := func() {
		stop()
		_ = proc.Wait()
	}

	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		ev, err := parseLine(scanner.Bytes())
		if err != nil {
			abort()
			engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: err})
			return
		}
		if ev == nil {
			continue
		}
		if !engine.Send(ctx, out, ev) {
			abort()
			return
		}
		if ev.Err != nil {
			abort()
			return
		}
	}

	scanErr := scanner.Err()
	waitErr := proc.Wait()

	switch {
	case runCtx.Err() != nil:
		engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: fmt.Errorf("claude query interrupted: %w", runCtx.Err())})
	case scanErr != nil:
		engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: fmt.Errorf("reading claude output: %w", scanErr)})
	case waitErr != nil:
		engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: waitErr})
	}
}

// buildArgs assembles CLI flags. The prompt itself goes over stdin.
func buildArgs(cli Config, cfg engine.Config) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if cfg.TurnLimit > 0 {
		args = append(args, "--max-turns", strconv.Itoa(cfg.TurnLimit))
	}
	if cfg.Instructions != "" {
		args = append(args, "--system-prompt", cfg.Instructions)
	}
	if cfg.Continue && cfg.ResumeToken != "" {
		args = append(args, "--resume", cfg.ResumeToken)
	}
	if cli.Model != "" {
		args = append(args, "--model", cli.Model)
	}
	if len(cli.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cli.AllowedTools, ","))
	}
	return args
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// execProcess wraps an os/exec command with captured stderr.
type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *limitedBuffer
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	stderr := strings.TrimSpace(p.stderr.String())
	if isAuthMessage(stderr) {
		return fmt.Errorf("%w: %s", ErrAuthentication, stderr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{ExitCode: exitErr.ExitCode(), Stderr: stderr, Err: err}
	}
	return &ProcessError{ExitCode: -1, Stderr: stderr, Err: err}
}

func startProcess(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) (process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	stderr := &limitedBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
