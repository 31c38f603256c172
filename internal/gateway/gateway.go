// ABOUTME: Gateway orchestrator that coordinates the HTTP and gRPC servers
// ABOUTME: Wires engine, journal, and auth from config into one server

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/commands"
	"github.com/2389/parley-gateway/internal/config"
	"github.com/2389/parley-gateway/internal/conversation"
	"github.com/2389/parley-gateway/internal/engine"
	"github.com/2389/parley-gateway/internal/engine/claudecli"
	"github.com/2389/parley-gateway/internal/engine/demo"
	"github.com/2389/parley-gateway/internal/metrics"
	"github.com/2389/parley-gateway/internal/store"
)

// Profile names served by the gateway.
const (
	ProfileChat    = "chat"
	ProfileLegal   = "legal"
	ProfileCommand = "command"
)

// Gateway orchestrates the parley-gateway server components.
// It owns one conversation service per profile and the servers that expose them.
type Gateway struct {
	config   *config.Config
	engine   engine.Engine
	chat     *conversation.Service
	legal    *conversation.Service
	command  *conversation.Service
	commands *commands.Library
	store    store.Store // nil when the journal is disabled
	metrics  *metrics.Collector
	verifier *auth.JWTVerifier
	markdown goldmark.Markdown

	httpServer  *http.Server
	grpcServer  *grpc.Server // nil unless server.grpc_addr is set
	health      *health.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// Option customizes a Gateway built by New.
type Option func(*options)

type options struct {
	engine engine.Engine
	store  store.Store
}

// WithEngine replaces the engine selected by configuration.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithStore replaces the journal opened from configuration.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// newEngine builds the engine named by engine.kind.
func newEngine(cfg *config.Config, logger *slog.Logger) engine.Engine {
	switch cfg.Engine.Kind {
	case config.EngineDemo:
		return demo.New(cfg.Engine.DemoDelay)
	default:
		return claudecli.New(claudecli.Config{
			Command:      cfg.Engine.Command,
			Model:        cfg.Engine.Model,
			WorkDir:      cfg.Engine.WorkDir,
			AllowedTools: cfg.Engine.AllowedTools,
			Timeout:      cfg.Engine.Timeout,
			Logger:       logger,
		})
	}
}

// initStore opens the exchange journal. A nil store means journaling is off.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PARLEY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.Open(cfg.Database.Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gw := &Gateway{
		config:   cfg,
		engine:   o.engine,
		store:    o.store,
		markdown: newMarkdown(),
		logger:   logger.With("component", "gateway"),
	}

	if gw.engine == nil {
		gw.engine = newEngine(cfg, logger)
	}

	if gw.store == nil {
		s, err := initStore(cfg)
		if err != nil {
			return nil, err
		}
		gw.store = s
	}

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			gw.closeStore()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		gw.verifier = v
	}

	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New()
	}

	gw.chat = gw.newService(conversation.Profile{
		Name:         ProfileChat,
		Instructions: cfg.Profiles.Chat.Instructions,
		TurnLimit:    cfg.Profiles.Chat.TurnLimit,
	}, logger)
	gw.legal = gw.newService(conversation.Profile{
		Name:         ProfileLegal,
		Instructions: cfg.Profiles.Legal.Instructions,
		TurnLimit:    cfg.Profiles.Legal.TurnLimit,
		MaxTurnLimit: cfg.Profiles.Legal.MaxTurnLimit,
	}, logger)
	// Commands run on the chat settings; each request supplies its own instructions.
	gw.command = gw.newService(conversation.Profile{
		Name:         ProfileCommand,
		Instructions: cfg.Profiles.Chat.Instructions,
		TurnLimit:    cfg.Profiles.Chat.TurnLimit,
	}, logger)
	gw.commands = commands.NewDir(cfg.Commands.Dir)

	if cfg.Server.GRPCAddr != "" {
		gw.grpcServer, gw.health = newGRPCServer()
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

func (g *Gateway) newService(p conversation.Profile, logger *slog.Logger) *conversation.Service {
	opts := conversation.Options{
		Logger:       logger,
		KeepMessages: g.config.Debug.IncludeMessages,
	}
	// Assign only non-nil values so the interfaces stay nil when disabled.
	if g.store != nil {
		opts.Journal = g.store
	}
	if g.metrics != nil {
		opts.Metrics = g.metrics
	}
	return conversation.New(g.engine, p, opts)
}

// registerRoutes wires every endpoint. /api routes get auth when a secret is set.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no auth required
	g.handle(mux, "/health", http.HandlerFunc(g.handleHealth), false)
	g.handle(mux, "/health/ready", http.HandlerFunc(g.handleReady), false)

	g.handle(mux, "/api/chat", http.HandlerFunc(g.handleChat), true)
	g.handle(mux, "/api/legal-query", http.HandlerFunc(g.handleLegalQuery), true)
	g.handle(mux, "/api/legal-query-stream", http.HandlerFunc(g.handleLegalQueryStream), true)
	g.handle(mux, "/api/command", http.HandlerFunc(g.handleCommand), true)
	g.handle(mux, "/api/commands", http.HandlerFunc(g.handleListCommands), true)
	g.handle(mux, "/api/exchanges", http.HandlerFunc(g.handleListExchanges), true)
	g.handle(mux, "/api/exchanges/", http.HandlerFunc(g.handleGetExchange), true)
	g.handle(mux, "/api/stats/usage", http.HandlerFunc(g.handleUsageStats), true)

	if g.verifier != nil {
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	if g.metrics != nil {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
		g.logger.Info("metrics enabled", "path", g.config.Metrics.Path)
	}
}

func (g *Gateway) handle(mux *http.ServeMux, route string, h http.Handler, protected bool) {
	if protected && g.verifier != nil {
		h = auth.Middleware(g.verifier)(h)
	}
	if g.metrics != nil {
		h = g.metrics.Instrument(route, h)
	}
	mux.Handle(route, h)
}

// Handler returns the HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListeners creates standard TCP listeners for HTTP and, if configured, gRPC.
func (g *Gateway) setupTCPListeners() (httpLn, grpcLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
		"engine", g.engine.Name(),
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return httpLn, grpcLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning an error channel.
func (g *Gateway) startServers(httpLn, grpcLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpListener, grpcListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(httpListener, grpcListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context, since the run
// context is already canceled by the time this runs.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "parley-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns its listeners.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}

	if g.grpcServer != nil {
		_, port, err := net.SplitHostPort(g.config.Server.GRPCAddr)
		if err != nil {
			port = "50051"
		}
		grpcLn, err = g.tsnetServer.Listen("tcp", ":"+port)
		if err != nil {
			_ = httpLn.Close()
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}
	return httpLn, grpcLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeStore() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if g.health != nil {
		g.health.Shutdown()
	}

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.grpcServer != nil {
		g.shutdownGRPCServer(ctx)
	}

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.closeStore())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
