// Command relay starts the session relay server.
//
// It supports three commands:
//  1. "serve" (default) – accepts producers on /create and consumers on /join
//     and fans every producer payload out to the consumers of its session
//  2. "bench" – drives a running relay with synthetic sessions and reports
//     delivery counts and ordering
//  3. "mcp" – runs an MCP stdio server that inspects a running relay
//
// Settings come from the environment (and an optional .env file); flags
// override them when given. An ngrok tunnel can be enabled for easy external
// access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/session-relay/api"
	"github.com/wricardo/session-relay/bench"
	"github.com/wricardo/session-relay/relay/config"
	"github.com/wricardo/session-relay/relay/logger"
	"github.com/wricardo/session-relay/relay/metrics"
	"github.com/wricardo/session-relay/relay/service"
	"github.com/wricardo/session-relay/relay/session"
	"github.com/wricardo/session-relay/transport/listener"
	"github.com/wricardo/session-relay/transport/mcp"
	"github.com/wricardo/session-relay/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Session Relay"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newApp builds the command tree. The root runs the server so that a bare
// invocation behaves like "relay serve".
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "relay",
		Usage:   AppName,
		Version: Version,
		Flags:   serverFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the relay server (default)",
				Action: runServe,
			},
			{
				Name:   "bench",
				Usage:  "Load test a running relay",
				Flags:  benchFlags(),
				Action: runBench,
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP over stdio against a running relay",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Relay HTTP base URL", Value: "http://127.0.0.1:3000"},
				},
				Action: runMCP,
			},
		},
	}
}

// serverFlags override environment settings when explicitly set
func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "env-file", Usage: "Optional dotenv file", Value: ".env"},
		&cli.StringFlag{Name: "host", Usage: "Listen host (default 0.0.0.0, env HOST)"},
		&cli.IntFlag{Name: "port", Usage: "Listen port (default 3000, env PORT)"},
		&cli.IntFlag{Name: "backlog", Usage: "TCP accept backlog (default 256, env BACKLOG)"},
		&cli.IntFlag{Name: "send-queue", Usage: "Pending payloads per connection (default 256, env SEND_QUEUE_SIZE)"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (env LOG_LEVEL)"},
		&cli.BoolFlag{Name: "log-pretty", Usage: "Human readable logs (env LOG_PRETTY)"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel (env NGROK_ENABLED)"},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token (or use NGROK_AUTHTOKEN env var)"},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)"},
	}
}

func benchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "url", Usage: "Relay WebSocket base URL", Value: "ws://127.0.0.1:3000"},
		&cli.IntFlag{Name: "sessions", Usage: "Concurrent sessions", Value: 10},
		&cli.IntFlag{Name: "consumers", Usage: "Consumers per session", Value: 5},
		&cli.IntFlag{Name: "messages", Usage: "Payloads per producer", Value: 100},
		&cli.DurationFlag{Name: "interval", Usage: "Pause between payloads"},
		&cli.StringFlag{Name: "prefix", Usage: "Session ID prefix (random by default)"},
		&cli.DurationFlag{Name: "ready-timeout", Usage: "How long consumers may take to join", Value: 5 * time.Second},
		&cli.DurationFlag{Name: "receive-timeout", Usage: "Longest wait for the next payload", Value: 10 * time.Second},
	}
}

// loadConfig reads the environment and applies explicitly set flags on top
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("backlog") {
		cfg.Backlog = int(cmd.Int("backlog"))
	}
	if cmd.IsSet("send-queue") {
		cfg.SendQueueSize = int(cmd.Int("send-queue"))
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-pretty") {
		cfg.LogPretty = cmd.Bool("log-pretty")
	}
	if cmd.IsSet("ngrok") {
		cfg.NgrokEnabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.NgrokAuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.NgrokDomain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Out:    os.Stdout,
	})
}

// runServe loads settings, opens the listener and serves until SIGINT or SIGTERM
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := listener.Listen(ctx, cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("version", Version).
		Str("addr", ln.Addr().String()).
		Int("backlog", cfg.Backlog).
		Msg("Starting " + AppName)

	return newRelayServer(cfg, log).Run(ctx, ln)
}

// relayServer wires the registry, lifecycle handler and HTTP surface together
type relayServer struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	registry *session.Registry
	handler  *websocket.Handler
	router   http.Handler
}

func newRelayServer(cfg *config.Config, log zerolog.Logger) *relayServer {
	m := metrics.NewMetrics()
	registry := session.NewRegistry(log, m)
	handler := websocket.NewHandler(registry, websocket.Options{
		MaxMessageSize: cfg.MaxMessageSize,
		SendQueueSize:  cfg.SendQueueSize,
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
	}, log, m)

	relayService := service.NewRelayService(registry, handler)
	apiServer := api.NewServer(relayService, handler, m.Handler(), log)
	apiServer.HandleMCP(mcp.NewServer(relayService, Version, log))

	return &relayServer{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		registry: registry,
		handler:  handler,
		router:   apiServer,
	}
}

func (s *relayServer) httpServer() *http.Server {
	// No WriteTimeout: it would cut off hijacked WebSocket connections
	return &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// Run serves on ln (and the ngrok tunnel when enabled) until ctx is done,
// then closes every connection and waits up to ShutdownTimeout.
func (s *relayServer) Run(ctx context.Context, ln net.Listener) error {
	httpServer := s.httpServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if s.cfg.NgrokEnabled {
		g.Go(func() error {
			s.serveNgrok(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked connections are invisible to http.Server.Shutdown
		if err := s.handler.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Int("connections", s.handler.Connections()).Msg("Connections still open at shutdown deadline")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		s.log.Info().Msg("Server stopped")
		return nil
	})

	return g.Wait()
}

// serveNgrok exposes the same router through an ngrok tunnel. Tunnel
// failures are logged and leave the local listener running.
func (s *relayServer) serveNgrok(ctx context.Context) {
	if s.cfg.NgrokAuthToken == "" {
		s.log.Warn().Msg("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if s.cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(s.cfg.NgrokDomain))
		s.log.Info().Str("domain", s.cfg.NgrokDomain).Msg("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(s.cfg.NgrokAuthToken))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to start ngrok tunnel")
		return
	}

	srv := s.httpServer()
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	url := tun.URL()
	s.log.Info().
		Str("url", url).
		Str("producer", url+session.CreatePath+"?"+session.SessionIDParam+"=<id>").
		Str("consumer", url+session.JoinPath+"?"+session.SessionIDParam+"=<id>").
		Msg("Ngrok tunnel established")

	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn().Err(err).Msg("Ngrok server error")
	}
	s.log.Info().Msg("Ngrok tunnel closed")
}

// runBench drives a running relay and prints the report
func runBench(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := bench.DefaultOptions()
	opts.URL = cmd.String("url")
	opts.Sessions = int(cmd.Int("sessions"))
	opts.ConsumersPerSession = int(cmd.Int("consumers"))
	opts.Messages = int(cmd.Int("messages"))
	opts.Interval = cmd.Duration("interval")
	opts.ReadyTimeout = cmd.Duration("ready-timeout")
	opts.ReceiveTimeout = cmd.Duration("receive-timeout")
	if cmd.IsSet("prefix") {
		opts.Prefix = cmd.String("prefix")
	}
	opts.Logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := bench.Run(ctx, opts)

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "sessions=%d consumers=%d sent=%d received=%d/%d lost=%d out_of_order=%d duration=%s rate=%.0f/s\n",
		report.Sessions, report.Consumers, report.Sent, report.Received, report.Expected,
		report.Lost(), report.OutOfOrder, report.Duration.Truncate(time.Millisecond), report.Rate())

	return err
}

// runMCP serves the MCP tools over stdio. Stdout carries the protocol, so
// logs go to stderr.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Out:    os.Stderr,
	})

	baseURL := cmd.String("url")
	log.Info().Str("url", baseURL).Msg("MCP stdio server ready")

	mcpServer := mcp.NewServer(mcp.NewClient(baseURL), Version, log)
	if err := server.ServeStdio(mcpServer.MCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
