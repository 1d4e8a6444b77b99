// Package web serves the latest lane counts over HTTP and websocket.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/hub"
	"github.com/teslashibe/go-traffic/pkg/metrics"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

// Config holds HTTP server settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	AccessLog  bool   `yaml:"access_log"`
}

// DefaultConfig listens on all interfaces, port 5000.
func DefaultConfig() Config {
	return Config{ListenAddr: ":5000"}
}

// StatusSource reports the ingestion session. session.Manager implements it.
type StatusSource interface {
	State() session.State
	Session() (session.Session, bool)
	Stats() session.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithStatus adds session details to /api/status.
func WithStatus(src StatusSource) Option {
	return func(s *Server) { s.status = src }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub serves live counts on /ws/traffic. The caller runs the hub.
func WithHub(h *hub.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// Server is the query server
type Server struct {
	app     *fiber.App
	config  Config
	logger  *slog.Logger
	started time.Time

	state   *traffic.State
	status  StatusSource
	metrics *metrics.Metrics
	hub     *hub.Hub
}

// NewServer creates a server reading from state.
func NewServer(cfg Config, state *traffic.State, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		logger:  log.Component("web"),
		started: time.Now(),
		state:   state,
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-traffic",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/traffic", s.handleTraffic)
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	if s.hub != nil {
		// WebSocket upgrade middleware
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/traffic", websocket.New(s.handleTrafficWS))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	fmt.Printf("🌐 Traffic API: http://localhost%s/traffic\n", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// StartAsync starts the web server in a goroutine. Listen errors are sent on the
// returned channel.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "err", err)
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
