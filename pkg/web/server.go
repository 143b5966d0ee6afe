// Package web is the system's protocol boundary: it exposes frame
// ingestion and query submission over HTTP, plus status and live event
// surfaces for dashboards.
package web

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/sightline-ai/go-sightline/pkg/hub"
	"github.com/sightline-ai/go-sightline/pkg/query"
	"github.com/sightline-ai/go-sightline/pkg/reason"
	"github.com/sightline-ai/go-sightline/pkg/session"
	"github.com/sightline-ai/go-sightline/pkg/storage"
	"github.com/sightline-ai/go-sightline/pkg/stt"
	"github.com/sightline-ai/go-sightline/pkg/tts"
)

// Config wires the server's collaborators together.
type Config struct {
	Registry     *session.Registry
	Backend      storage.Backend
	Orchestrator *query.Orchestrator
	Events       *hub.Hub

	// Providers, for health reporting only.
	STT    stt.Provider
	Reason reason.Provider
	TTS    tts.Provider

	Logger *slog.Logger
}

// Server is the HTTP ingress for frames and queries.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	started        time.Time
	framesIngested atomic.Int64

	// ingestSeq disambiguates frame keys when timestamps collide at
	// second resolution.
	ingestSeq atomic.Uint64
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "web"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "sightline",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	app.Post("/image_stream", s.handleImageStream)
	app.Post("/query", s.handleQuery)

	app.Get("/healthz", s.handleHealthz)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/devices", s.handleDevices)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Listen starts serving on addr and blocks.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handleEventsWS streams pipeline events to one dashboard client.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.cfg.Events, c).Run()
}
