// Package web exposes the control surface: a JSON API over the loop's
// lifecycle plus websocket feeds for status updates and frame preview.
package web

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/amitthk/local-llm-camera-app/internal/metrics"
	"github.com/amitthk/local-llm-camera-app/pkg/hub"
	"github.com/amitthk/local-llm-camera-app/pkg/inference"
	"github.com/amitthk/local-llm-camera-app/pkg/poller"
)

// Server is the HTTP control server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	poller *poller.Poller
	client *inference.Client

	statusHub *hub.Hub
	cameraHub *hub.Hub

	frameMu   sync.RWMutex
	lastFrame []byte
}

// NewServer wires the API around a poller and inference client.
func NewServer(addr string, p *poller.Poller, client *inference.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		logger:    logger.With("component", "web"),
		poller:    p,
		client:    client,
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "camapp",
		DisableStartupMessage: true,
	})

	// CORS for local dashboards
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/start", s.handleStart)
	api.Post("/pause", s.handlePause)
	api.Post("/stop", s.handleStop)
	api.Put("/settings", s.handleSettings)
	api.Get("/health", s.handleHealth)
	api.Get("/frame.jpg", s.handleFrame)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	go s.statusHub.Run()
	go s.cameraHub.Run()

	s.logger.Info("control API listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server failed", "error", err)
		}
	}()
}

// PublishStatus fans a status snapshot out to websocket clients. Wire
// this to the poller's OnStatus callback.
func (s *Server) PublishStatus(st poller.Status) {
	s.statusHub.BroadcastJSON(st)
}

// PublishFrame stores the latest dispatched frame and fans it out to
// preview clients. Wire this to the poller's OnFrame callback.
func (s *Server) PublishFrame(jpeg []byte) {
	s.frameMu.Lock()
	s.lastFrame = jpeg
	s.frameMu.Unlock()

	s.cameraHub.BroadcastBinary(jpeg)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
