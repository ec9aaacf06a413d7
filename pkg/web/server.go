// Package web serves the observer websocket endpoint and a small status API.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/elvinlabs/facetrack/pkg/hub"
)

// StatusFunc supplies the /api/status payload.
type StatusFunc func() map[string]any

// Server exposes the observer push channel over websocket.
type Server struct {
	app  *fiber.App
	port string
	hub  *hub.Hub
}

// NewServer builds the fiber app and routes.
func NewServer(port string, h *hub.Hub, status StatusFunc) *Server {
	s := &Server{port: port, hub: h}

	app := fiber.New(fiber.Config{
		AppName:               "facetrack",
		DisableStartupMessage: true,
	})

	// CORS for local dashboards
	app.Use(cors.New())

	app.Get("/api/status", func(c *fiber.Ctx) error {
		body := map[string]any{
			"observers": h.ClientCount(),
		}
		if status != nil {
			for k, v := range status() {
				body[k] = v
			}
		}
		return c.JSON(body)
	})

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tracking", websocket.New(func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		client.Run() // blocks until the observer disconnects
	}))

	s.app = app
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	return s.app.Listen(":" + s.port)
}

// Shutdown closes the listener and all observer connections.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
