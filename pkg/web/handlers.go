package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/amitthk/local-llm-camera-app/pkg/hub"
	"github.com/amitthk/local-llm-camera-app/pkg/poller"
)

// SettingsRequest is the PUT /api/settings body. Absent fields are
// left unchanged.
type SettingsRequest struct {
	IntervalMS  *int    `json:"interval_ms"`
	Instruction *string `json:"instruction"`
	Model       *string `json:"model"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.poller.Status())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.poller.Start(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.poller.Status())
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.poller.Pause()
	return c.JSON(s.poller.Status())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.poller.StopAndRelease()
	return c.JSON(s.poller.Status())
}

func (s *Server) handleSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	// The interval is fixed for a run; reject mid-run changes so the
	// caller knows the value did not take.
	if req.IntervalMS != nil {
		d := time.Duration(*req.IntervalMS) * time.Millisecond
		if err := s.poller.SetInterval(d); err != nil {
			status := fiber.StatusBadRequest
			if errors.Is(err, poller.ErrRunning) {
				status = fiber.StatusConflict
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.Instruction != nil {
		s.poller.SetInstruction(*req.Instruction)
	}
	if req.Model != nil {
		s.poller.SetModel(*req.Model)
	}

	return c.JSON(s.poller.Status())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	if err := s.client.Health(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unreachable",
			"endpoint": s.client.BaseURL(),
			"error":    err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"endpoint": s.client.BaseURL(),
	})
}

func (s *Server) handleFrame(c *fiber.Ctx) error {
	s.frameMu.RLock()
	frame := s.lastFrame
	s.frameMu.RUnlock()

	if frame == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame dispatched yet"})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(frame)
}

// handleStatusWS streams status snapshots; the current one is sent on
// connect.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	c.WriteJSON(s.poller.Status())
	hub.NewClient(s.statusHub, c).Run()
}

// handleCameraWS streams dispatched frames as binary JPEG messages.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
