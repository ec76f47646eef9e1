package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/hub"
)

// handleStatus returns the dashboard state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleSetTier selects the tier used from the next frame on
func (s *Server) handleSetTier(c *fiber.Ctx) error {
	tier, err := executor.ParseTier(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := s.settings.SetTier(tier); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, executor.ErrUnknownTier) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("tier selected", "tier", tier)
	return c.JSON(s.Status())
}

// handleCropIncrement grows the crop by one step, saturating at the maximum
func (s *Server) handleCropIncrement(c *fiber.Ctx) error {
	crop := s.settings.IncrementCrop()
	s.logger.Debug("crop incremented", "crop", crop)
	return c.JSON(s.Status())
}

// handleCropDecrement shrinks the crop by one step, saturating at the minimum
func (s *Server) handleCropDecrement(c *fiber.Ctx) error {
	crop := s.settings.DecrementCrop()
	s.logger.Debug("crop decremented", "crop", crop)
	return c.JSON(s.Status())
}

// handleNotifications returns recent executor notifications
func (s *Server) handleNotifications(c *fiber.Ctx) error {
	return c.JSON(s.Notifications())
}

// handleSnapshot returns the last presented result as JPEG
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	s.lastMu.RLock()
	data := s.lastJPEG
	s.lastMu.RUnlock()

	if data == nil {
		return c.Status(fiber.StatusNoContent).Send(nil)
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handleGetCamera returns the camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera control not configured",
		})
	}
	return c.JSON(s.Camera.GetConfigJSON())
}

// handleUpdateCamera applies a partial camera configuration
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera control not configured",
		})
	}

	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := s.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("camera config updated", "params", params)
	return c.JSON(s.Camera.GetConfigJSON())
}

// handleResultWS streams presented results as binary JPEG messages
func (s *Server) handleResultWS(c *websocket.Conn) {
	s.lastMu.RLock()
	data := s.lastJPEG
	s.lastMu.RUnlock()

	// The write pump is not running yet, so this is the only writer
	if data != nil {
		if err := c.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}

	client := hub.NewClient(s.resultHub, c)
	if client == nil {
		return
	}
	client.Run()
}

// handleStatusWS streams status and notification events
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if err := c.WriteJSON(Event{Type: "status", Data: s.Status()}); err != nil {
		return
	}

	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	client.Run()
}
