package api

import (
	"github.com/gofiber/fiber/v2"
)

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// HandleTrackOpen records an open and serves the pixel. Unknown tokens still
// get the pixel; a broken image in a recipient's client helps nobody.
func (h *Handler) HandleTrackOpen(c *fiber.Ctx) error {
	token := c.Params("token")
	if err := h.store.RecordOpen(c.Context(), token); err != nil {
		h.log.Debug("open for unknown tracking token %s", token)
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(trackingPixel)
}

// HandleTrackClick records a click and redirects to the original target.
func (h *Handler) HandleTrackClick(c *fiber.Ctx) error {
	token := c.Params("token")
	target := c.Query("u")
	if target == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if err := h.store.RecordClick(c.Context(), token); err != nil {
		h.log.Debug("click for unknown tracking token %s", token)
	}

	return c.Redirect(target, fiber.StatusFound)
}

// HandleTrackingStats reports open and click counts for a sent message.
func (h *Handler) HandleTrackingStats(c *fiber.Ctx) error {
	messageID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.store.GetMessage(c.Context(), messageID); err != nil {
		return mapError(err)
	}

	opens, clicks, err := h.store.TrackingStats(c.Context(), messageID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"opens": opens, "clicks": clicks})
}
