package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"mailbridge/utils"
)

// HandleDownloadAttachment serves a stored attachment's content.
func (h *Handler) HandleDownloadAttachment(c *fiber.Ctx) error {
	messageID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	attachmentID, err := paramID(c, "attId")
	if err != nil {
		return err
	}

	attachments, err := h.store.Attachments(c.Context(), messageID)
	if err != nil {
		return mapError(err)
	}
	for _, att := range attachments {
		if att.ID != attachmentID {
			continue
		}
		content, err := h.media.Read(att.Path)
		if err != nil {
			return utils.NotFoundError("attachment content missing", err)
		}
		c.Set("Content-Type", att.ContentType)
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		return c.Send(content)
	}

	return utils.NotFoundError("attachment not found", nil)
}
