package api

import (
	"github.com/gofiber/fiber/v2"
)

// HandleListMessages serves one page of a folder's messages, newest first.
func (h *Handler) HandleListMessages(c *fiber.Ctx) error {
	folderID, err := paramID(c, "folderId")
	if err != nil {
		return err
	}
	if _, err := h.store.FolderByID(c.Context(), folderID); err != nil {
		return mapError(err)
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 50)

	result, err := h.store.ListMessages(c.Context(), folderID, page, pageSize)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(result)
}

// HandleGetMessage fetches one message. Opening an unread message marks it
// read, remote first; a failure to propagate the flag does not block the
// read itself.
func (h *Handler) HandleGetMessage(c *fiber.Ctx) error {
	messageID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	msg, err := h.store.GetMessage(c.Context(), messageID)
	if err != nil {
		return mapError(err)
	}

	if !msg.Read {
		if err := h.sync.MarkRead(c.Context(), msg.AccountID, msg.ID); err != nil {
			h.log.WithField("message", msg.ID).Warn("mark-read on open failed: %v", err)
		} else {
			msg.Read = true
		}
	}

	attachments, err := h.store.Attachments(c.Context(), msg.ID)
	if err != nil {
		return mapError(err)
	}
	associations, err := h.store.Associations(c.Context(), msg.ID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"message":      msg,
		"attachments":  attachments,
		"associations": associations,
	})
}

// HandleDeleteMessage removes a message from the local mirror.
func (h *Handler) HandleDeleteMessage(c *fiber.Ctx) error {
	messageID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.sync.DeleteMessage(c.Context(), messageID); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleMarkRead flips a message read, remote first.
func (h *Handler) HandleMarkRead(c *fiber.Ctx) error {
	return h.setRead(c, true)
}

// HandleMarkUnread flips a message unread, remote first.
func (h *Handler) HandleMarkUnread(c *fiber.Ctx) error {
	return h.setRead(c, false)
}

func (h *Handler) setRead(c *fiber.Ctx, read bool) error {
	messageID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	msg, err := h.store.GetMessage(c.Context(), messageID)
	if err != nil {
		return mapError(err)
	}

	if read {
		err = h.sync.MarkRead(c.Context(), msg.AccountID, msg.ID)
	} else {
		err = h.sync.MarkUnread(c.Context(), msg.AccountID, msg.ID)
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"read": read})
}
