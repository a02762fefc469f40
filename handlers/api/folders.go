package api

import (
	"github.com/gofiber/fiber/v2"

	"mailbridge/utils"
)

// HandleListFolders lists an account's folders in display order with unread
// counts aggregated at read time.
func (h *Handler) HandleListFolders(c *fiber.Ctx) error {
	accountID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.store.GetAccount(c.Context(), accountID); err != nil {
		return mapError(err)
	}

	folders, err := h.store.ListFolders(c.Context(), accountID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"folders": folders})
}

type syncableRequest struct {
	Syncable bool `json:"syncable"`
}

// HandleSetFolderSyncable opts a folder in or out of sync passes.
func (h *Handler) HandleSetFolderSyncable(c *fiber.Ctx) error {
	folderID, err := paramID(c, "folderId")
	if err != nil {
		return err
	}
	var req syncableRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("invalid request body", err)
	}
	if err := h.store.SetFolderSyncable(c.Context(), folderID, req.Syncable); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"syncable": req.Syncable})
}

// HandleDeleteFolder purges a folder. Messages still reachable through
// another folder survive.
func (h *Handler) HandleDeleteFolder(c *fiber.Ctx) error {
	folderID, err := paramID(c, "folderId")
	if err != nil {
		return err
	}
	if _, err := h.store.FolderByID(c.Context(), folderID); err != nil {
		return mapError(err)
	}
	if err := h.store.PurgeFolder(c.Context(), folderID, h.media); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
