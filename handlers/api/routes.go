package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"mailbridge/middleware"
)

// RegisterRoutes wires the HTTP surface. Tracking endpoints are public by
// nature (mail clients hit them); everything else sits behind JWT auth.
func (h *Handler) RegisterRoutes(app *fiber.App, jwtSecret string) {
	app.Get("/t/o/:token", h.HandleTrackOpen)
	app.Get("/t/c/:token", h.HandleTrackClick)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sync", websocket.New(h.hub.HandleWebSocket))

	auth := app.Group("", middleware.JWTAuth(jwtSecret))

	auth.Post("/accounts", h.HandleCreateAccount)
	auth.Get("/accounts", h.HandleListAccounts)
	auth.Get("/accounts/:id", h.HandleGetAccount)
	auth.Delete("/accounts/:id", h.HandleDeleteAccount)
	auth.Put("/accounts/:id/sync/enable", h.HandleEnableSync)
	auth.Put("/accounts/:id/sync/disable", h.HandleDisableSync)
	auth.Post("/accounts/:id/reauthorize", h.HandleReauthorize)

	auth.Get("/accounts/:id/folders", h.HandleListFolders)
	auth.Put("/folders/:folderId/syncable", h.HandleSetFolderSyncable)
	auth.Delete("/folders/:folderId", h.HandleDeleteFolder)

	auth.Get("/accounts/:id/folders/:folderId/messages", h.HandleListMessages)
	auth.Get("/folders/:folderId/messages/:id", h.HandleGetMessage)
	auth.Delete("/messages/:id", h.HandleDeleteMessage)
	auth.Post("/messages/:id/read", h.HandleMarkRead)
	auth.Post("/messages/:id/unread", h.HandleMarkUnread)
	auth.Get("/messages/:id/attachments/:attId", h.HandleDownloadAttachment)
	auth.Get("/messages/:id/tracking", h.HandleTrackingStats)

	auth.Post("/accounts/:id/messages", h.HandleSendMessage)
	auth.Post("/messages/:id/reply", h.HandleReply)
	auth.Post("/messages/:id/forward", h.HandleForward)
	auth.Post("/drafts/attachments", h.HandleUploadDraftAttachment)
}
