package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"mailbridge/models"
	"mailbridge/utils"
)

type createAccountRequest struct {
	Email          string          `json:"email"`
	ConnectionType string          `json:"connection_type"`
	Credentials    json.RawMessage `json:"credentials"`
	OwnerUserID    *string         `json:"owner_user_id"`
	FromTemplate   string          `json:"from_template"`
}

// HandleCreateAccount registers a new mailbox endpoint. The connection is
// verified by listing remote folders before the row is written; a mailbox
// the service cannot reach is rejected up front.
func (h *Handler) HandleCreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("invalid request body", err)
	}
	if req.Email == "" {
		return utils.BadRequestError("email is required", nil)
	}
	connType := models.ConnectionType(req.ConnectionType)
	if !connType.Valid() {
		return utils.BadRequestError("unknown connection type "+req.ConnectionType, nil)
	}

	account := &models.Account{
		Email:          req.Email,
		ConnectionType: connType,
		Credentials:    string(req.Credentials),
		OwnerUserID:    req.OwnerUserID,
		FromTemplate:   req.FromTemplate,
		SyncState:      models.SyncEnabled,
	}

	client, err := h.clients.CreateClient(c.Context(), account)
	if err != nil {
		return mapError(err)
	}
	defer client.Close()

	if err := h.store.CreateAccount(c.Context(), account); err != nil {
		return mapError(err)
	}

	// Bootstrap the folder registry so the account is usable immediately.
	if _, err := h.sync.SyncFolders(c.Context(), account, client); err != nil {
		h.log.WithField("account", account.Email).Warn("initial folder sync failed: %v", err)
	}

	return c.Status(fiber.StatusCreated).JSON(account)
}

// HandleListAccounts lists every configured account.
func (h *Handler) HandleListAccounts(c *fiber.Ctx) error {
	accounts, err := h.store.ListAccounts(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"accounts": accounts})
}

// HandleGetAccount returns one account.
func (h *Handler) HandleGetAccount(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	account, err := h.store.GetAccount(c.Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(account)
}

// HandleDeleteAccount purges an account with everything hanging off it.
// Deletion is allowed from any sync state.
func (h *Handler) HandleDeleteAccount(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.store.GetAccount(c.Context(), id); err != nil {
		return mapError(err)
	}
	if err := h.store.PurgeAccount(c.Context(), id, h.media); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleEnableSync re-enables sync. Re-enabling a STOPPED account whose
// cause is unresolved is a policy violation and returns 403.
func (h *Handler) HandleEnableSync(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.sync.EnableSync(c.Context(), id); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"sync_state": models.SyncEnabled})
}

// HandleDisableSync disables sync, always reversible.
func (h *Handler) HandleDisableSync(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.sync.DisableSync(c.Context(), id); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"sync_state": models.SyncDisabled})
}

type reauthorizeRequest struct {
	Credentials json.RawMessage `json:"credentials"`
}

// HandleReauthorize records fresh credentials, resolves a STOPPED cause and
// resumes sync.
func (h *Handler) HandleReauthorize(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req reauthorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("invalid request body", err)
	}
	if err := h.sync.ResolveStop(c.Context(), id, string(req.Credentials)); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"sync_state": models.SyncEnabled})
}
