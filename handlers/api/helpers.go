package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"mailbridge/models"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/syncer"
	"mailbridge/utils"
)

// mapError translates domain errors into the HTTP vocabulary: remote-state
// divergence is a 409 carrying the diagnostic text, policy violations are a
// 403, missing rows are a 404, bad input is a 400.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return utils.NotFoundError("not found", err)
	case errors.Is(err, storage.ErrDuplicate):
		return utils.ConflictError(err.Error(), err)
	case errors.Is(err, syncer.ErrStopUnresolved):
		return utils.ForbiddenError(err.Error(), err)
	case providers.IsValidationError(err):
		return utils.BadRequestError(err.Error(), err)
	case providers.IsConnectionError(err),
		providers.IsMessageNotFound(err),
		providers.IsFolderNotFound(err),
		providers.IsEmptyRefreshToken(err):
		return utils.ConflictError(err.Error(), err)
	default:
		utils.Log.Error("unclassified error: %v", err)
		return utils.InternalServerError("internal error", err)
	}
}

// actingUser reads the authenticated user placed in locals by the JWT
// middleware.
func actingUser(c *fiber.Ctx) (models.ActingUser, error) {
	user, ok := c.Locals("user").(models.ActingUser)
	if !ok {
		return models.ActingUser{}, utils.UnauthorizedError("authentication required", nil)
	}
	return user, nil
}

// paramID parses a positive int64 route parameter.
func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.BadRequestError("invalid "+name, err)
	}
	return id, nil
}
