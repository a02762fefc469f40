package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"

	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/syncer"
	"mailbridge/utils"
)

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing row", storage.ErrNotFound, fiber.StatusNotFound},
		{"duplicate row", fmt.Errorf("account a@b.c: %w", storage.ErrDuplicate), fiber.StatusConflict},
		{"unresolved stop", syncer.ErrStopUnresolved, fiber.StatusForbidden},
		{"bad input", &providers.ValidationError{Message: "missing recipient"}, fiber.StatusBadRequest},
		{"remote divergence", &providers.MessageNotFoundError{RemoteID: "m1"}, fiber.StatusConflict},
		{"transport failure", &providers.ConnectionError{Op: "dial", Err: errors.New("refused")}, fiber.StatusConflict},
		{"revoked auth", &providers.EmptyRefreshTokenError{Email: "a@b.c"}, fiber.StatusConflict},
		{"unclassified", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var appErr *utils.AppError
			if !errors.As(mapError(tc.err), &appErr) {
				t.Fatal("expected an AppError")
			}
			if appErr.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, appErr.Code)
			}
		})
	}

	if mapError(nil) != nil {
		t.Fatal("nil must map to nil")
	}
}
