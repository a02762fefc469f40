package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"mailbridge/models"
	"mailbridge/utils"
)

// JWTAuth validates a bearer token and places the acting user into locals.
// Tokens are minted by the surrounding platform; this service only verifies
// them. Claims carried: sub (user id), name, company.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return utils.UnauthorizedError("missing bearer token", nil)
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.UnauthorizedError("invalid token", err)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.UnauthorizedError("invalid token claims", nil)
		}

		user := models.ActingUser{}
		if sub, ok := claims["sub"].(string); ok {
			user.ID = sub
		}
		if name, ok := claims["name"].(string); ok {
			user.Name = name
		}
		if company, ok := claims["company"].(string); ok {
			user.Company = company
		}
		if user.ID == "" {
			return utils.UnauthorizedError("token missing subject", nil)
		}

		c.Locals("user", user)
		return c.Next()
	}
}
