package http

import (
	"strings"

	"chessanalysis/internal/server/core"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator validates JWT tokens
type TokenValidator func(token string) (userID string, claims map[string]any, err error)

// AuthRequired enforces JWT authentication for protected endpoints
func AuthRequired(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "missing authorization token",
				Code:  core.ErrUnauthorized,
			})
		}

		userID, _, err := validateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "invalid or expired token",
				Code:  core.ErrUnauthorized,
			})
		}

		c.Locals("userID", userID)
		return c.Next()
	}
}

// ExtractBearerToken extracts JWT token from Authorization header
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
