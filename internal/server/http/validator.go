package http

import (
	"chessanalysis/internal/server/core"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// contentTypeValidator ensures POST requests with a body declare application/json
func contentTypeValidator(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		contentType := c.Get("Content-Type")
		if contentType != "application/json" && contentType != "" {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
