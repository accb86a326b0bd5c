package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// UserContextMiddleware extracts the player identity set by the Gateway.
// Every route it guards acts on behalf of a player, so a missing id is
// rejected.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Warn().Str("path", c.Path()).Msg("❌ [USER_CTX] X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		c.Locals("user_id", userID)
		log.Debug().Str("user_id", userID).Str("path", c.Path()).Msg("👤 [USER_CTX] request attributed")
		return c.Next()
	}
}
