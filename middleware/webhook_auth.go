package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// WebhookAuth guards the engagement intake with the shared token each
// provider is configured to send as a `token` query parameter. An empty
// secret rejects everything: the intake must never run open.
func WebhookAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Webhook intake is not configured",
			})
		}
		provided := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid webhook token",
			})
		}
		return c.Next()
	}
}
