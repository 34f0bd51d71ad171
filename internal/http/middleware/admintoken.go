package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"pulsetrack/internal/settings"
)

// AdminTokenAuth middleware validates the admin API token.
// Expects: Authorization: Bearer <token>
func AdminTokenAuth(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		// Extract Bearer token
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <token>",
			})
		}

		providedToken := strings.TrimPrefix(authHeader, "Bearer ")
		if providedToken == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin token is empty",
			})
		}

		if err := settings.VerifyAdminToken(db, providedToken); err != nil {
			if err == settings.ErrNoAdminToken {
				logger.Warn("Admin token not configured")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Admin token not configured. Rotate one with ptctl.",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin token",
			})
		}

		return c.Next()
	}
}
