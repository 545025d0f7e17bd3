// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminAuthMiddleware validates the shared Bearer token on merchant
// dashboard routes (config, usage). Storefront play routes stay public.
func AdminAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ADMIN_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("ADMIN_SERVICE_TOKEN is not set — admin routes cannot authenticate")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			zap.L().Warn("admin auth: missing Authorization header", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication token missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			zap.L().Warn("admin auth: invalid token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authentication token",
			})
		}

		return c.Next()
	}
}
