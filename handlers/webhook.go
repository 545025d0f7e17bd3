// handlers/webhook.go
package handlers

import (
	"bargain-arcade/middleware"
	"bargain-arcade/services"

	"github.com/gofiber/fiber/v2"
)

// SetupWebhookRoutes wires the commerce-platform webhooks. Authentication is
// the HMAC signature, not the admin token.
func SetupWebhookRoutes(app *fiber.App, webhooks *services.WebhookService) {
	hooks := app.Group("/webhooks", middleware.WebhookAuthMiddleware())

	hooks.Post("/orders/create", webhooks.HandleOrderCreated)
}
