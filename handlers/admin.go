// handlers/admin.go
package handlers

import (
	"bargain-arcade/middleware"
	"bargain-arcade/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes wires the merchant dashboard surfaces: usage metering and
// game configuration. All of them sit behind the shared-token auth.
func SetupAdminRoutes(app *fiber.App, usage *services.UsageService, config *services.ConfigService) {
	auth := middleware.AdminAuthMiddleware()

	app.Get("/usage/discount-limit", auth, usage.GetDiscountLimit)
	app.Get("/usage/summary", auth, usage.GetUsageSummary)

	app.Get("/config", auth, config.GetConfigEndpoint)
	app.Put("/config", auth, config.UpdateConfigEndpoint)
}
