// handlers/play.go
package handlers

import (
	"bargain-arcade/services"

	"github.com/gofiber/fiber/v2"
)

// SetupPlayRoutes wires the storefront-facing session endpoints. These are
// public: the storefront widget calls them directly on behalf of shoppers.
func SetupPlayRoutes(app *fiber.App, sessions *services.SessionService, rewards *services.RewardService) {
	app.Post("/sessions/start", sessions.StartSession)
	app.Post("/sessions/finish", rewards.FinishSession)
	app.Get("/sessions/:id", sessions.GetSessionEndpoint)
}
