package handlers

import (
	"github.com/gofiber/fiber/v2"

	"rps-wager-system/middleware"
	"rps-wager-system/services"
)

// SetupMatchRoutes mounts match creation, lookup and the join/move streams.
func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService, limiter *middleware.UserLimiter) {
	secured := app.Group("/matches", middleware.UserContextMiddleware(), middleware.RateLimit(limiter))

	secured.Post("/", matchService.CreateMatch)
	secured.Get("/", matchService.ListMatches)
	secured.Get("/:id", matchService.GetMatch)

	// 📡 SSE streams, one per connection
	secured.Get("/:id/join", matchService.StreamJoin)
	secured.Get("/:id/move", matchService.StreamMove)
}
