package handlers

import (
	"github.com/gofiber/fiber/v2"

	"rps-wager-system/middleware"
	"rps-wager-system/services"
)

func SetupAccountRoutes(app *fiber.App, accountService *services.AccountService, limiter *middleware.UserLimiter) {
	secured := app.Group("/accounts", middleware.UserContextMiddleware(), middleware.RateLimit(limiter))

	secured.Post("/", accountService.Register)
	secured.Get("/me", accountService.GetMe)
	secured.Get("/me/transactions", accountService.ListTransactions)
	secured.Post("/transfer", accountService.Transfer)
}
