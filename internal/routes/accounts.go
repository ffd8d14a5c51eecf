package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/savings"
)

// RegisterAccountRoutes wires savings account endpoints. staffOnly gates the
// status change.
func RegisterAccountRoutes(r fiber.Router, h *savings.Handler, staffOnly fiber.Handler) {
	group := r.Group("/accounts")
	group.Post("/", h.Open)
	group.Get("/", h.List)
	group.Get("/:accountId", h.Get)
	group.Post("/:accountId/deposit", h.Deposit)
	group.Post("/:accountId/withdraw", h.Withdraw)
	group.Patch("/:accountId/status", staffOnly, h.ChangeStatus)
}
