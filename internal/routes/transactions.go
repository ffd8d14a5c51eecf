package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/history"
)

// RegisterTransactionRoutes wires the read-only history endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *history.Handler) {
	r.Get("/transactions", h.List)
	r.Get("/transactions/:transactionId", h.Get)
}
