package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/loans"
)

// RegisterLoanRoutes wires loan endpoints. staffOnly gates officer decisions.
func RegisterLoanRoutes(r fiber.Router, h *loans.Handler, staffOnly fiber.Handler) {
	group := r.Group("/loans")
	group.Post("/", h.Apply)
	group.Get("/", h.List)
	group.Get("/:loanId", h.Get)
	group.Post("/:loanId/repay", h.Repay)

	group.Post("/:loanId/approve", staffOnly, h.Approve)
	group.Post("/:loanId/reject", staffOnly, h.Reject)
	group.Post("/:loanId/disburse", staffOnly, h.Disburse)
	group.Post("/:loanId/default", staffOnly, h.MarkDefaulted)
}
