package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the request id and authentication middleware.
const (
	LocalRequestID = "request_id"
	LocalUserID    = "user_id"
	LocalRole      = "role"
)

const (
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 20
	// MaxLimit caps the page size a client may request.
	MaxLimit = 100
)

// ActorID returns the authenticated user id or a 401 error.
func ActorID(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

// RequestID returns the id assigned to the current request.
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalRequestID).(string)
	return id
}

// Role returns the authenticated user's role, or "" when unauthenticated.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(LocalRole).(string)
	return role
}

// ParsePage reads the 1-based page and limit query parameters. Limits are
// clamped to [1, MaxLimit].
func ParsePage(c *fiber.Ctx) (page, limit int, err error) {
	page, limit = 1, DefaultLimit
	if v := c.Query("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("%w: 'page' must be a positive integer", ErrValidationFailed)
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: 'limit' must be an integer", ErrValidationFailed)
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit, nil
}
