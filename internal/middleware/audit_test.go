package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/logging"
)

func TestRequestIDKeepsValidClientID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(httpx.RequestID(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "client-abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "client-abc-123", resp.Header.Get(requestIDHeader))
}

func TestRequestIDReplacesInvalidClientID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1)} {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		if bad != "" {
			req.Header.Set(requestIDHeader, bad)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		got := resp.Header.Get(requestIDHeader)
		assert.NotEmpty(t, got)
		assert.NotEqual(t, bad, got)
	}
}

func TestAuditLogsRenderedStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Use(RequestID())
	app.Use(Audit(logger))
	app.Get("/missing", func(c *fiber.Ctx) error {
		c.Locals(httpx.LocalUserID, "user-1")
		return fiber.NewError(fiber.StatusNotFound, "gone")
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "WARN", line["level"])
	assert.EqualValues(t, fiber.StatusNotFound, line["status"])
	assert.Equal(t, "/missing", line["route"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.NotEmpty(t, line["request_id"])
}
