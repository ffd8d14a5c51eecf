package routes

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// RegisterHealthRoutes adds a readiness endpoint that pings Postgres and Redis
// concurrently. A dependency running in memory reports "memory".
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		var mu sync.Mutex
		checks := fiber.Map{"postgres": "memory", "redis": "memory"}
		healthy := true
		record := func(name string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}

		var g errgroup.Group
		if d.DB != nil {
			g.Go(func() error {
				record("postgres", d.DB.Ping(ctx))
				return nil
			})
		}
		if d.Cache != nil {
			g.Go(func() error {
				record("redis", d.Cache.Ping(ctx).Err())
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
