package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/susubank/susubank/internal/auth"
	"github.com/susubank/susubank/internal/config"
	"github.com/susubank/susubank/internal/history"
	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identifier"
	"github.com/susubank/susubank/internal/identity"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/loans"
	"github.com/susubank/susubank/internal/middleware"
	"github.com/susubank/susubank/internal/notification"
	"github.com/susubank/susubank/internal/savings"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Without a
// database the ledger and users live in memory, which only development allows.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Timeout(d.Cfg.RequestTimeout))

	RegisterHealthRoutes(app, d)

	var (
		store        ledger.Store
		identityRepo identity.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("no database configured, using in-memory stores")
		store = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	ids := identifier.New()
	notifier := notification.NewLoggerNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	savingsSvc := savings.NewService(store, ids, d.Logger)
	loanSvc := loans.NewService(store, ids, notifier, d.Logger)
	historySvc := history.NewService(store)

	if d.Cfg.AdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		admin, err := identitySvc.EnsureUser(ctx, identity.Registration{
			FirstName: "System",
			LastName:  "Administrator",
			Email:     d.Cfg.AdminEmail,
			Password:  d.Cfg.AdminPassword,
			Role:      identity.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		d.Logger.Info("admin account ready", slog.String("user_id", admin.ID))
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": httpx.RequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	authHandler := auth.NewHandler(identitySvc, authSvc)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute, d.Logger))

	// Protected routes
	guards := []fiber.Handler{middleware.JWTAuth(authSvc)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected := api.Group("", guards...)
	staffOnly := middleware.RequireRole(identity.RoleLoanOfficer, identity.RoleAdmin)

	RegisterSessionRoutes(protected, authHandler)
	RegisterAccountRoutes(protected, savings.NewHandler(savingsSvc), staffOnly)
	RegisterLoanRoutes(protected, loans.NewHandler(loanSvc), staffOnly)
	RegisterTransactionRoutes(protected, history.NewHandler(historySvc))

	return nil
}
