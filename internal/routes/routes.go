package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gestiloc/gestiloc/internal/activation"
	"github.com/gestiloc/gestiloc/internal/auth"
	"github.com/gestiloc/gestiloc/internal/config"
	"github.com/gestiloc/gestiloc/internal/credential"
	"github.com/gestiloc/gestiloc/internal/middleware"
	"github.com/gestiloc/gestiloc/internal/notification"
	"github.com/gestiloc/gestiloc/internal/tenant"
	"github.com/gestiloc/gestiloc/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	var credRepo credential.Repository
	var tenants tenant.Directory
	if d.DB != nil {
		credRepo = credential.NewPostgresRepository(d.DB)
		tenants = tenant.NewPostgresDirectory(d.DB)
	} else {
		credRepo = credential.NewMemoryRepository()
		tenants = tenant.NewMemoryDirectory()
	}

	activationSvc := activation.NewService(credRepo, d.Cfg.TempCodeTTL)
	issuer, err := token.NewIssuer(credRepo, token.Config{
		AccessSecret:  []byte(d.Cfg.JWTSecret),
		RefreshSecret: []byte(d.Cfg.RefreshSecret),
		AccessTTL:     d.Cfg.AccessTokenTTL,
		RefreshTTL:    d.Cfg.RefreshTokenTTL,
		Issuer:        d.Cfg.AppName,
	})
	if err != nil {
		return err
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	authHandler := auth.NewHandler(activationSvc, issuer, tenants, notifier, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.PhoneRateLimit(d.Cache, 5)
	sessionGate := middleware.Session(issuer)
	RegisterAuthRoutes(api, authHandler, rateLimiter, sessionGate)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
