package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	registry *board.Registry,
	fingerprinter *board.Fingerprinter,
	healthHandler *handlers.HealthHandler,
	postHandler *handlers.PostHandler,
	moderationHandler *handlers.ModerationHandler,
	classifierHandler *handlers.ClassifierHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	api.Use(middleware.FingerprintMiddleware(fingerprinter))

	api.Get("/health", healthHandler.Check)

	// Boards: public, :board validated against boards.json
	boards := api.Group("/boards/:board", middleware.BoardMiddleware(registry))
	boards.Post("/posts", postHandler.Create)
	boards.Get("/threads/:id", postHandler.GetThread)

	// Reports: stricter limit: 10 req/min per IP
	api.Post("/posts/:id/reports", limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), moderationHandler.CreateReport)

	// Legacy read-only admin access, only when an allowlist is configured.
	// Registered before /admin so the token guard does not run for it.
	if legacy := cfg.LegacyFingerprints(); len(legacy) > 0 {
		old := api.Group("/admin/legacy", middleware.LegacyAllowlistRequired(legacy))
		old.Get("/stats", moderationHandler.GetStats)
	}

	admin := api.Group("/admin", middleware.AdminRequired(middleware.NewAdminGuard(cfg.AdminToken)))
	admin.Get("/moderation/queue", moderationHandler.GetQueue)
	admin.Get("/moderation/stats", moderationHandler.GetStats)
	admin.Get("/moderation/logs", moderationHandler.ListLogs)
	admin.Get("/moderation/posts/:id/reports", moderationHandler.GetPostReports)
	admin.Post("/moderation/scan", moderationHandler.Scan)
	admin.Post("/moderation/posts/:id/approve", moderationHandler.Approve)
	admin.Post("/moderation/posts/:id/reject", moderationHandler.Reject)

	admin.Get("/classifier/config", classifierHandler.GetConfig)
	admin.Put("/classifier/config", classifierHandler.PutConfig)
	admin.Put("/classifier/categories/:name", classifierHandler.PutCategory)
	admin.Delete("/classifier/categories/:name", classifierHandler.DeleteCategory)
	admin.Post("/classifier/test", classifierHandler.Test)
}
