package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/redis/go-redis/v9"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/cachestore"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/database"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/guardstore"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/linkpreview"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/logging"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/routes"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	stdoutHandler := logging.Setup(cfg.AppEnv)

	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.AdminToken == "" {
		// Admin endpoints answer 503 until a token is set.
		slog.Warn("ADMIN_TOKEN is not set, admin endpoints are disabled")
	}
	if cfg.FingerprintSalt == "" {
		slog.Warn("FINGERPRINT_SALT is not set, fingerprints are unsalted")
	}

	// Board registry
	registry, err := board.LoadFromFile(cfg.BoardsConfigPath)
	if err != nil {
		slog.Error("failed to load board registry", "path", cfg.BoardsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("board registry loaded", "boards", len(registry.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdoutHandler, pgLogHandler)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Guard state and preview cache: Redis when configured, otherwise
	// in-process.
	var guardStore guardstore.Store
	var previewCache cachestore.CacheStore
	checks := map[string]handlers.HealthCheck{"db": database.Ping}
	sweepDone := make(chan struct{})
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		guardStore = guardstore.NewRedisStore(rdb, services.DuplicateWindow)
		previewCache = cachestore.NewRedisCacheStore(rdb, cfg.PreviewCacheTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		slog.Info("using redis for guard state and preview cache")
	} else {
		mem := guardstore.NewMemStore()
		mem.StartSweeper(time.Minute, services.DuplicateWindow, sweepDone)
		guardStore = mem
		previewCache = cachestore.NewMemCacheStore(10_000, cfg.PreviewCacheTTL)
	}

	// Classifier: database config with the static file as fallback
	static, err := classifier.NewStaticSource(cfg.ClassifierStaticPath)
	if err != nil {
		slog.Error("failed to load static classifier config", "path", cfg.ClassifierStaticPath, "error", err)
		os.Exit(1)
	}
	classifierRepo := classifier.NewRepository(database.DB)
	contentClassifier := classifier.New(classifier.NewProvider(classifierRepo, static, cfg.ClassifierCacheTTL))
	classifierRepo.OnWrite(contentClassifier.Provider().Invalidate)

	// Link previews
	fetcher := linkpreview.NewFetcher(linkpreview.Options{
		Timeout:     cfg.PreviewTimeout,
		MaxBytes:    cfg.PreviewMaxBytes,
		SkipDomains: cfg.SkipDomains(),
		Rate:        cfg.PreviewRate,
	})

	// Services
	moderationService := services.NewModerationService(database.DB, contentClassifier)
	postService := services.NewPostService(
		database.DB,
		services.NewSubmissionGuard(guardStore),
		linkpreview.NewCachedFetcher(fetcher, previewCache),
		moderationService,
		cfg.ScanOnSubmit,
	)
	postService.SetPreviewPolicy(func(boardID string) bool {
		return registry.HasFeature(boardID, board.FeatureLinkPreviews)
	})

	// Background moderation sweep
	scanDone := make(chan struct{})
	services.StartSweeper(moderationService, cfg.ScanInterval, cfg.ScanBatchSize, scanDone)

	// Handlers
	healthHandler := handlers.NewHealthHandler(registry, checks)
	postHandler := handlers.NewPostHandler(postService)
	moderationHandler := handlers.NewModerationHandler(moderationService)
	classifierHandler := handlers.NewClassifierHandler(classifierRepo, static, contentClassifier, moderationService)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    256 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	// Routes
	routes.Setup(app, cfg, registry, board.NewFingerprinter(cfg.FingerprintSalt),
		healthHandler, postHandler, moderationHandler, classifierHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(scanDone)
	close(sweepDone)
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"board_id", board.GetBoardID(c),
			"error", err.Error(),
		)
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
