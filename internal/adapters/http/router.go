package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/aitzolm/basomap/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Sunset headers for the pre-rename inventory route
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{
			Path:        "/v1/trees",
			SunsetDate:  time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			Alternative: "/v1/inventory",
		},
	}))

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/inventory", timeout.NewWithContext(InventoryHandler(deps), 15*time.Second))
	v1.Get("/inventory/export.csv", timeout.NewWithContext(ExportCSVHandler(deps), 30*time.Second))
	v1.Get("/inventory/nearby", timeout.NewWithContext(NearbyHandler(deps), 15*time.Second))
	v1.Get("/inventory/status", timeout.NewWithContext(InventoryStatusHandler(deps), 15*time.Second))
	v1.Post("/inventory/stats", timeout.NewWithContext(AreaStatsHandler(deps), 15*time.Second))
	v1.Post("/inventory/refresh", timeout.NewWithContext(RefreshInventoryHandler(deps), 30*time.Second))

	// Legacy alias, kept until the sunset date above
	v1.Get("/trees", timeout.NewWithContext(InventoryHandler(deps), 15*time.Second))

	v1.Get("/plans", timeout.NewWithContext(ListPlansHandler(deps), 15*time.Second))
	v1.Post("/plans", timeout.NewWithContext(CreatePlanHandler(deps), 15*time.Second))
	v1.Get("/plans/:id", timeout.NewWithContext(GetPlanHandler(deps), 15*time.Second))
	v1.Put("/plans/:id", timeout.NewWithContext(UpdatePlanHandler(deps), 15*time.Second))
	v1.Delete("/plans/:id", timeout.NewWithContext(DeletePlanHandler(deps), 15*time.Second))
	v1.Get("/plans/:id/reports", timeout.NewWithContext(PlanReportsHandler(deps), 15*time.Second))

	v1.Post("/reports", timeout.NewWithContext(CreateReportHandler(deps), 15*time.Second))
	v1.Get("/reports/:id", timeout.NewWithContext(GetReportHandler(deps), 15*time.Second))
	v1.Delete("/reports/:id", timeout.NewWithContext(DeleteReportHandler(deps), 15*time.Second))

	// Submission can spend the full retry schedule before answering
	v1.Post("/reports/submit", timeout.NewWithContext(SubmitReportHandler(deps), 60*time.Second))

	v1.Get("/outbox", timeout.NewWithContext(ListOutboxHandler(deps), 15*time.Second))
	v1.Post("/outbox/flush", timeout.NewWithContext(FlushOutboxHandler(deps), 120*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(ViewportStreamHandler(deps)))
}
