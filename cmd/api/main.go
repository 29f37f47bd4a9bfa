package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aitzolm/basomap/internal/adapters/http"
	"github.com/aitzolm/basomap/internal/adapters/identity"
	natsadapter "github.com/aitzolm/basomap/internal/adapters/nats"
	"github.com/aitzolm/basomap/internal/adapters/postgres"
	"github.com/aitzolm/basomap/internal/adapters/reporting"
	"github.com/aitzolm/basomap/internal/adapters/valkey"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/core/usecases"
	"github.com/aitzolm/basomap/internal/pkg/config"
	"github.com/aitzolm/basomap/internal/pkg/logging"
	"github.com/aitzolm/basomap/internal/pkg/metrics"
	"github.com/aitzolm/basomap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("basomap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Cache + durable outbox
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()
	outbox := valkey.NewOutboxStore(cache.Client())

	// Repos
	inventoryRepo := postgres.NewInventoryRepo(db)
	planRepo := postgres.NewPlanRepo(db)
	reportRepo := postgres.NewReportRepo(db)

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	var events ports.EventPublisher
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer publisher.Close()
		events = publisher
	}

	// Use cases
	datasetSvc := usecases.NewDatasetService(inventoryRepo, events, cfg.Dataset.RecordCap, cfg.Dataset.DrawBudget)
	planSvc := usecases.NewPlanService(planRepo, cache)
	reportSvc := usecases.NewReportService(
		identity.NewStaticProvider(cfg.Submission.ServiceUser, cfg.Submission.ServiceToken),
		reporting.NewSubmitter(cfg.Submission.EndpointURL),
		outbox,
		reportRepo,
		events,
	)
	if publisher != nil {
		reportSvc.Online = publisher.IsConnected
		// Connectivity regained replays the outbox. Installed after the
		// service is fully wired so the callback never sees a half-built
		// dependency graph.
		publisher.OnReconnect(func() { go reportSvc.HandleOnline(ctx) })
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Warm the working set; a cold store is not fatal, the first
	// viewport request retries the load.
	if err := datasetSvc.Load(ctx); err != nil {
		slog.Warn("initial inventory load failed", "error", err)
	}

	// Startup flush: anything queued before the last shutdown goes out
	// now.
	go reportSvc.HandleOnline(ctx)

	deps := &http.Dependencies{
		Dataset:   datasetSvc,
		Plans:     planSvc,
		Reports:   reportSvc,
		Inventory: inventoryRepo,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Basomap API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.basomap.eus",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
