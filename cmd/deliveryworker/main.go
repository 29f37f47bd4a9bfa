package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/aitzolm/basomap/internal/adapters/identity"
	natsadapter "github.com/aitzolm/basomap/internal/adapters/nats"
	"github.com/aitzolm/basomap/internal/adapters/postgres"
	"github.com/aitzolm/basomap/internal/adapters/reporting"
	"github.com/aitzolm/basomap/internal/adapters/valkey"
	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/pkg/config"
	"github.com/aitzolm/basomap/internal/pkg/logging"
	"github.com/aitzolm/basomap/internal/workflows"
)

func main() {
	cfg, err := config.Load("basomap-deliveryworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// A typed-nil *Publisher must not reach the interface field, the
	// nil check in the activities would pass and dereference it.
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	var events ports.EventPublisher
	if err != nil {
		slog.Warn("nats unavailable, deliveries will not be announced", "error", err)
	} else {
		defer publisher.Close()
		events = publisher
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.DeliveryWorkflow)
	w.RegisterActivity(&workflows.DeliveryActivities{
		Outbox:   valkey.NewOutboxStore(cache.Client()),
		Reports:  postgres.NewReportRepo(db),
		Endpoint: reporting.NewSubmitter(cfg.Submission.EndpointURL),
		Identity: identity.NewStaticProvider(cfg.Submission.ServiceUser, cfg.Submission.ServiceToken),
		Publisher: events,
	})

	// Queued-report events start a delivery workflow each
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("jetstream unavailable, running worker without event trigger", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeReportQueued(ctx, func(ctx context.Context, entry *domain.OutboxEntry) error {
			_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        "deliver-" + entry.ID,
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflows.DeliveryWorkflow, workflows.DeliveryInput{EntryID: entry.ID})
			return err
		})
		if err != nil {
			slog.Warn("subscribe report.queued failed", "error", err)
		}
	}

	slog.Info("delivery worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
