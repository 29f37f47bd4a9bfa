package http

import (
	"github.com/nats-io/nats.go"

	"github.com/aitzolm/basomap/internal/adapters/postgres"
	"github.com/aitzolm/basomap/internal/adapters/valkey"
	"github.com/aitzolm/basomap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Dataset   *usecases.DatasetService
	Plans     *usecases.PlanService
	Reports   *usecases.ReportService
	Inventory *postgres.InventoryRepo
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
