package ports

import (
	"context"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// InventorySource fetches raw inventory records from the document store,
// capped at limit. Records come back in the store's loosely-typed wire
// shape; callers normalize before use.
type InventorySource interface {
	FetchRecords(ctx context.Context, limit int) ([]domain.RawTreeRecord, error)
}

// PlanRepository persists work plans.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.WorkPlan) error
	GetByID(ctx context.Context, id string) (*domain.WorkPlan, error)
	List(ctx context.Context) ([]domain.WorkPlan, error)
	Update(ctx context.Context, plan *domain.WorkPlan) error
	Delete(ctx context.Context, id string) error
}

// ReportRepository persists work reports. Create doubles as the durable
// fallback write when the submission endpoint is unavailable.
type ReportRepository interface {
	Create(ctx context.Context, report *domain.WorkReport) error
	GetByID(ctx context.Context, id string) (*domain.WorkReport, error)
	ListByPlan(ctx context.Context, planID string) ([]domain.WorkReport, error)
	Delete(ctx context.Context, id string) error
}

// OutboxStore is the durable queue of not-yet-confirmed report
// submissions. Keys are opaque entry ids; entries survive restarts
// until explicitly deleted after a confirmed send.
type OutboxStore interface {
	Put(ctx context.Context, entry domain.OutboxEntry) error
	Delete(ctx context.Context, id string) error
	// List returns all queued entries ordered by id, which sorts
	// enqueue-time first.
	List(ctx context.Context) ([]domain.OutboxEntry, error)
}
