package ports

import (
	"context"
	"errors"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// ErrUnauthenticated means no signed-in user is available. Submissions
// failing this way are surfaced immediately, never queued — retrying
// without credentials can never succeed.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrEndpointUnavailable covers 404/405/501 and transport-level errors
// from the submission endpoint: the endpoint does not exist where we
// are pointed, so the durable fallback write applies instead of retry.
var ErrEndpointUnavailable = errors.New("submission endpoint unavailable")

// IdentityProvider exposes the current user and their bearer token.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (string, error)
	IDToken(ctx context.Context) (string, error)
}

// ReportEndpoint submits a report payload to the remote HTTP endpoint.
// Implementations classify failures: ErrEndpointUnavailable for
// 404/405/501/network errors, plain errors for other 4xx/5xx.
type ReportEndpoint interface {
	Send(ctx context.Context, payload []byte, token string) error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishDatasetRefreshed(ctx context.Context, recordCount int) error
	PublishReportQueued(ctx context.Context, entry *domain.OutboxEntry) error
	PublishReportSent(ctx context.Context, entryID string) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
