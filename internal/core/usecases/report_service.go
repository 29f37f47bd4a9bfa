package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/pkg/metrics"
)

// SubmitStatus is the prompt outcome of a submission attempt.
type SubmitStatus string

const (
	// StatusSent means the report reached the endpoint (or the durable
	// fallback write) during the initial attempt window.
	StatusSent SubmitStatus = "sent"
	// StatusQueued means the report was persisted to the outbox for a
	// later flush pass.
	StatusQueued SubmitStatus = "queued"
)

const (
	maxSendAttempts = 5
	// maxLifetimeAttempts retires an entry that keeps failing across
	// flush passes; a permanently invalid payload must not be retried
	// forever.
	maxLifetimeAttempts = 25

	backoffInitial = 500 * time.Millisecond
	backoffCap     = 8 * time.Second
)

// ReportService submits work reports and manages the durable outbox.
// Submission never blocks callers past the initial attempt-or-enqueue
// decision; queued entries are flushed on startup and whenever
// connectivity returns.
type ReportService struct {
	identity  ports.IdentityProvider
	endpoint  ports.ReportEndpoint
	outbox    ports.OutboxStore
	reports   ports.ReportRepository
	publisher ports.EventPublisher

	// Now, Sleep and Online are indirections over the clock, the
	// backoff delay and the connectivity probe so flush behavior is
	// testable without real timers.
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Online func() bool
}

// NewReportService creates a ReportService. reports is the durable
// fallback store used when the endpoint is unavailable; publisher may
// be nil.
func NewReportService(
	identity ports.IdentityProvider,
	endpoint ports.ReportEndpoint,
	outbox ports.OutboxStore,
	reports ports.ReportRepository,
	publisher ports.EventPublisher,
) *ReportService {
	return &ReportService{
		identity:  identity,
		endpoint:  endpoint,
		outbox:    outbox,
		reports:   reports,
		publisher: publisher,
		Now:       time.Now,
		Sleep:     sleepCtx,
		Online:    func() bool { return true },
	}
}

// backoffDelay is the pure retry schedule: 500ms doubling per attempt,
// capped at 8s. attempt is 1-based.
func backoffDelay(attempt int) time.Duration {
	d := backoffInitial << (attempt - 1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SubmitReport attempts to deliver a report payload. Unauthenticated
// submissions fail hard — they are never queued, since resubmission
// without credentials cannot succeed. Connectivity and server failures
// queue the payload instead; an unavailable endpoint falls back to the
// document store.
func (s *ReportService) SubmitReport(ctx context.Context, payload json.RawMessage) (SubmitStatus, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil || user == "" {
		return "", fmt.Errorf("submit report: %w", ports.ErrUnauthenticated)
	}
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return "", fmt.Errorf("submit report: %w", ports.ErrUnauthenticated)
	}

	if !s.Online() {
		if err := s.enqueue(ctx, payload, 0); err != nil {
			return "", err
		}
		return StatusQueued, nil
	}

	attempts, err := s.trySend(ctx, payload, token)
	switch {
	case err == nil:
		metrics.ReportsSent.Inc()
		return StatusSent, nil
	case errors.Is(err, ports.ErrEndpointUnavailable):
		if fbErr := s.fallbackWrite(ctx, payload); fbErr == nil {
			metrics.ReportsSent.Inc()
			return StatusSent, nil
		}
	}

	if err := s.enqueue(ctx, payload, attempts); err != nil {
		return "", err
	}
	return StatusQueued, nil
}

// trySend walks the Pending → Retrying(attempt) states: up to five
// attempts with the backoff schedule between them. An unavailable
// endpoint aborts immediately — more attempts at a missing route
// cannot help.
func (s *ReportService) trySend(ctx context.Context, payload []byte, token string) (attempts int, err error) {
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		err = s.endpoint.Send(ctx, payload, token)
		if err == nil {
			return attempt, nil
		}
		if errors.Is(err, ports.ErrEndpointUnavailable) {
			return attempt, err
		}
		if attempt < maxSendAttempts {
			if sleepErr := s.Sleep(ctx, backoffDelay(attempt)); sleepErr != nil {
				return attempt, err
			}
		}
	}
	return maxSendAttempts, err
}

// fallbackWrite records the report directly in the document store when
// the endpoint route does not exist.
func (s *ReportService) fallbackWrite(ctx context.Context, payload json.RawMessage) error {
	var report domain.WorkReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("decode report payload: %w", err)
	}
	if err := s.reports.Create(ctx, &report); err != nil {
		return fmt.Errorf("fallback write: %w", err)
	}
	slog.Info("report stored via fallback write", "report_id", report.ID)
	return nil
}

func (s *ReportService) enqueue(ctx context.Context, payload json.RawMessage, attempts int) error {
	entry := domain.OutboxEntry{
		ID:         newEntryID(s.Now()),
		Payload:    payload,
		Attempts:   attempts,
		EnqueuedAt: s.Now(),
	}
	if err := s.outbox.Put(ctx, entry); err != nil {
		return fmt.Errorf("enqueue report: %w", err)
	}
	metrics.ReportsQueued.Inc()
	if s.publisher != nil {
		_ = s.publisher.PublishReportQueued(ctx, &entry)
	}
	slog.Info("report queued for later delivery", "entry_id", entry.ID)
	return nil
}

// FlushOutbox retries every queued entry once over. Each pass gives an
// entry a fresh attempt budget; the per-entry lifetime counter retires
// entries that exceed maxLifetimeAttempts. A successful send removes
// the entry before moving to the next.
func (s *ReportService) FlushOutbox(ctx context.Context) (sent int, err error) {
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush outbox: %w", ports.ErrUnauthenticated)
	}

	entries, err := s.outbox.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush outbox: %w", err)
	}

	for _, entry := range entries {
		if entry.Attempts >= maxLifetimeAttempts {
			slog.Warn("retiring outbox entry after too many attempts",
				"entry_id", entry.ID, "attempts", entry.Attempts)
			_ = s.outbox.Delete(ctx, entry.ID)
			continue
		}

		attempts, sendErr := s.trySend(ctx, entry.Payload, token)
		if sendErr != nil {
			entry.Attempts += attempts
			if putErr := s.outbox.Put(ctx, entry); putErr != nil {
				slog.Warn("could not update outbox entry", "entry_id", entry.ID, "error", putErr)
			}
			continue
		}

		if delErr := s.outbox.Delete(ctx, entry.ID); delErr != nil {
			return sent, fmt.Errorf("remove sent entry %s: %w", entry.ID, delErr)
		}
		sent++
		metrics.OutboxFlushed.Inc()
		if s.publisher != nil {
			_ = s.publisher.PublishReportSent(ctx, entry.ID)
		}
	}
	return sent, nil
}

// Create stores a report in the document store without submitting it.
func (s *ReportService) Create(ctx context.Context, report *domain.WorkReport) error {
	if report.Author == "" {
		user, err := s.identity.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("create report: %w", ports.ErrUnauthenticated)
		}
		report.Author = user
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = s.Now()
	}
	if report.TreesCut < 0 || report.VolumeM3 < 0 {
		return errors.New("create report: negative quantities")
	}
	return s.reports.Create(ctx, report)
}

// GetByID returns a stored report.
func (s *ReportService) GetByID(ctx context.Context, id string) (*domain.WorkReport, error) {
	return s.reports.GetByID(ctx, id)
}

// ListByPlan returns reports filed against a plan, newest first. An
// empty planID lists all reports.
func (s *ReportService) ListByPlan(ctx context.Context, planID string) ([]domain.WorkReport, error) {
	return s.reports.ListByPlan(ctx, planID)
}

// DeleteReport removes a stored report.
func (s *ReportService) DeleteReport(ctx context.Context, id string) error {
	return s.reports.Delete(ctx, id)
}

// PendingEntries exposes the queued outbox entries for inspection.
func (s *ReportService) PendingEntries(ctx context.Context) ([]domain.OutboxEntry, error) {
	return s.outbox.List(ctx)
}

// HandleOnline is the connectivity-restored hook: wired to the broker
// reconnect callback at startup.
func (s *ReportService) HandleOnline(ctx context.Context) {
	sent, err := s.FlushOutbox(ctx)
	if err != nil {
		slog.Warn("outbox flush after reconnect failed", "error", err)
		return
	}
	if sent > 0 {
		slog.Info("outbox flushed after reconnect", "sent", sent)
	}
}

func newEntryID(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%d:%s", now.UnixMilli(), hex.EncodeToString(b))
}
