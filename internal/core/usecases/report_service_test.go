package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/core/usecases"
)

// --- Mock IdentityProvider ---

type mockIdentity struct {
	user  string
	token string
}

func (m *mockIdentity) CurrentUser(ctx context.Context) (string, error) {
	if m.user == "" {
		return "", ports.ErrUnauthenticated
	}
	return m.user, nil
}

func (m *mockIdentity) IDToken(ctx context.Context) (string, error) {
	if m.token == "" {
		return "", ports.ErrUnauthenticated
	}
	return m.token, nil
}

// --- Mock ReportEndpoint ---

type mockEndpoint struct {
	sendFn func(ctx context.Context, payload []byte, token string) error
	calls  int
}

func (m *mockEndpoint) Send(ctx context.Context, payload []byte, token string) error {
	m.calls++
	if m.sendFn != nil {
		return m.sendFn(ctx, payload, token)
	}
	return nil
}

// --- In-memory OutboxStore ---

type memOutbox struct {
	entries map[string]domain.OutboxEntry
}

func newMemOutbox() *memOutbox {
	return &memOutbox{entries: make(map[string]domain.OutboxEntry)}
}

func (m *memOutbox) Put(ctx context.Context, entry domain.OutboxEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func (m *memOutbox) Delete(ctx context.Context, id string) error {
	delete(m.entries, id)
	return nil
}

func (m *memOutbox) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	out := make([]domain.OutboxEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Mock ReportRepository ---

type mockReportRepo struct {
	created []*domain.WorkReport
}

func (m *mockReportRepo) Create(ctx context.Context, report *domain.WorkReport) error {
	m.created = append(m.created, report)
	return nil
}

func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*domain.WorkReport, error) {
	return nil, nil
}

func (m *mockReportRepo) ListByPlan(ctx context.Context, planID string) ([]domain.WorkReport, error) {
	return nil, nil
}

func (m *mockReportRepo) Delete(ctx context.Context, id string) error { return nil }

func newTestService(endpoint *mockEndpoint, outbox *memOutbox, repo *mockReportRepo) (*usecases.ReportService, *[]time.Duration) {
	svc := usecases.NewReportService(
		&mockIdentity{user: "aitzol", token: "tok-1"},
		endpoint, outbox, repo, nil,
	)
	var delays []time.Duration
	svc.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return svc, &delays
}

var payload = json.RawMessage(`{"plan_id":"p1","trees_cut":40,"volume_m3":32.5}`)

func TestSubmitReport_Sent(t *testing.T) {
	endpoint := &mockEndpoint{}
	outbox := newMemOutbox()
	svc, _ := newTestService(endpoint, outbox, &mockReportRepo{})

	status, err := svc.SubmitReport(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != usecases.StatusSent {
		t.Errorf("expected sent, got %s", status)
	}
	if endpoint.calls != 1 {
		t.Errorf("expected 1 send attempt, got %d", endpoint.calls)
	}
	if len(outbox.entries) != 0 {
		t.Errorf("expected empty outbox, got %d entries", len(outbox.entries))
	}
}

func TestSubmitReport_Unauthenticated(t *testing.T) {
	outbox := newMemOutbox()
	svc := usecases.NewReportService(&mockIdentity{}, &mockEndpoint{}, outbox, &mockReportRepo{}, nil)

	_, err := svc.SubmitReport(context.Background(), payload)
	if !errors.Is(err, ports.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if len(outbox.entries) != 0 {
		t.Error("unauthenticated submission must never be queued")
	}
}

func TestSubmitReport_Offline(t *testing.T) {
	endpoint := &mockEndpoint{}
	outbox := newMemOutbox()
	svc, _ := newTestService(endpoint, outbox, &mockReportRepo{})
	svc.Online = func() bool { return false }

	status, err := svc.SubmitReport(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != usecases.StatusQueued {
		t.Errorf("expected queued, got %s", status)
	}
	if endpoint.calls != 0 {
		t.Errorf("offline submission must not hit the endpoint, got %d calls", endpoint.calls)
	}

	entries, _ := outbox.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("expected 1 queued entry, got %d", len(entries))
	}
	if entries[0].Attempts != 0 {
		t.Errorf("expected 0 recorded attempts, got %d", entries[0].Attempts)
	}
}

func TestSubmitReport_BackoffSchedule(t *testing.T) {
	endpoint := &mockEndpoint{sendFn: func(ctx context.Context, payload []byte, token string) error {
		return errors.New("503 from endpoint")
	}}
	outbox := newMemOutbox()
	svc, delays := newTestService(endpoint, outbox, &mockReportRepo{})

	status, err := svc.SubmitReport(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != usecases.StatusQueued {
		t.Errorf("expected queued after exhausted attempts, got %s", status)
	}
	if endpoint.calls != 5 {
		t.Errorf("expected 5 attempts, got %d", endpoint.calls)
	}

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
	}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %d", len(want), len(*delays))
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}

	entries, _ := outbox.List(context.Background())
	if len(entries) != 1 || entries[0].Attempts != 5 {
		t.Errorf("expected queued entry with 5 attempts, got %+v", entries)
	}
}

func TestSubmitReport_UnavailableEndpointFallsBack(t *testing.T) {
	endpoint := &mockEndpoint{sendFn: func(ctx context.Context, payload []byte, token string) error {
		return ports.ErrEndpointUnavailable
	}}
	outbox := newMemOutbox()
	repo := &mockReportRepo{}
	svc, delays := newTestService(endpoint, outbox, repo)

	status, err := svc.SubmitReport(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != usecases.StatusSent {
		t.Errorf("expected sent via fallback, got %s", status)
	}
	if endpoint.calls != 1 {
		t.Errorf("unavailable endpoint must abort after 1 attempt, got %d", endpoint.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no backoff sleeps, got %d", len(*delays))
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 fallback write, got %d", len(repo.created))
	}
	if repo.created[0].PlanID != "p1" || repo.created[0].TreesCut != 40 {
		t.Errorf("fallback write lost payload fields: %+v", repo.created[0])
	}
	if len(outbox.entries) != 0 {
		t.Error("fallback-written report must not also be queued")
	}
}

func TestFlushOutbox_DrainsQueue(t *testing.T) {
	endpoint := &mockEndpoint{}
	outbox := newMemOutbox()
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "1:a", Payload: payload})
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "2:b", Payload: payload})
	svc, _ := newTestService(endpoint, outbox, &mockReportRepo{})

	sent, err := svc.FlushOutbox(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Errorf("expected 2 sent, got %d", sent)
	}
	if len(outbox.entries) != 0 {
		t.Errorf("expected drained outbox, got %d entries", len(outbox.entries))
	}
}

func TestFlushOutbox_PersistsAttemptsOnFailure(t *testing.T) {
	endpoint := &mockEndpoint{sendFn: func(ctx context.Context, payload []byte, token string) error {
		return errors.New("still failing")
	}}
	outbox := newMemOutbox()
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "1:a", Payload: payload, Attempts: 5})
	svc, _ := newTestService(endpoint, outbox, &mockReportRepo{})

	sent, err := svc.FlushOutbox(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("expected 0 sent, got %d", sent)
	}

	entries, _ := outbox.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("expected entry retained, got %d", len(entries))
	}
	// Prior 5 attempts plus this pass's 5.
	if entries[0].Attempts != 10 {
		t.Errorf("expected lifetime attempts 10, got %d", entries[0].Attempts)
	}
}

func TestFlushOutbox_RetiresExhaustedEntry(t *testing.T) {
	endpoint := &mockEndpoint{}
	outbox := newMemOutbox()
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "1:a", Payload: payload, Attempts: 25})
	svc, _ := newTestService(endpoint, outbox, &mockReportRepo{})

	sent, err := svc.FlushOutbox(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("retired entry must not count as sent, got %d", sent)
	}
	if endpoint.calls != 0 {
		t.Errorf("retired entry must not be attempted, got %d calls", endpoint.calls)
	}
	if len(outbox.entries) != 0 {
		t.Error("expected exhausted entry removed")
	}
}

func TestFlushOutbox_SurvivesRestart(t *testing.T) {
	// Queue with a failing endpoint, then flush from a fresh service
	// sharing the same store, as a restart would.
	outbox := newMemOutbox()
	failing := &mockEndpoint{sendFn: func(ctx context.Context, payload []byte, token string) error {
		return errors.New("503 from endpoint")
	}}
	svc1, _ := newTestService(failing, outbox, &mockReportRepo{})
	if _, err := svc1.SubmitReport(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	working := &mockEndpoint{}
	svc2, _ := newTestService(working, outbox, &mockReportRepo{})
	sent, err := svc2.FlushOutbox(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected queued report delivered after restart, got %d", sent)
	}
	if len(outbox.entries) != 0 {
		t.Error("expected outbox drained after restart flush")
	}
}

func TestCreateReport_FillsDefaults(t *testing.T) {
	repo := &mockReportRepo{}
	svc, _ := newTestService(&mockEndpoint{}, newMemOutbox(), repo)
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }

	report := &domain.WorkReport{PlanID: "p1", TreesCut: 12, VolumeM3: 9.5}
	if err := svc.Create(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Author != "aitzol" {
		t.Errorf("expected author filled from identity, got %q", report.Author)
	}
	if !report.ReportedAt.Equal(fixed) {
		t.Errorf("expected reported_at defaulted, got %v", report.ReportedAt)
	}
	if len(repo.created) != 1 {
		t.Errorf("expected 1 stored report, got %d", len(repo.created))
	}
}

func TestCreateReport_RejectsNegativeQuantities(t *testing.T) {
	repo := &mockReportRepo{}
	svc, _ := newTestService(&mockEndpoint{}, newMemOutbox(), repo)

	err := svc.Create(context.Background(), &domain.WorkReport{Author: "a", TreesCut: -1})
	if err == nil {
		t.Fatal("expected error for negative trees_cut")
	}
	if len(repo.created) != 0 {
		t.Error("invalid report must not be stored")
	}
}
