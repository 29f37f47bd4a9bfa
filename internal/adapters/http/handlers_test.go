package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/aitzolm/basomap/internal/adapters/http"
	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/core/usecases"
)

// ---- Mock ports ----

type mockInventorySource struct {
	fetchFn func(ctx context.Context, limit int) ([]domain.RawTreeRecord, error)
}

func (m *mockInventorySource) FetchRecords(ctx context.Context, limit int) ([]domain.RawTreeRecord, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, limit)
	}
	return nil, nil
}

type mockPlanRepo struct {
	createFn func(ctx context.Context, p *domain.WorkPlan) error
	getFn    func(ctx context.Context, id string) (*domain.WorkPlan, error)
	listFn   func(ctx context.Context) ([]domain.WorkPlan, error)
	updateFn func(ctx context.Context, p *domain.WorkPlan) error
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockPlanRepo) Create(ctx context.Context, p *domain.WorkPlan) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}
func (m *mockPlanRepo) GetByID(ctx context.Context, id string) (*domain.WorkPlan, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errors.New("not found")
}
func (m *mockPlanRepo) List(ctx context.Context) ([]domain.WorkPlan, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}
func (m *mockPlanRepo) Update(ctx context.Context, p *domain.WorkPlan) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, p)
	}
	return nil
}
func (m *mockPlanRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockReportRepo struct {
	createFn func(ctx context.Context, r *domain.WorkReport) error
	listFn   func(ctx context.Context, planID string) ([]domain.WorkReport, error)
}

func (m *mockReportRepo) Create(ctx context.Context, r *domain.WorkReport) error {
	if m.createFn != nil {
		return m.createFn(ctx, r)
	}
	return nil
}
func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*domain.WorkReport, error) {
	return nil, errors.New("not found")
}
func (m *mockReportRepo) ListByPlan(ctx context.Context, planID string) ([]domain.WorkReport, error) {
	if m.listFn != nil {
		return m.listFn(ctx, planID)
	}
	return nil, nil
}
func (m *mockReportRepo) Delete(ctx context.Context, id string) error { return nil }

// memOutbox is an in-memory ports.OutboxStore.
type memOutbox struct {
	mu      sync.Mutex
	entries map[string]domain.OutboxEntry
}

func newMemOutbox() *memOutbox {
	return &memOutbox{entries: make(map[string]domain.OutboxEntry)}
}

func (m *memOutbox) Put(ctx context.Context, e domain.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}
func (m *memOutbox) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
func (m *memOutbox) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OutboxEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

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

type mockEndpoint struct {
	sendFn func(ctx context.Context, payload []byte, token string) error
}

func (m *mockEndpoint) Send(ctx context.Context, payload []byte, token string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, payload, token)
	}
	return nil
}

// ---- Test helpers ----

func rawRecord(id string, lat, lon float64, species string, height float64) domain.RawTreeRecord {
	return domain.RawTreeRecord{
		ID:      id,
		Lat:     lat,
		Lng:     lon,
		Species: species,
		Height:  height,
	}
}

func standSource() *mockInventorySource {
	return &mockInventorySource{
		fetchFn: func(ctx context.Context, limit int) ([]domain.RawTreeRecord, error) {
			return []domain.RawTreeRecord{
				rawRecord("t1", 43.10, -2.50, "Pinus radiata", 18),
				rawRecord("t2", 43.20, -2.60, "Pinus radiata", 22),
				rawRecord("t3", 43.30, -2.70, "Quercus robur", 12),
				rawRecord("t4", 45.00, -2.50, "Pinus radiata", 25), // outside test viewport
			}, nil
		},
	}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	reportSvc := usecases.NewReportService(
		&mockIdentity{user: "ranger", token: "tok"},
		&mockEndpoint{},
		newMemOutbox(),
		&mockReportRepo{},
		nil,
	)
	reportSvc.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	d := &handler.Dependencies{
		Dataset: usecases.NewDatasetService(standSource(), nil, 0, 0),
		Plans:   usecases.NewPlanService(&mockPlanRepo{}, nil),
		Reports: reportSvc,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

const testViewport = "min_lat=43.0&min_lon=-3.0&max_lat=44.0&max_lon=-2.0"

// ---- Inventory handler tests ----

func TestInventory_Success(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory?"+testViewport, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Records       []domain.TreeRecord `json:"records"`
		RenderedCount int                 `json:"rendered_count"`
		VisibleCount  int                 `json:"visible_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.VisibleCount != 3 {
		t.Errorf("expected 3 visible records, got %d", result.VisibleCount)
	}
	if len(result.Records) != 3 {
		t.Errorf("expected 3 rendered records, got %d", len(result.Records))
	}
}

func TestInventory_MissingViewport(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory?min_lat=43", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request error, got %s", apiErr.Code)
	}
}

func TestInventory_InvertedViewport(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory?min_lat=44&min_lon=-3&max_lat=43&max_lon=-2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestInventory_SpeciesFilter(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory?"+testViewport+"&species=Quercus+robur", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Records []domain.TreeRecord `json:"records"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Records) != 1 || result.Records[0].ID != "t3" {
		t.Errorf("expected only t3, got %+v", result.Records)
	}
}

func TestInventory_HeightBound(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory?"+testViewport+"&min_height_m=20", nil)
	resp, _ := app.Test(req, -1)

	var result struct {
		Records []domain.TreeRecord `json:"records"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Records) != 1 || result.Records[0].ID != "t2" {
		t.Errorf("expected only t2 above 20m, got %+v", result.Records)
	}
}

func TestInventory_StaleSetAfterFailedRefresh(t *testing.T) {
	source := standSource()
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Dataset = usecases.NewDatasetService(source, nil, 0, 0)
	})
	app := setupApp(deps)

	// Warm load
	req := httptest.NewRequest("GET", "/v1/inventory?"+testViewport, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("warm load: expected 200, got %d", resp.StatusCode)
	}

	// Store goes away; refresh fails but the stale set survives
	source.fetchFn = func(ctx context.Context, limit int) ([]domain.RawTreeRecord, error) {
		return nil, errors.New("connection refused")
	}
	req = httptest.NewRequest("POST", "/v1/inventory/refresh", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("refresh: expected 500, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/inventory?"+testViewport, nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("stale read: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Records []domain.TreeRecord `json:"records"`
		Notice  string              `json:"notice"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Records) != 3 {
		t.Errorf("expected stale set of 3 records, got %d", len(result.Records))
	}
	if result.Notice == "" {
		t.Error("expected a stale-data notice")
	}
}

func TestInventory_LoadFailureNoData(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Dataset = usecases.NewDatasetService(&mockInventorySource{
			fetchFn: func(ctx context.Context, limit int) ([]domain.RawTreeRecord, error) {
				return nil, errors.New("connection refused")
			},
		}, nil, 0, 0)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/inventory?"+testViewport, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

// ---- Area stats tests ----

func TestAreaStats_Rect(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{
		"viewport": {"min_lat":43.0,"min_lon":-3.0,"max_lat":44.0,"max_lon":-2.0},
		"shape": {"rect": {"min_lat":43.05,"min_lon":-2.65,"max_lat":43.25,"max_lon":-2.45}}
	}`
	req := httptest.NewRequest("POST", "/v1/inventory/stats", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var stats domain.AreaStats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.Count != 2 {
		t.Errorf("expected 2 records in rect, got %d", stats.Count)
	}
	if stats.AvgHeightM == nil || *stats.AvgHeightM != 20 {
		t.Errorf("expected avg height 20, got %v", stats.AvgHeightM)
	}
}

func TestAreaStats_EmptyShape(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{
		"viewport": {"min_lat":43.0,"min_lon":-3.0,"max_lat":44.0,"max_lon":-2.0},
		"shape": {}
	}`
	req := httptest.NewRequest("POST", "/v1/inventory/stats", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stats domain.AreaStats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.Count != 0 {
		t.Errorf("expected count 0 for empty shape, got %d", stats.Count)
	}
	if stats.AvgDiameterCm != nil || stats.AvgHeightM != nil {
		t.Error("expected nil averages for empty shape")
	}
}

func TestAreaStats_Polygon(t *testing.T) {
	app := setupApp(makeDeps())

	// Triangle around t1 only
	body := `{
		"viewport": {"min_lat":43.0,"min_lon":-3.0,"max_lat":44.0,"max_lon":-2.0},
		"shape": {"ring": [
			{"lat":43.05,"lon":-2.55},
			{"lat":43.15,"lon":-2.55},
			{"lat":43.10,"lon":-2.45}
		]}
	}`
	req := httptest.NewRequest("POST", "/v1/inventory/stats", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)

	var stats domain.AreaStats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.Count != 1 {
		t.Errorf("expected 1 record in triangle, got %d", stats.Count)
	}
}

// ---- CSV export tests ----

func TestNearby_Success(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory/nearby?lat=43.10&lon=-2.50&radius_m=5000", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Records []struct {
			ID        string  `json:"id"`
			DistanceM float64 `json:"distance_m"`
		} `json:"records"`
		Count int `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 1 || len(result.Records) != 1 {
		t.Fatalf("expected 1 record within 5km, got %+v", result)
	}
	if result.Records[0].ID != "t1" {
		t.Errorf("expected t1, got %s", result.Records[0].ID)
	}
	if result.Records[0].DistanceM != 0 {
		t.Errorf("expected zero distance at the record's own position, got %v", result.Records[0].DistanceM)
	}
}

func TestNearby_MissingCoordinates(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory/nearby?lat=43.10", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestExportCSV(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory/export.csv?"+testViewport, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv content type, got %s", ct)
	}

	body := string(readBody(t, resp.Body))
	if !strings.HasPrefix(body, "\uFEFF") {
		t.Error("expected UTF-8 BOM prefix")
	}
	lines := strings.Split(strings.TrimPrefix(body, "\uFEFF"), "\r\n")
	if lines[0] != "id,lat,lon,species,diameter_cm,height_m,volume_m3" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	// 3 in-viewport records + header + trailing empty line
	if len(lines) != 5 {
		t.Errorf("expected 5 lines, got %d: %q", len(lines), lines)
	}
}

func TestExportCSV_MissingViewport(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/inventory/export.csv", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Plan handler tests ----

func TestListPlans_Pagination(t *testing.T) {
	plans := make([]domain.WorkPlan, 5)
	for i := range plans {
		plans[i] = domain.WorkPlan{ID: fmt.Sprintf("p%d", i), Title: fmt.Sprintf("Plan %d", i)}
	}

	deps := makeDeps(func(d *handler.Dependencies) {
		d.Plans = usecases.NewPlanService(&mockPlanRepo{
			listFn: func(ctx context.Context) ([]domain.WorkPlan, error) { return plans, nil },
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/plans?offset=2&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.WorkPlan `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 plans in page, got %d", len(result.Data))
	}
	if result.Pagination.Offset != 2 {
		t.Errorf("expected offset 2, got %d", result.Pagination.Offset)
	}
}

func TestCreatePlan_EmptyTitle(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"stand_id":"AR-12"}`
	req := httptest.NewRequest("POST", "/v1/plans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreatePlan_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Plans = usecases.NewPlanService(&mockPlanRepo{
			createFn: func(ctx context.Context, p *domain.WorkPlan) error {
				p.ID = "p1"
				return nil
			},
		}, nil)
	})
	app := setupApp(deps)

	body := `{"title":"Thinning Artea stand","stand_id":"AR-12"}`
	req := httptest.NewRequest("POST", "/v1/plans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var plan domain.WorkPlan
	json.NewDecoder(resp.Body).Decode(&plan)
	if plan.ID != "p1" {
		t.Errorf("expected generated id p1, got %q", plan.ID)
	}
	if plan.Status != "draft" {
		t.Errorf("expected default status draft, got %q", plan.Status)
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/plans/nonexistent", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Report submission tests ----

func TestSubmitReport_Sent(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"author":"ranger","trees_cut":12,"volume_m3":8.4}`
	req := httptest.NewRequest("POST", "/v1/reports/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != "sent" {
		t.Errorf("expected sent, got %q", result.Status)
	}
}

func TestSubmitReport_Unauthenticated(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		svc := usecases.NewReportService(&mockIdentity{}, &mockEndpoint{}, newMemOutbox(), &mockReportRepo{}, nil)
		d.Reports = svc
	})
	app := setupApp(deps)

	body := `{"author":"ghost"}`
	req := httptest.NewRequest("POST", "/v1/reports/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSubmitReport_QueuedOnServerError(t *testing.T) {
	outbox := newMemOutbox()
	deps := makeDeps(func(d *handler.Dependencies) {
		svc := usecases.NewReportService(
			&mockIdentity{user: "ranger", token: "tok"},
			&mockEndpoint{sendFn: func(ctx context.Context, payload []byte, token string) error {
				return errors.New("HTTP 500")
			}},
			outbox,
			&mockReportRepo{},
			nil,
		)
		svc.Sleep = func(ctx context.Context, dur time.Duration) error { return nil }
		d.Reports = svc
	})
	app := setupApp(deps)

	body := `{"author":"ranger","trees_cut":3}`
	req := httptest.NewRequest("POST", "/v1/reports/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	entries, _ := outbox.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("expected 1 queued entry, got %d", len(entries))
	}
	if entries[0].Attempts != 5 {
		t.Errorf("expected 5 recorded attempts, got %d", entries[0].Attempts)
	}
}

func TestFlushOutbox(t *testing.T) {
	outbox := newMemOutbox()
	_ = outbox.Put(context.Background(), domain.OutboxEntry{
		ID:      "1:aa",
		Payload: json.RawMessage(`{"author":"ranger"}`),
	})

	deps := makeDeps(func(d *handler.Dependencies) {
		svc := usecases.NewReportService(
			&mockIdentity{user: "ranger", token: "tok"},
			&mockEndpoint{},
			outbox,
			&mockReportRepo{},
			nil,
		)
		svc.Sleep = func(ctx context.Context, dur time.Duration) error { return nil }
		d.Reports = svc
	})
	app := setupApp(deps)

	req := httptest.NewRequest("POST", "/v1/outbox/flush", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Sent int `json:"sent"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Sent != 1 {
		t.Errorf("expected 1 sent, got %d", result.Sent)
	}

	entries, _ := outbox.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("expected drained outbox, got %d entries", len(entries))
	}
}

func TestListOutbox(t *testing.T) {
	outbox := newMemOutbox()
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "1:aa", Payload: json.RawMessage(`{}`)})
	_ = outbox.Put(context.Background(), domain.OutboxEntry{ID: "2:bb", Payload: json.RawMessage(`{}`)})

	deps := makeDeps(func(d *handler.Dependencies) {
		svc := usecases.NewReportService(&mockIdentity{user: "u", token: "t"}, &mockEndpoint{}, outbox, &mockReportRepo{}, nil)
		d.Reports = svc
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/outbox", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Count int `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 2 {
		t.Errorf("expected 2 entries, got %d", result.Count)
	}
}

// ---- Legacy route ----

func TestLegacyTreesRoute_DeprecationHeaders(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/trees?"+testViewport, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header on legacy route")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header on legacy route")
	}
}
