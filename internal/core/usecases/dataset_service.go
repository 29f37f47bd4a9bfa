package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/pkg/geospatial"
	"github.com/aitzolm/basomap/internal/pkg/metrics"
)

const (
	// DefaultRecordCap bounds the in-memory working set.
	DefaultRecordCap = 5000
	// DefaultDrawBudget bounds how many records are handed to the map.
	DefaultDrawBudget = 3000
)

// VisibleSet is the result of a viewport recomputation: the decimated
// records to render plus the true pre-decimation count for the
// "N records" display.
type VisibleSet struct {
	Rendered     []domain.TreeRecord `json:"rendered"`
	VisibleCount int                 `json:"visible_count"`
}

// DatasetService owns the cached inventory working set and derives the
// visible subset for the current viewport and filter. The record slice
// is fetched at most once per dataset session; viewport and filter
// changes recompute against the cache. Consumers always receive fresh
// slices over immutable records, so no locking is needed downstream.
type DatasetService struct {
	source    ports.InventorySource
	publisher ports.EventPublisher
	recordCap int
	budget    int

	mu         sync.Mutex
	generation int
	loaded     bool
	records    []domain.TreeRecord
}

// NewDatasetService creates a DatasetService. recordCap and drawBudget
// fall back to the defaults when non-positive. publisher may be nil.
func NewDatasetService(source ports.InventorySource, publisher ports.EventPublisher, recordCap, drawBudget int) *DatasetService {
	if recordCap <= 0 {
		recordCap = DefaultRecordCap
	}
	if drawBudget <= 0 {
		drawBudget = DefaultDrawBudget
	}
	return &DatasetService{
		source:    source,
		publisher: publisher,
		recordCap: recordCap,
		budget:    drawBudget,
	}
}

// Load fetches and normalizes the working set if the current session
// has not loaded yet. On fetch failure any previously cached set is
// left intact so the viewer keeps working on stale data.
func (s *DatasetService) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	gen := s.generation
	s.mu.Unlock()

	raws, err := s.source.FetchRecords(ctx, s.recordCap)
	if err != nil {
		return fmt.Errorf("fetch inventory: %w", err)
	}

	records := domain.NormalizeAll(raws)
	metrics.RecordsLoaded.Add(float64(len(records)))
	if dropped := len(raws) - len(records); dropped > 0 {
		metrics.RecordsDropped.Add(float64(dropped))
		slog.Debug("dropped invalid inventory records", "count", dropped)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// A newer session superseded this fetch; discard the result
		// instead of overwriting fresher data.
		return nil
	}
	s.records = records
	s.loaded = true

	if s.publisher != nil {
		_ = s.publisher.PublishDatasetRefreshed(ctx, len(records))
	}
	return nil
}

// Invalidate starts a new dataset session. The stale working set is
// retained until the next successful Load so a failed refetch does not
// blank the map.
func (s *DatasetService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.loaded = false
}

// RecordCount returns the size of the cached working set.
func (s *DatasetService) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RecomputeVisibleSet derives the rendered subset for a viewport and
// filter: viewport containment, then attribute filter, then
// deterministic decimation down to the draw budget.
//
// When the initial load fails but a stale set exists, the stale set is
// used and the load error returned alongside it — display layers log
// the notice and keep rendering.
func (s *DatasetService) RecomputeVisibleSet(ctx context.Context, viewport domain.Bounds, filter domain.AttributeFilter) (VisibleSet, error) {
	loadErr := s.Load(ctx)

	s.mu.Lock()
	records := s.records
	s.mu.Unlock()

	if loadErr != nil && len(records) == 0 {
		return VisibleSet{}, loadErr
	}

	visible := make([]domain.TreeRecord, 0, len(records))
	for _, r := range records {
		if !viewport.Contains(r.Location) {
			continue
		}
		if !filter.Matches(r) {
			continue
		}
		visible = append(visible, r)
	}

	metrics.ViewportRecomputes.Inc()

	return VisibleSet{
		Rendered:     decimate(visible, s.budget),
		VisibleCount: len(visible),
	}, loadErr
}

// NearbyRecord pairs a record with its great-circle distance from a
// query point.
type NearbyRecord struct {
	domain.TreeRecord
	DistanceM float64 `json:"distance_m"`
}

// NearbyRecords returns up to limit records within radiusM meters of
// center, nearest first. limit is clamped to the draw budget.
func (s *DatasetService) NearbyRecords(ctx context.Context, center domain.GeoPoint, radiusM float64, limit int) ([]NearbyRecord, error) {
	if limit <= 0 || limit > s.budget {
		limit = s.budget
	}

	loadErr := s.Load(ctx)

	s.mu.Lock()
	records := s.records
	s.mu.Unlock()

	if loadErr != nil && len(records) == 0 {
		return nil, loadErr
	}

	out := make([]NearbyRecord, 0)
	for _, r := range records {
		d := geospatial.Haversine(center.Lat, center.Lon, r.Location.Lat, r.Location.Lon)
		if d > radiusM {
			continue
		}
		out = append(out, NearbyRecord{TreeRecord: r, DistanceM: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, loadErr
}

// decimate keeps every step-th record in original order, with
// step = ceil(len/budget). Deterministic: identical input yields an
// identical rendered set.
func decimate(records []domain.TreeRecord, budget int) []domain.TreeRecord {
	if len(records) <= budget {
		return records
	}
	step := (len(records) + budget - 1) / budget
	out := make([]domain.TreeRecord, 0, len(records)/step+1)
	for i := 0; i < len(records); i += step {
		out = append(out, records[i])
	}
	metrics.RecordsDecimated.Add(float64(len(records) - len(out)))
	return out
}
