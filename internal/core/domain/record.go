package domain

import (
	"encoding/json"
	"time"
)

// TreeRecord is one normalized forestry inventory point. Records are
// immutable once created by the normalizer; downstream consumers only
// ever receive read-only views of them.
type TreeRecord struct {
	ID         string   `json:"id"`
	Location   GeoPoint `json:"location"`
	Species    string   `json:"species,omitempty"`
	DiameterCm *float64 `json:"diameter_cm,omitempty"`
	HeightM    *float64 `json:"height_m,omitempty"`
	VolumeM3   *float64 `json:"volume_m3,omitempty"`
}

// AreaStats is the aggregate over records contained in a drawn shape.
// Averages are nil, not zero, when no contained record carries the
// corresponding measurement. Never persisted.
type AreaStats struct {
	Count         int      `json:"count"`
	AvgDiameterCm *float64 `json:"avg_diameter_cm"`
	AvgHeightM    *float64 `json:"avg_height_m"`
}

// WorkPlan is a planned forestry operation on a stand.
type WorkPlan struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StandID   string    `json:"stand_id"`
	Species   string    `json:"species,omitempty"`
	StartsOn  time.Time `json:"starts_on"`
	EndsOn    time.Time `json:"ends_on"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkReport records completed field work, usually against a plan.
type WorkReport struct {
	ID         string    `json:"id"`
	PlanID     string    `json:"plan_id,omitempty"`
	Author     string    `json:"author"`
	ReportedAt time.Time `json:"reported_at"`
	TreesCut   int       `json:"trees_cut"`
	VolumeM3   float64   `json:"volume_m3"`
	Notes      string    `json:"notes,omitempty"`
	PhotoURLs  []string  `json:"photo_urls,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// OutboxEntry is a report submission waiting in the durable outbox.
// The payload is opaque and forwarded to the endpoint as-is. Attempts
// accumulates across flush passes so a permanently broken payload can
// be retired instead of retried forever.
type OutboxEntry struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
