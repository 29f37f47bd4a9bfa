package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// RawTreeRecord is the loosely-typed wire shape returned by the document
// store. Position may be expressed three ways: direct lat/lng fields, a
// nested location object, or a GeoJSON Point geometry. Numeric attributes
// arrive as numbers or strings depending on which form captured them.
type RawTreeRecord struct {
	ID       string          `json:"id"`
	Lat      any             `json:"lat"`
	Lng      any             `json:"lng"`
	Location *RawLocation    `json:"location"`
	Geometry *GeoJSONPoint   `json:"geometry"`
	Species  string          `json:"species"`
	Diameter any             `json:"diameter_cm"`
	Height   any             `json:"height_m"`
	Volume   any             `json:"volume_m3"`
}

// RawLocation is the nested position variant.
type RawLocation struct {
	Lat any `json:"lat"`
	Lng any `json:"lng"`
}

// GeoJSONPoint is the GeoJSON position variant. Coordinates are
// [lng, lat], note the axis order reversal.
type GeoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Normalize converts a raw record into a TreeRecord. Position resolution
// tries direct lat/lng, then the nested location object, then the GeoJSON
// geometry; the first variant yielding two finite numbers wins, and when
// that winner is outside the WGS 84 ranges the record is dropped rather
// than falling through to a later variant. Returns nil when no valid
// position resolves — invalid records are dropped, never stored as
// placeholders.
func Normalize(raw RawTreeRecord) *TreeRecord {
	p, ok := resolvePosition(raw)
	if !ok {
		return nil
	}

	rec := &TreeRecord{
		ID:         raw.ID,
		Location:   p,
		Species:    raw.Species,
		DiameterCm: asMeasurement(raw.Diameter),
		HeightM:    asMeasurement(raw.Height),
		VolumeM3:   asMeasurement(raw.Volume),
	}
	if rec.ID == "" {
		// Source had no stable identifier; fall back to the coordinates.
		rec.ID = fmt.Sprintf("%.6f:%.6f", p.Lat, p.Lon)
	}
	return rec
}

// NormalizeAll normalizes a batch, silently dropping invalid records.
func NormalizeAll(raws []RawTreeRecord) []TreeRecord {
	out := make([]TreeRecord, 0, len(raws))
	for _, raw := range raws {
		if rec := Normalize(raw); rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

func resolvePosition(raw RawTreeRecord) (GeoPoint, bool) {
	p, ok := firstPosition(raw)
	if !ok || !p.Valid() {
		return GeoPoint{}, false
	}
	return p, true
}

// firstPosition walks the variant precedence and returns the first
// position made of two finite numbers, without range checking.
func firstPosition(raw RawTreeRecord) (GeoPoint, bool) {
	if lat, ok := asNumber(raw.Lat); ok {
		if lng, ok := asNumber(raw.Lng); ok {
			return GeoPoint{Lat: lat, Lon: lng}, true
		}
	}
	if raw.Location != nil {
		if lat, ok := asNumber(raw.Location.Lat); ok {
			if lng, ok := asNumber(raw.Location.Lng); ok {
				return GeoPoint{Lat: lat, Lon: lng}, true
			}
		}
	}
	if g := raw.Geometry; g != nil && len(g.Coordinates) >= 2 {
		p := GeoPoint{Lat: g.Coordinates[1], Lon: g.Coordinates[0]}
		if isFinite(p.Lat) && isFinite(p.Lon) {
			return p, true
		}
	}
	return GeoPoint{}, false
}

// asNumber coerces a decoded JSON value to a finite float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, isFinite(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && isFinite(f)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && isFinite(f)
	default:
		return 0, false
	}
}

// asMeasurement coerces an optional measurement field. Non-finite or
// negative values are absent, never zero.
func asMeasurement(v any) *float64 {
	if v == nil {
		return nil
	}
	f, ok := asNumber(v)
	if !ok || f < 0 {
		return nil
	}
	return &f
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
