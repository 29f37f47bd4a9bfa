package geospatial_test

import (
	"math"
	"testing"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/pkg/geospatial"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// Bilbao to Vitoria-Gasteiz, roughly 52 km great-circle.
	d := geospatial.Haversine(43.2630, -2.9350, 42.8467, -2.6716)
	if d < 50000 || d > 54000 {
		t.Errorf("expected ~52km, got %.0fm", d)
	}
}

func TestHaversine_ZeroDistance(t *testing.T) {
	d := geospatial.Haversine(43.26, -2.93, 43.26, -2.93)
	if d != 0 {
		t.Errorf("expected 0 for identical points, got %v", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := geospatial.Haversine(43.26, -2.93, 42.85, -2.67)
	b := geospatial.Haversine(42.85, -2.67, 43.26, -2.93)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("expected symmetric distance, got %v vs %v", a, b)
	}
}

func TestPolylineLength(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 43.0, Lon: -2.9},
		{Lat: 43.1, Lon: -2.9},
		{Lat: 43.2, Lon: -2.9},
	}

	total := geospatial.PolylineLength(points)
	sum := geospatial.Haversine(43.0, -2.9, 43.1, -2.9) +
		geospatial.Haversine(43.1, -2.9, 43.2, -2.9)
	if math.Abs(total-sum) > 1e-6 {
		t.Errorf("expected %v, got %v", sum, total)
	}

	if geospatial.PolylineLength(nil) != 0 {
		t.Error("expected 0 for empty polyline")
	}
	if geospatial.PolylineLength(points[:1]) != 0 {
		t.Error("expected 0 for single-point polyline")
	}
}
