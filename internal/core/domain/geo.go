package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies inside the WGS 84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Bounds represents a geographic bounding box mirroring a map viewport.
// Degenerate boxes (zero width or height) are valid and match only
// points exactly on the collapsed edge.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p falls within the box. Closed on all four
// edges; viewport prefiltering and rectangle aggregation share this
// convention so the two can never disagree about an edge point.
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// DrawnShape is a user-drawn selection: either a rectangle or a polygon
// ring. Exactly one of the two fields is set.
type DrawnShape struct {
	Rect *Bounds    `json:"rect,omitempty"`
	Ring []GeoPoint `json:"ring,omitempty"`
}

// Contains reports whether p falls inside the shape. A polygon ring with
// fewer than three vertices contains nothing.
func (s DrawnShape) Contains(p GeoPoint) bool {
	if s.Rect != nil {
		return s.Rect.Contains(p)
	}
	return PointInRing(p, s.Ring)
}

// Empty reports whether the shape has no usable geometry.
func (s DrawnShape) Empty() bool {
	return s.Rect == nil && len(s.Ring) < 3
}

// PointInRing tests point containment in a polygon ring using the
// even-odd ray casting rule. The ring need not be explicitly closed;
// the edge between the last and first vertex is implied.
//
// Edges that are horizontal in latitude would divide by zero in the
// crossing test; a tiny epsilon denominator is substituted instead of
// branching so NaN cannot silently flip the parity.
func PointInRing(p GeoPoint, ring []GeoPoint) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			denom := vj.Lat - vi.Lat
			if denom == 0 {
				denom = 1e-12
			}
			if p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/denom+vi.Lon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
