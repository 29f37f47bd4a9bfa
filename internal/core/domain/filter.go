package domain

// AttributeFilter narrows a record set by species and measurement
// ranges. A nil/empty species list means no species constraint; a nil
// bound leaves that side unbounded. An inverted range (min > max) is
// not an error, it simply matches nothing.
type AttributeFilter struct {
	Species       []string `json:"species,omitempty"`
	MinHeightM    *float64 `json:"min_height_m,omitempty"`
	MaxHeightM    *float64 `json:"max_height_m,omitempty"`
	MinDiameterCm *float64 `json:"min_diameter_cm,omitempty"`
	MaxDiameterCm *float64 `json:"max_diameter_cm,omitempty"`
}

// Matches reports whether the record passes every active clause.
// Species matching is case-sensitive exact. A record missing a
// measurement fails any bound on that
// field; absence is not "in range".
func (f AttributeFilter) Matches(r TreeRecord) bool {
	if len(f.Species) > 0 {
		found := false
		for _, s := range f.Species {
			if r.Species == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !inRange(r.HeightM, f.MinHeightM, f.MaxHeightM) {
		return false
	}
	if !inRange(r.DiameterCm, f.MinDiameterCm, f.MaxDiameterCm) {
		return false
	}
	return true
}

// Empty reports whether the filter has no active clauses.
func (f AttributeFilter) Empty() bool {
	return len(f.Species) == 0 && f.MinHeightM == nil && f.MaxHeightM == nil &&
		f.MinDiameterCm == nil && f.MaxDiameterCm == nil
}

func inRange(v, min, max *float64) bool {
	if min == nil && max == nil {
		return true
	}
	if v == nil {
		return false
	}
	if min != nil && *v < *min {
		return false
	}
	if max != nil && *v > *max {
		return false
	}
	return true
}
