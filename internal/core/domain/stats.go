package domain

import "math"

// ComputeAreaStats aggregates the records contained in a drawn shape.
// It operates on whatever record set the caller hands it, normally the
// currently rendered (post-decimation) subset, so the numbers stay
// consistent with what the map shows. Averages skip records missing the
// measurement; a shape with fewer than three polygon vertices yields
// the zero-count all-nil stats rather than an error.
func ComputeAreaStats(shape DrawnShape, records []TreeRecord) AreaStats {
	var stats AreaStats
	if shape.Empty() {
		return stats
	}

	var dSum, hSum float64
	var dN, hN int
	for _, r := range records {
		if !shape.Contains(r.Location) {
			continue
		}
		stats.Count++
		if r.DiameterCm != nil {
			dSum += *r.DiameterCm
			dN++
		}
		if r.HeightM != nil {
			hSum += *r.HeightM
			hN++
		}
	}

	if dN > 0 {
		avg := dSum / float64(dN)
		stats.AvgDiameterCm = &avg
	}
	if hN > 0 {
		avg := hSum / float64(hN)
		stats.AvgHeightM = &avg
	}
	return stats
}

// Rounded returns a copy with averages rounded to one decimal place for
// presentation. The full-precision stats stay untouched.
func (s AreaStats) Rounded() AreaStats {
	out := AreaStats{Count: s.Count}
	if s.AvgDiameterCm != nil {
		v := round1(*s.AvgDiameterCm)
		out.AvgDiameterCm = &v
	}
	if s.AvgHeightM != nil {
		v := round1(*s.AvgHeightM)
		out.AvgHeightM = &v
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
