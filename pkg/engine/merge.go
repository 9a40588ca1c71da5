package engine

import (
	"math"
	"sort"
)

// tileStats is one tile's continuous reduction plus its weight basis.
type tileStats struct {
	TileID  int
	AreaKm2 float64
	Stats   stats
}

// mergeContinuous merges per-tile continuous statistics: area-weighted
// mean, element-wise min/max, pooled variance. Tiles are merged in
// tile_id order so output is deterministic.
func mergeContinuous(tiles []tileStats) stats {
	if len(tiles) == 0 {
		return stats{}
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].TileID < tiles[j].TileID })
	if len(tiles) == 1 {
		return tiles[0].Stats
	}

	var total float64
	for _, t := range tiles {
		total += t.AreaKm2
	}

	merged := stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, t := range tiles {
		w := t.AreaKm2 / total
		merged.Mean += w * t.Stats.Mean
		merged.Min = math.Min(merged.Min, t.Stats.Min)
		merged.Max = math.Max(merged.Max, t.Stats.Max)
	}

	// Pooled variance: within-tile plus between-tile spread.
	var variance float64
	for _, t := range tiles {
		w := t.AreaKm2 / total
		d := t.Stats.Mean - merged.Mean
		variance += w*t.Stats.StdDev*t.Stats.StdDev + w*d*d
	}
	merged.StdDev = math.Sqrt(variance)
	return merged
}

// tileClasses is one tile's class percentages plus its weight basis.
type tileClasses struct {
	TileID      int
	AreaKm2     float64
	Percentages map[string]float64
}

// mergeClasses merges per-tile class percentages by area weighting,
// renormalizing when the merged sum drifts past the closure tolerance.
// The bool reports whether renormalization fired.
func mergeClasses(tiles []tileClasses) (map[string]float64, bool) {
	if len(tiles) == 0 {
		return map[string]float64{}, false
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].TileID < tiles[j].TileID })

	var total float64
	for _, t := range tiles {
		total += t.AreaKm2
	}

	merged := make(map[string]float64)
	for _, t := range tiles {
		w := t.AreaKm2 / total
		for class, pct := range t.Percentages {
			merged[class] += w * pct
		}
	}
	return closePercentages(merged)
}

// closePercentages enforces the 100 +/- 0.5 closure invariant,
// renormalizing to an exact 100 when the sum drifts outside it.
func closePercentages(pcts map[string]float64) (map[string]float64, bool) {
	var sum float64
	for _, p := range pcts {
		sum += p
	}
	if sum <= 0 || math.Abs(sum-100) <= 0.5 {
		return pcts, false
	}
	out := make(map[string]float64, len(pcts))
	for k, p := range pcts {
		out[k] = 100 * p / sum
	}
	return out, true
}
