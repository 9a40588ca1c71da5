package engine

import (
	"math"
	"testing"
)

func TestMergeContinuousPooledVariance(t *testing.T) {
	tiles := []tileStats{
		{TileID: 0, AreaKm2: 100, Stats: stats{Mean: 2, Min: 1, Max: 3, StdDev: 1}},
		{TileID: 1, AreaKm2: 100, Stats: stats{Mean: 4, Min: 2, Max: 6, StdDev: 1}},
	}

	m := mergeContinuous(tiles)

	if math.Abs(m.Mean-3) > 1e-9 {
		t.Errorf("mean = %v, want 3", m.Mean)
	}
	if m.Min != 1 || m.Max != 6 {
		t.Errorf("min/max = %v/%v, want 1/6", m.Min, m.Max)
	}
	// Pooled: within (0.5*1 + 0.5*1) + between (0.5*1 + 0.5*1) = 2.
	if math.Abs(m.StdDev-math.Sqrt(2)) > 1e-9 {
		t.Errorf("stdDev = %v, want sqrt(2)", m.StdDev)
	}
}

func TestMergeContinuousAreaWeighting(t *testing.T) {
	tiles := []tileStats{
		{TileID: 0, AreaKm2: 300, Stats: stats{Mean: 0}},
		{TileID: 1, AreaKm2: 100, Stats: stats{Mean: 4}},
	}
	if m := mergeContinuous(tiles); math.Abs(m.Mean-1) > 1e-9 {
		t.Errorf("mean = %v, want 1 (3:1 weighting)", m.Mean)
	}
}

func TestMergeContinuousOrderIndependent(t *testing.T) {
	a := []tileStats{
		{TileID: 0, AreaKm2: 50, Stats: stats{Mean: 0.2, Min: 0.1, Max: 0.4, StdDev: 0.05}},
		{TileID: 1, AreaKm2: 150, Stats: stats{Mean: 0.6, Min: 0.3, Max: 0.9, StdDev: 0.1}},
	}
	b := []tileStats{a[1], a[0]}

	ma, mb := mergeContinuous(a), mergeContinuous(b)
	if math.Abs(ma.Mean-mb.Mean) > 1e-12 || math.Abs(ma.StdDev-mb.StdDev) > 1e-12 {
		t.Errorf("merge depends on input order: %+v vs %+v", ma, mb)
	}
}

func TestMergeContinuousSingleTile(t *testing.T) {
	s := stats{Mean: 0.5, Min: 0.2, Max: 0.7, StdDev: 0.1}
	m := mergeContinuous([]tileStats{{TileID: 3, AreaKm2: 10, Stats: s}})
	if m != s {
		t.Errorf("single tile should pass through, got %+v", m)
	}
}

func TestClosePercentagesWithinTolerance(t *testing.T) {
	in := map[string]float64{"a": 60.2, "b": 40.1} // sums to 100.3
	out, renorm := closePercentages(in)
	if renorm {
		t.Error("sum within 100±0.5 must not renormalize")
	}
	if out["a"] != 60.2 {
		t.Errorf("values must pass through unchanged, got %v", out["a"])
	}
}

func TestClosePercentagesRenormalizes(t *testing.T) {
	in := map[string]float64{"a": 45, "b": 45} // sums to 90
	out, renorm := closePercentages(in)
	if !renorm {
		t.Fatal("drifted sum must renormalize")
	}
	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("renormalized sum = %v, want exactly 100", sum)
	}
	if math.Abs(out["a"]-50) > 1e-9 {
		t.Errorf("a = %v, want 50", out["a"])
	}
}

func TestMergeClasses(t *testing.T) {
	tiles := []tileClasses{
		{TileID: 0, AreaKm2: 100, Percentages: map[string]float64{"trees": 80, "built": 20}},
		{TileID: 1, AreaKm2: 100, Percentages: map[string]float64{"trees": 40, "built": 60}},
	}
	merged, renorm := mergeClasses(tiles)
	if renorm {
		t.Error("well-closed inputs should not renormalize")
	}
	if math.Abs(merged["trees"]-60) > 1e-9 || math.Abs(merged["built"]-40) > 1e-9 {
		t.Errorf("merged = %v, want trees 60 / built 40", merged)
	}
}

func TestClampNDVI(t *testing.T) {
	s := clampNDVI(stats{Mean: 1.2, Min: -1.5, Max: 3.0, StdDev: 0.2})
	if s.Mean != 1 || s.Min != -1 || s.Max != 1 {
		t.Errorf("clamp failed: %+v", s)
	}
	if s.StdDev != 0.2 {
		t.Error("stdDev must not be clamped")
	}
}

func TestNdviBin(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{-0.5, "water_or_barren"},
		{0.05, "water_or_barren"},
		{0.2, "sparse_vegetation"},
		{0.4, "moderate_vegetation"},
		{0.7, "dense_vegetation"},
		{1.0, "dense_vegetation"},
	}
	for _, tt := range tests {
		if got := ndviBin(tt.v); got != tt.want {
			t.Errorf("ndviBin(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
