package imagery

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
)

func TestBuilderImmutability(t *testing.T) {
	base := NewCollection("COPERNICUS/S2_SR_HARMONIZED").FilterDate("2024-01-01", "2024-12-31")
	a := base.Median()
	b := base.Mode()

	if len(base.Steps()) != 2 {
		t.Errorf("base grew to %d steps", len(base.Steps()))
	}
	if len(a.Steps()) != 3 || len(b.Steps()) != 3 {
		t.Errorf("derived pipelines have %d / %d steps, want 3 / 3", len(a.Steps()), len(b.Steps()))
	}
	if a.Steps()[2].Op != "median" || b.Steps()[2].Op != "mode" {
		t.Errorf("derived ops = %q / %q", a.Steps()[2].Op, b.Steps()[2].Op)
	}
}

func TestKeyStable(t *testing.T) {
	build := func() Image {
		return NewCollection("MODIS/061/MOD11A2").
			FilterDate("2024-01-01", "2024-12-31").
			Select("LST_Day_1km").
			MultiplyAdd(0.02, -273.15).
			Median()
	}
	if build().Key() != build().Key() {
		t.Error("identical pipelines must share a key")
	}
}

func TestKeyDiscriminates(t *testing.T) {
	base := NewCollection("COPERNICUS/S2_SR_HARMONIZED")
	variants := []Image{
		base,
		base.FilterDate("2024-01-01", "2024-12-31"),
		base.FilterDate("2023-01-01", "2024-12-31"),
		base.Median(),
		NewCollection("MODIS/061/MOD11A2"),
	}
	seen := make(map[string]int)
	for i, v := range variants {
		k := v.Key()
		if prev, dup := seen[k]; dup {
			t.Errorf("pipelines %d and %d collide on key %s", prev, i, k)
		}
		seen[k] = i
	}
}

func TestUpdateMaskEmbedsPipeline(t *testing.T) {
	water := NewCollection("JRC/GSW1_4/GlobalSurfaceWater").Select("occurrence").Gte(50)
	img := NewCollection("COPERNICUS/S2_SR_HARMONIZED").Median().UpdateMask(water)

	last := img.Steps()[len(img.Steps())-1]
	if last.Op != "update_mask" {
		t.Fatalf("last op = %q", last.Op)
	}
	steps, ok := last.Args["mask"].([]Step)
	if !ok || len(steps) != 3 {
		t.Errorf("mask args = %#v", last.Args["mask"])
	}
}

func TestMapEmbedsPerImageOps(t *testing.T) {
	perImage := Pipe().
		UpdateMask(Pipe().Select("QA60").BitwiseAnd(1<<10 | 1<<11).Eq(0)).
		NormalizedDifference("B8", "B4")
	img := NewCollection("COPERNICUS/S2_SR_HARMONIZED").Map(perImage).Median()

	steps := img.Steps()
	if steps[1].Op != "map" || steps[2].Op != "median" {
		t.Fatalf("ops = %q, %q", steps[1].Op, steps[2].Op)
	}
	ops, ok := steps[1].Args["ops"].([]Step)
	if !ok || len(ops) != 2 {
		t.Fatalf("map ops = %#v", steps[1].Args["ops"])
	}
	if ops[0].Op != "update_mask" || ops[1].Op != "normalized_difference" {
		t.Errorf("per-image ops = %q, %q", ops[0].Op, ops[1].Op)
	}
	mask, ok := ops[0].Args["mask"].([]Step)
	if !ok || len(mask) != 3 || mask[1].Op != "bitwise_and" {
		t.Errorf("mask steps = %#v", ops[0].Args["mask"])
	}
	if bits, _ := mask[1].Args["bits"].(int); bits != 1<<10|1<<11 {
		t.Errorf("bits = %v", mask[1].Args["bits"])
	}
}

func TestPipeStartsEmpty(t *testing.T) {
	if n := len(Pipe().Steps()); n != 0 {
		t.Errorf("Pipe has %d steps", n)
	}
	p := Pipe().Select("label")
	if len(p.Steps()) != 1 || p.Steps()[0].Op != "select" {
		t.Errorf("steps = %+v", p.Steps())
	}
}

func TestBandMaxConfidenceMask(t *testing.T) {
	m := Pipe().Select("water", "built").BandMax().Gte(0.5)
	steps := m.Steps()
	if len(steps) != 3 || steps[1].Op != "band_max" || steps[2].Op != "gte" {
		t.Errorf("steps = %+v", steps)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(1.5), 1.5, true},
		{int(3), 3, true},
		{int64(4), 4, true},
		{"nope", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Number(%v) = %v, %v", tt.in, got, ok)
		}
	}
}

func TestHistogram(t *testing.T) {
	in := map[string]any{"1": float64(120), "2": float64(30)}
	got, ok := Histogram(in)
	if !ok || got["1"] != 120 || got["2"] != 30 {
		t.Errorf("Histogram = %v, %v", got, ok)
	}

	if _, ok := Histogram("not a map"); ok {
		t.Error("non-map input must fail")
	}
	if _, ok := Histogram(map[string]any{"1": "NaN"}); ok {
		t.Error("non-numeric counts must fail")
	}
}

func TestMockDefaults(t *testing.T) {
	m := &Mock{}
	ctx := context.Background()
	img := NewCollection("X")

	if _, err := m.ReduceRegion(ctx, img, orb.Point{0, 0}, ReduceRequest{}); err != ErrNoData {
		t.Errorf("default ReduceRegion error = %v, want ErrNoData", err)
	}
	if err := m.Healthy(ctx); err != nil {
		t.Errorf("default Healthy = %v", err)
	}
}
