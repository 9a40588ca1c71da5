package engine

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"geoquery/pkg/imagery"
)

// lulcMock serves a fixed label histogram, keyed by numeric class as the
// backend does.
func lulcMock(counts map[string]any) *imagery.Mock {
	return &imagery.Mock{
		ReduceFn: func(ctx context.Context, img imagery.Image, g orb.Geometry, req imagery.ReduceRequest) (map[string]any, error) {
			if hasReducer(req, imagery.ReduceHistogram) {
				return map[string]any{"label_histogram": counts}, nil
			}
			return map[string]any{"label_mean": 3.0}, nil
		},
	}
}

func TestAnalyzeLULC(t *testing.T) {
	mock := lulcMock(map[string]any{
		"1": 600.0, // trees
		"4": 300.0, // crops
		"6": 100.0, // built
	})
	e := New(mock, testConfig(), nil)

	res := e.Analyze(context.Background(), "lulc", testSquare(77, 28, 0.05), Params{})
	if !res.Success {
		t.Fatalf("analysis failed: %s (%s)", res.Error, res.ErrorType)
	}

	pcts := res.MapStats["class_percentages"].(map[string]float64)
	if pcts["trees"] != 60 || pcts["crops"] != 30 || pcts["built"] != 10 {
		t.Errorf("class percentages = %v", pcts)
	}
	if dom := res.MapStats["dominant_class"].(string); dom != "trees" {
		t.Errorf("dominant class = %q, want trees", dom)
	}

	areas := res.MapStats["class_areas_km2"].(map[string]float64)
	var sum float64
	for _, a := range areas {
		sum += a
	}
	if diff := sum - res.ROIAreaKm2; diff < -0.5 || diff > 0.5 {
		t.Errorf("class areas sum to %.2f, ROI is %.2f", sum, res.ROIAreaKm2)
	}
}

func TestAnalyzeLULCDominantTieIsDeterministic(t *testing.T) {
	// 0 is water, 6 is built; at an exact 50/50 split the
	// lexicographically smaller class name must win every run.
	for i := 0; i < 20; i++ {
		mock := lulcMock(map[string]any{"0": 128.0, "6": 128.0})
		e := New(mock, testConfig(), nil)

		res := e.Analyze(context.Background(), "lulc", testSquare(77, 28, 0.05), Params{})
		if !res.Success {
			t.Fatalf("analysis failed: %s", res.Error)
		}
		if dom := res.MapStats["dominant_class"].(string); dom != "built" {
			t.Fatalf("run %d: dominant class = %q, want built", i, dom)
		}
	}
}
