package engine

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

func TestGenerateGridScanOrder(t *testing.T) {
	mock := &imagery.Mock{
		ReduceFn: func(ctx context.Context, img imagery.Image, g orb.Geometry, req imagery.ReduceRequest) (map[string]any, error) {
			// Derive a value from position so ordering mistakes are visible.
			lng := g.Bound().Min[0]
			return map[string]any{
				"NDVI_mean":   0.3 + lng/10000,
				"NDVI_min":    0.1,
				"NDVI_max":    0.6,
				"NDVI_stdDev": 0.05,
			}, nil
		},
	}
	e := New(mock, testConfig(), nil)

	res := e.GenerateGrid(context.Background(), "ndvi", testSquare(77, 28, 0.3), 10, Params{})
	if !res.Success {
		t.Fatalf("grid failed: %s", res.Error)
	}
	if res.CellCount == 0 {
		t.Fatal("expected cells")
	}

	prev := -1
	for _, f := range res.Features.Features {
		id, ok := f.Properties["cell_id"].(int)
		if !ok {
			t.Fatalf("cell_id missing or wrong type: %v", f.Properties["cell_id"])
		}
		if id <= prev {
			t.Fatalf("features out of scan order: %d after %d", id, prev)
		}
		prev = id

		if _, ok := f.Properties["classification"].(string); !ok {
			t.Error("cell missing classification")
		}
	}
}

func TestGenerateGridSkipsNoDataCells(t *testing.T) {
	roi := testSquare(77, 28, 0.3)
	mid := 28.0 + 0.15
	mock := &imagery.Mock{
		ReduceFn: func(ctx context.Context, img imagery.Image, g orb.Geometry, req imagery.ReduceRequest) (map[string]any, error) {
			// Cells in the northern half have no data, ever.
			if g.Bound().Min[1] >= mid {
				return nil, imagery.ErrNoData
			}
			return map[string]any{"NDVI_mean": 0.4, "NDVI_min": 0.2, "NDVI_max": 0.6, "NDVI_stdDev": 0.1}, nil
		},
	}
	e := New(mock, testConfig(), nil)

	res := e.GenerateGrid(context.Background(), "ndvi", roi, 10, Params{})
	if !res.Success {
		t.Fatalf("grid failed: %s", res.Error)
	}
	all := geo.GridCells(roi, 10)
	if res.CellCount == 0 || res.CellCount >= len(all) {
		t.Errorf("cell count = %d of %d, northern cells should be skipped", res.CellCount, len(all))
	}
}

func TestGenerateGridTimeoutDiscardsPartials(t *testing.T) {
	mock := &imagery.Mock{
		ReduceFn: func(ctx context.Context, img imagery.Image, g orb.Geometry, req imagery.ReduceRequest) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]any{"NDVI_mean": 0.4}, nil
			}
		},
	}
	cfg := testConfig()
	cfg.GridDeadline = config.Duration(50 * time.Millisecond)
	e := New(mock, cfg, nil)

	res := e.GenerateGrid(context.Background(), "ndvi", testSquare(77, 28, 0.3), 10, Params{})
	if res.Success {
		t.Fatal("expected timeout")
	}
	if res.ErrorType != model.ErrTimeout {
		t.Errorf("error type = %q, want timeout", res.ErrorType)
	}
	if res.Features != nil {
		t.Error("partial results must be discarded on timeout")
	}
}

func TestGenerateGridUnsupportedIndicator(t *testing.T) {
	e := New(&imagery.Mock{}, testConfig(), nil)
	res := e.GenerateGrid(context.Background(), "albedo", testSquare(0, 0, 0.1), 10, Params{})
	if res.Success || res.ErrorType != model.ErrValidation {
		t.Errorf("got %+v, want validation failure", res)
	}
}
