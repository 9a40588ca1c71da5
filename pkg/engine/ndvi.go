package engine

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

func ndviBin(v float64) string {
	for _, b := range ndviBins {
		if v >= b.Min && v < b.Max {
			return b.Name
		}
	}
	if v >= 1.0 {
		return ndviBins[len(ndviBins)-1].Name
	}
	return ndviBins[0].Name
}

// clampNDVI enforces the [-1, 1] range invariant on merged statistics.
func clampNDVI(s stats) stats {
	clamp := func(v float64) float64 {
		if v < -1 {
			return -1
		}
		if v > 1 {
			return 1
		}
		return v
	}
	s.Mean = clamp(s.Mean)
	s.Min = clamp(s.Min)
	s.Max = clamp(s.Max)
	return s
}

func (e *Engine) analyzeNDVI(ctx context.Context, roi orb.Geometry, params Params) *model.AnalysisResult {
	r := &run{}
	r.enter(stateInit)

	area := geo.AreaKm2(roi)
	tiles, gt := e.tiles("ndvi", roi)
	if len(tiles) == 0 {
		return model.NewAnalysisFailure("ndvi", model.ErrValidation, "empty ROI geometry")
	}
	budget := e.cfg.Budget("ndvi")
	start, end := e.dateWindow(params)

	var (
		img     imagery.Image
		ts      []tileStats
		retried bool
		widened bool
		err     error
	)
	winStart, winEnd := start, end
	for attempt := 0; attempt < 2; attempt++ {
		r.enter(stateBuildComposite)
		img = ndviComposite(roi, winStart, winEnd)
		if gt == model.GeometryTiledPolygon {
			r.enter(stateTiledLoop)
		} else {
			r.enter(stateSingleReduce)
		}
		ts, retried, err = e.reduceTilesContinuous(ctx, img, tiles, "NDVI", budget)
		if err != imagery.ErrNoData {
			break
		}
		if attempt == 0 {
			winStart, winEnd = widen(start, end)
			widened = true
		}
	}
	if err != nil {
		return failure("ndvi", r, err, "ndvi reduction failed")
	}

	r.enter(stateMerge)
	merged := clampNDVI(mergeContinuous(ts))

	tcs, methods, herr := e.reduceTilesHistogram(ctx, img, tiles, "NDVI", budget, ndviBin)
	vegPcts := map[string]float64{}
	normalized := false
	if herr == nil {
		vegPcts, normalized = mergeClasses(tcs)
	}

	r.enter(stateBuildTiles)
	urlFormat := e.mapURL(ctx, "ndvi", img)
	r.enter(stateDone)

	res := &model.AnalysisResult{
		AnalysisType: "ndvi",
		GeometryType: gt,
		ROIAreaKm2:   area,
		URLFormat:    urlFormat,
		MapStats: map[string]any{
			"NDVI_mean":              merged.Mean,
			"NDVI_min":               merged.Min,
			"NDVI_max":               merged.Max,
			"NDVI_stdDev":            merged.StdDev,
			"vegetation_percentages": vegPcts,
		},
		DatasetsUsed: []string{dsSentinel2},
		Metadata: map[string]any{
			"date_range": fmt.Sprintf("%s to %s", winStart, winEnd),
			"scale_m":    scaleFor(budget.BaseScaleM, area),
			"tile_count": len(tiles),
			"states":     r.states,
		},
		Success: true,
	}
	if widened {
		res.Metadata["widened_window"] = true
	}
	if retried {
		res.Metadata["coarse_retry"] = true
	}
	if normalized {
		res.Metadata["normalized"] = true
	}
	if len(methods) > 0 {
		res.Metadata["histogram_methods"] = methods
	}
	return res
}
