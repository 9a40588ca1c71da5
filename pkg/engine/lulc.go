package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"

	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

// lulcBin maps a sampled label value onto its class name.
func lulcBin(v float64) string {
	if name, ok := lulcClasses[int(v+0.5)]; ok {
		return name
	}
	return "unknown"
}

// lulcClassName normalizes histogram keys: the backend keys classes by
// numeric label, point sampling already by name.
func lulcClassName(key string) string {
	if n, err := strconv.ParseFloat(key, 64); err == nil {
		return lulcBin(n)
	}
	return key
}

func (e *Engine) analyzeLULC(ctx context.Context, roi orb.Geometry, params Params) *model.AnalysisResult {
	r := &run{}
	r.enter(stateInit)

	area := geo.AreaKm2(roi)
	tiles, gt := e.tiles("lulc", roi)
	if len(tiles) == 0 {
		return model.NewAnalysisFailure("lulc", model.ErrValidation, "empty ROI geometry")
	}
	budget := e.cfg.Budget("lulc")
	start, end := e.dateWindow(params)

	var (
		img     imagery.Image
		tcs     []tileClasses
		methods []string
		widened bool
		err     error
	)
	winStart, winEnd := start, end
	for attempt := 0; attempt < 2; attempt++ {
		r.enter(stateBuildComposite)
		img = lulcComposite(roi, winStart, winEnd)
		if gt == model.GeometryTiledPolygon {
			r.enter(stateTiledLoop)
		} else {
			r.enter(stateSingleReduce)
		}
		tcs, methods, err = e.reduceTilesHistogram(ctx, img, tiles, "label", budget, lulcBin)
		if err != imagery.ErrNoData {
			break
		}
		if attempt == 0 {
			winStart, winEnd = widen(start, end)
			widened = true
		}
	}
	if err != nil {
		return failure("lulc", r, err, "lulc reduction failed")
	}

	r.enter(stateMerge)
	for _, tc := range tcs {
		named := make(map[string]float64, len(tc.Percentages))
		for key, pct := range tc.Percentages {
			named[lulcClassName(key)] += pct
		}
		for k := range tc.Percentages {
			delete(tc.Percentages, k)
		}
		for k, v := range named {
			tc.Percentages[k] = v
		}
	}
	classPcts, normalized := mergeClasses(tcs)

	classAreas := make(map[string]float64, len(classPcts))
	dominant := ""
	dominantPct := -1.0
	for class, pct := range classPcts {
		classAreas[class] = area * pct / 100
		// Exact ties resolve by class name so repeated runs agree.
		if pct > dominantPct || (pct == dominantPct && class < dominant) {
			dominant, dominantPct = class, pct
		}
	}

	r.enter(stateBuildTiles)
	urlFormat := e.mapURL(ctx, "lulc", img)
	r.enter(stateDone)

	res := &model.AnalysisResult{
		AnalysisType: "lulc",
		GeometryType: gt,
		ROIAreaKm2:   area,
		URLFormat:    urlFormat,
		MapStats: map[string]any{
			"class_percentages": classPcts,
			"class_areas_km2":   classAreas,
			"dominant_class":    dominant,
		},
		DatasetsUsed: []string{dsDynamicWorld},
		Metadata: map[string]any{
			"date_range":        fmt.Sprintf("%s to %s", winStart, winEnd),
			"scale_m":           scaleFor(budget.BaseScaleM, area),
			"tile_count":        len(tiles),
			"histogram_methods": methods,
			"states":            r.states,
		},
		Success: true,
	}
	if widened {
		res.Metadata["widened_window"] = true
	}
	if normalized {
		res.Metadata["normalized"] = true
	}
	return res
}
