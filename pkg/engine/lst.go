package engine

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

func (e *Engine) analyzeLST(ctx context.Context, roi orb.Geometry, params Params) *model.AnalysisResult {
	r := &run{}
	r.enter(stateInit)

	area := geo.AreaKm2(roi)
	tiles, gt := e.tiles("lst", roi)
	if len(tiles) == 0 {
		return model.NewAnalysisFailure("lst", model.ErrValidation, "empty ROI geometry")
	}
	budget := e.cfg.Budget("lst")
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
		img = lstComposite(roi, winStart, winEnd)
		if gt == model.GeometryTiledPolygon {
			r.enter(stateTiledLoop)
		} else {
			r.enter(stateSingleReduce)
		}
		ts, retried, err = e.reduceTilesContinuous(ctx, img, tiles, "LST", budget)
		if err != imagery.ErrNoData {
			break
		}
		if attempt == 0 {
			winStart, winEnd = widen(start, end)
			widened = true
		}
	}
	if err != nil {
		return failure("lst", r, err, "lst reduction failed")
	}

	r.enter(stateMerge)
	merged := mergeContinuous(ts)

	scale := scaleFor(budget.BaseScaleM, area)
	uhi := e.computeUHI(ctx, img, geo.Reducible(roi), winStart, winEnd, scale, budget.MaxPixels)

	r.enter(stateBuildTiles)
	urlFormat := e.mapURL(ctx, "lst", img)
	r.enter(stateDone)

	res := &model.AnalysisResult{
		AnalysisType: "lst",
		GeometryType: gt,
		ROIAreaKm2:   area,
		URLFormat:    urlFormat,
		MapStats: map[string]any{
			"LST_mean":      merged.Mean,
			"LST_min":       merged.Min,
			"LST_max":       merged.Max,
			"LST_stdDev":    merged.StdDev,
			"uhi_intensity": uhi.Intensity,
			"uhi_details":   uhi,
		},
		DatasetsUsed: []string{dsModisLST},
		Metadata: map[string]any{
			"date_range": fmt.Sprintf("%s to %s", winStart, winEnd),
			"scale_m":    scale,
			"tile_count": len(tiles),
			"units":      "celsius",
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
	return res
}
