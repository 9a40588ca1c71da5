package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/paulmach/orb"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/model"
)

// Transition band classes in the JRC dataset.
var waterTransitionClasses = map[int]string{
	0:  "no_change",
	1:  "permanent",
	2:  "new_permanent",
	3:  "lost_permanent",
	4:  "seasonal",
	5:  "new_seasonal",
	6:  "lost_seasonal",
	7:  "seasonal_to_permanent",
	8:  "permanent_to_seasonal",
	9:  "ephemeral_permanent",
	10: "ephemeral_seasonal",
}

func seasonalityBin(v float64) string {
	months := int(v + 0.5)
	switch {
	case months >= seasonalityPermanentMin:
		return "permanent"
	case months >= seasonalitySeasonalMin:
		return "seasonal"
	default:
		return "none"
	}
}

func (e *Engine) analyzeWater(ctx context.Context, roi orb.Geometry, params Params) *model.AnalysisResult {
	r := &run{}
	r.enter(stateInit)

	area := geo.AreaKm2(roi)
	tiles, gt := e.tiles("water", roi)
	if len(tiles) == 0 {
		return model.NewAnalysisFailure("water", model.ErrValidation, "empty ROI geometry")
	}
	budget := e.cfg.Budget("water")

	r.enter(stateBuildComposite)
	// Occurrence is masked outside ever-wet pixels; unmask so land counts
	// in the mean.
	mask := waterMask(waterOccurrenceThreshold).Unmask(0)

	if gt == model.GeometryTiledPolygon {
		r.enter(stateTiledLoop)
	} else {
		r.enter(stateSingleReduce)
	}
	ts, retried, err := e.reduceTilesContinuous(ctx, mask, tiles, "water", budget)
	if err != nil {
		return failure("water", r, err, "water reduction failed")
	}

	r.enter(stateMerge)
	merged := mergeContinuous(ts)
	waterPct := merged.Mean * 100
	if waterPct < 0 {
		waterPct = 0
	}
	if waterPct > 100 {
		waterPct = 100
	}

	rg := geo.Reducible(roi)
	seasonal := e.waterSeasonalityBreakdown(ctx, rg, area, budget)
	change := e.waterChangeStats(ctx, rg, area, budget)

	r.enter(stateBuildTiles)
	urlFormat := e.mapURL(ctx, "water", waterMask(waterOccurrenceThreshold).SelfMask())
	r.enter(stateDone)

	mapStats := map[string]any{
		"water_percentage":     waterPct,
		"non_water_percentage": 100 - waterPct,
	}
	if seasonal != nil {
		mapStats["seasonality_percentages"] = seasonal
	}
	if change != nil {
		mapStats["change_statistics"] = change
	}

	res := &model.AnalysisResult{
		AnalysisType: "water",
		GeometryType: gt,
		ROIAreaKm2:   area,
		URLFormat:    urlFormat,
		MapStats:     mapStats,
		DatasetsUsed: []string{dsJRCWater},
		Metadata: map[string]any{
			"occurrence_threshold": waterOccurrenceThreshold,
			"scale_m":              scaleFor(budget.BaseScaleM, area),
			"tile_count":           len(tiles),
			// The occurrence/seasonality/transition bands summarize the
			// dataset's own observation epoch, not the requested window.
			"temporal_basis": "dataset epoch (1984-2021)",
			"states":         r.states,
		},
		Success: true,
	}
	if retried {
		res.Metadata["coarse_retry"] = true
	}
	return res
}

// waterSeasonalityBreakdown classifies the ROI into permanent, seasonal,
// and no-water fractions from the seasonality band. Best effort: nil on
// failure, the primary result stands without it.
func (e *Engine) waterSeasonalityBreakdown(ctx context.Context, roi orb.Geometry, areaKm2 float64, budget config.IndicatorBudget) map[string]float64 {
	img := waterSeasonality().Unmask(0)
	h, err := e.reduceHistogram(ctx, img, roi, "seasonality", budget, areaKm2, seasonalityBin)
	if err != nil {
		slog.Debug("Water seasonality breakdown unavailable", "error", err)
		return nil
	}

	// Histogram keys arrive as raw month counts; fold into the three
	// classes.
	folded := make(map[string]float64)
	for key, count := range h.Counts {
		name := key
		if n, perr := strconv.ParseFloat(key, 64); perr == nil {
			name = seasonalityBin(n)
		}
		folded[name] += count
	}
	pcts := percentages(folded)
	pcts, _ = closePercentages(pcts)
	return pcts
}

// waterChangeStats summarizes the transition band into named change
// classes. Best effort: nil on failure.
func (e *Engine) waterChangeStats(ctx context.Context, roi orb.Geometry, areaKm2 float64, budget config.IndicatorBudget) map[string]float64 {
	img := waterTransition().Unmask(0)
	h, err := e.reduceHistogram(ctx, img, roi, "transition", budget, areaKm2, transitionBin)
	if err != nil {
		slog.Debug("Water change statistics unavailable", "error", err)
		return nil
	}

	named := make(map[string]float64)
	for key, count := range h.Counts {
		named[transitionClassName(key)] += count
	}
	return percentages(named)
}

func transitionBin(v float64) string {
	if name, ok := waterTransitionClasses[int(v+0.5)]; ok {
		return name
	}
	return "unknown"
}

func transitionClassName(key string) string {
	if n, err := strconv.ParseFloat(key, 64); err == nil {
		return transitionBin(n)
	}
	return key
}
