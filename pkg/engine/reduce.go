package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"geoquery/pkg/config"
	"geoquery/pkg/imagery"
)

// stats is one continuous-band reduction.
type stats struct {
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// reduceContinuous runs mean+minMax+stdDev over the geometry with scale
// adaptation: large ROIs never reduce below 100 m, and an all-null or
// all-zero first pass gets one coarser retry (scale x2, pixels x4).
func (e *Engine) reduceContinuous(ctx context.Context, img imagery.Image, g orb.Geometry, band string, budget config.IndicatorBudget, areaKm2 float64) (stats, bool, error) {
	scale := scaleFor(budget.BaseScaleM, areaKm2)
	req := imagery.ReduceRequest{
		Reducers:   []string{imagery.ReduceMean, imagery.ReduceMinMax, imagery.ReduceStdDev},
		ScaleM:     scale,
		MaxPixels:  budget.MaxPixels,
		BestEffort: true,
	}

	s, err := e.reduceStats(ctx, img, g, band, req)
	if err == nil && !degenerate(s) {
		return s, false, nil
	}
	if err != nil && err != imagery.ErrNoData {
		return stats{}, false, err
	}

	// Coarser retry.
	req.ScaleM = scale * 2
	req.MaxPixels = budget.MaxPixels * 4
	slog.Debug("Retrying reduction at coarser scale", "band", band, "scale_m", req.ScaleM)
	s, rerr := e.reduceStats(ctx, img, g, band, req)
	if rerr != nil {
		return stats{}, true, rerr
	}
	if degenerate(s) {
		return stats{}, true, imagery.ErrNoData
	}
	return s, true, nil
}

func (e *Engine) reduceStats(ctx context.Context, img imagery.Image, g orb.Geometry, band string, req imagery.ReduceRequest) (stats, error) {
	res, err := e.backend.ReduceRegion(ctx, img, g, req)
	if err != nil {
		return stats{}, err
	}

	mean, ok1 := pick(res, band, "mean")
	min, ok2 := pick(res, band, "min")
	max, ok3 := pick(res, band, "max")
	sd, ok4 := pick(res, band, "stdDev")
	if !ok1 {
		return stats{}, imagery.ErrNoData
	}
	if !ok2 {
		min = mean
	}
	if !ok3 {
		max = mean
	}
	if !ok4 {
		sd = 0
	}
	return stats{Mean: mean, Min: min, Max: max, StdDev: sd}, nil
}

// degenerate spots the all-zero reductions that masked-out regions
// produce instead of an error.
func degenerate(s stats) bool {
	return s.Mean == 0 && s.Min == 0 && s.Max == 0 && s.StdDev == 0
}

// pick finds a reduction output for a band under the usual key spellings
// ("band_mean", bare "mean", bare band name).
func pick(res map[string]any, band, suffix string) (float64, bool) {
	for _, key := range []string{band + "_" + suffix, suffix, band} {
		if v, ok := res[key]; ok && v != nil {
			if n, ok := imagery.Number(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// histogramResult is a class-count histogram plus the method that
// produced it.
type histogramResult struct {
	Counts map[string]float64
	Method string
}

// reduceHistogram implements the three-step histogram strategy:
// frequencyHistogram reducer, then client-side binning of random pixel
// samples, then a synthetic three-bin histogram around the mean.
func (e *Engine) reduceHistogram(ctx context.Context, img imagery.Image, g orb.Geometry, band string, budget config.IndicatorBudget, areaKm2 float64, bin func(float64) string) (histogramResult, error) {
	scale := scaleFor(budget.BaseScaleM, areaKm2)

	res, err := e.backend.ReduceRegion(ctx, img, g, imagery.ReduceRequest{
		Reducers:   []string{imagery.ReduceHistogram},
		ScaleM:     scale,
		MaxPixels:  budget.MaxPixels,
		BestEffort: true,
	})
	if err != nil && err != imagery.ErrNoData {
		return histogramResult{}, err
	}
	if err == nil {
		for key, v := range res {
			if !strings.HasPrefix(key, band) && key != "histogram" {
				continue
			}
			if counts, ok := imagery.Histogram(v); ok && len(counts) > 0 {
				return histogramResult{Counts: counts, Method: "frequency_histogram"}, nil
			}
		}
	}

	// Step 2: random pixel sampling, binned client-side.
	numPixels := int(math.Min(8*areaKm2, 4000))
	if numPixels < 500 {
		numPixels = 500
	}
	rows, serr := e.backend.SampleRegion(ctx, img, g, scale*2, numPixels)
	if serr != nil && serr != imagery.ErrNoData {
		return histogramResult{}, serr
	}
	if len(rows) > 0 {
		counts := make(map[string]float64)
		for _, row := range rows {
			v, ok := row[band]
			if !ok {
				// Single-band images sample under whatever name the
				// pipeline left; take the first value.
				for _, n := range row {
					v, ok = n, true
					break
				}
			}
			if ok {
				counts[bin(v)]++
			}
		}
		if len(counts) > 0 {
			return histogramResult{Counts: counts, Method: "point_sampling"}, nil
		}
	}

	// Step 3: synthesize around the mean so the caller still gets a
	// distribution shape.
	s, _, rerr := e.reduceContinuous(ctx, img, g, band, budget, areaKm2)
	if rerr != nil {
		return histogramResult{}, fmt.Errorf("histogram fallback exhausted: %w", rerr)
	}
	counts := map[string]float64{
		bin(s.Mean - s.StdDev): 25,
		bin(s.Mean):            50,
		bin(s.Mean + s.StdDev): 25,
	}
	return histogramResult{Counts: counts, Method: "basic_stats"}, nil
}

// percentages converts class counts into percentages of the total.
func percentages(counts map[string]float64) map[string]float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	out := make(map[string]float64, len(counts))
	if total <= 0 {
		return out
	}
	for k, c := range counts {
		out[k] = 100 * c / total
	}
	return out
}
