package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

// GridResult is the output of GenerateGrid.
type GridResult struct {
	Success        bool                       `json:"success"`
	Features       *geojson.FeatureCollection `json:"features,omitempty"`
	CellCount      int                        `json:"cell_count"`
	ProcessingSecs float64                    `json:"processing_time_seconds"`
	Error          string                     `json:"error,omitempty"`
	ErrorType      model.ErrorType            `json:"error_type,omitempty"`
}

const defaultGridWorkers = 8

// GenerateGrid overlays a sampling grid on the ROI and reduces the
// indicator per cell. Cells run on a bounded worker pool; the feature
// collection comes back in scan order regardless of completion order.
// On deadline the whole result is a timeout, partials discarded.
func (e *Engine) GenerateGrid(ctx context.Context, indicator string, roi orb.Geometry, cellKm float64, params Params) *GridResult {
	start := time.Now()
	res := &GridResult{}
	defer func() { res.ProcessingSecs = time.Since(start).Seconds() }()

	if !Supported(indicator) {
		res.Error = fmt.Sprintf("unsupported analysis type %q", indicator)
		res.ErrorType = model.ErrValidation
		return res
	}

	deadline := e.cfg.GridDeadline.Std()
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rg := geo.Reducible(roi)
	cells := geo.GridCells(rg, cellKm)
	if len(cells) == 0 {
		res.Error = "grid produced no cells over the ROI"
		res.ErrorType = model.ErrValidation
		return res
	}

	winStart, winEnd := e.dateWindow(params)
	img := e.gridComposite(indicator, rg, winStart, winEnd)
	budget := e.cfg.Budget(indicator)

	workers := e.cfg.GridWorkers
	if workers <= 0 {
		workers = defaultGridWorkers
	}

	type cellOut struct {
		feature *geojson.Feature
		err     error
	}
	outs := make([]cellOut, len(cells))
	sem := make(chan struct{}, workers)
	done := make(chan int, len(cells))

	for i, cell := range cells {
		go func(i int, cell geo.GridCell) {
			sem <- struct{}{}
			defer func() { <-sem }()
			f, err := e.reduceCell(ctx, indicator, img, cell, budget)
			outs[i] = cellOut{feature: f, err: err}
			done <- i
		}(i, cell)
	}
	for range cells {
		<-done
	}

	if ctx.Err() != nil {
		res.Error = "grid sampling deadline exceeded"
		res.ErrorType = model.ErrTimeout
		return res
	}

	fc := geojson.NewFeatureCollection()
	for _, o := range outs {
		if o.err != nil {
			if o.err == imagery.ErrNoData {
				continue
			}
			res.Error = fmt.Sprintf("grid cell reduction failed: %v", o.err)
			res.ErrorType = classify(o.err)
			return res
		}
		if o.feature != nil {
			fc.Append(o.feature)
		}
	}

	res.Success = true
	res.Features = fc
	res.CellCount = len(fc.Features)
	return res
}

func (e *Engine) gridComposite(indicator string, roi orb.Geometry, start, end string) imagery.Image {
	switch indicator {
	case "ndvi":
		return ndviComposite(roi, start, end)
	case "lst":
		return lstComposite(roi, start, end)
	case "lulc":
		return lulcComposite(roi, start, end)
	default:
		return waterMask(waterOccurrenceThreshold).Unmask(0)
	}
}

func (e *Engine) reduceCell(ctx context.Context, indicator string, img imagery.Image, cell geo.GridCell, budget config.IndicatorBudget) (*geojson.Feature, error) {
	band := gridBand(indicator)
	s, _, err := e.reduceContinuous(ctx, img, cell.Geometry, band, budget, cell.AreaKm2)
	if err != nil {
		return nil, err
	}

	f := geojson.NewFeature(cell.Geometry)
	f.Properties["cell_id"] = cell.ID
	f.Properties["mean"] = s.Mean
	f.Properties["min"] = s.Min
	f.Properties["max"] = s.Max
	f.Properties["stdDev"] = s.StdDev
	f.Properties["classification"] = gridLabel(indicator, s.Mean)
	return f, nil
}

func gridBand(indicator string) string {
	switch indicator {
	case "ndvi":
		return "NDVI"
	case "lst":
		return "LST"
	case "lulc":
		return "label"
	default:
		return "water"
	}
}

func gridLabel(indicator string, mean float64) string {
	switch indicator {
	case "ndvi":
		return ndviBin(mean)
	case "lst":
		switch {
		case mean >= 40:
			return "very_hot"
		case mean >= 32:
			return "hot"
		case mean >= 24:
			return "warm"
		default:
			return "mild"
		}
	case "lulc":
		return lulcBin(mean)
	default:
		if mean >= 0.5 {
			return "water"
		}
		return "land"
	}
}
