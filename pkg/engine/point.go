package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
)

// Buffer floors in meters per indicator.
var bufferFloors = map[string]float64{
	"ndvi":  15,
	"lst":   250,
	"lulc":  10,
	"water": 30,
}

// Successive water probe buffers in meters. Zero means one pixel.
var waterBufferLadder = []float64{0, 60, 120}

// H3 resolution for sample cache keys: ~0.1 km2 cells, comfortably
// finer than any sampling buffer.
const sampleCacheResolution = 9

// SampleAtPoint probes the indicator value at a single coordinate. The
// point is buffered by max(scale/2, floor) and mean-reduced. Water walks
// a widening buffer ladder and finally the max-extent band before
// settling on "assumed land".
func (e *Engine) SampleAtPoint(ctx context.Context, indicator string, lng, lat float64, params Params) *model.PointSample {
	if !Supported(indicator) {
		return &model.PointSample{Note: fmt.Sprintf("unsupported analysis type %q", indicator)}
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return &model.PointSample{Note: "coordinates outside WGS84 bounds"}
	}

	winStart, winEnd := e.dateWindow(params)
	cacheKey := e.sampleCacheKey(indicator, lng, lat, winStart, winEnd)
	if cacheKey != "" {
		if raw, hit := e.cache.GetCache(ctx, cacheKey); hit {
			var cached model.PointSample
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached
			}
		}
	}

	var sample *model.PointSample
	if indicator == "water" {
		sample = e.sampleWater(ctx, lng, lat)
	} else {
		sample = e.sampleSimple(ctx, indicator, lng, lat, winStart, winEnd)
	}
	sample.DateRange = fmt.Sprintf("%s to %s", winStart, winEnd)

	if cacheKey != "" && sample.Success {
		if raw, err := json.Marshal(sample); err == nil {
			if cerr := e.cache.SetCache(ctx, cacheKey, raw); cerr != nil {
				slog.Debug("Failed to cache point sample", "key", cacheKey, "error", cerr)
			}
		}
	}
	return sample
}

func (e *Engine) sampleCacheKey(indicator string, lng, lat float64, start, end string) string {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), sampleCacheResolution)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("sample:%s:%s:%s:%s", indicator, cell.String(), start, end)
}

func (e *Engine) sampleSimple(ctx context.Context, indicator string, lng, lat float64, start, end string) *model.PointSample {
	budget := e.cfg.Budget(indicator)
	buffer := math.Max(budget.BaseScaleM/2, bufferFloors[indicator])
	p := orb.Point{lng, lat}

	img := e.gridComposite(indicator, geo.PointBuffer(p, buffer*4), start, end)
	band := gridBand(indicator)

	res, err := e.backend.ReduceRegion(ctx, img, geo.PointBuffer(p, buffer), imagery.ReduceRequest{
		Reducers:  []string{imagery.ReduceMean},
		ScaleM:    budget.BaseScaleM,
		MaxPixels: 1e6,
	})
	if err != nil {
		return &model.PointSample{
			ScaleMeters:  budget.BaseScaleM,
			BufferMeters: buffer,
			Note:         fmt.Sprintf("sampling failed: %v", err),
		}
	}
	val, ok := pick(res, band, "mean")
	if !ok {
		return &model.PointSample{
			ScaleMeters:  budget.BaseScaleM,
			BufferMeters: buffer,
			Note:         "no data at this location",
		}
	}

	return &model.PointSample{
		Success:      true,
		Value:        val,
		Units:        sampleUnits(indicator),
		QualityScore: 0.9,
		ScaleMeters:  budget.BaseScaleM,
		BufferMeters: buffer,
	}
}

// sampleWater probes the binary water mask through widening buffers,
// then the max-extent band, before assuming land.
func (e *Engine) sampleWater(ctx context.Context, lng, lat float64) *model.PointSample {
	budget := e.cfg.Budget("water")
	p := orb.Point{lng, lat}
	mask := waterMask(waterOccurrenceThreshold).Unmask(0)

	for _, extra := range waterBufferLadder {
		buffer := math.Max(budget.BaseScaleM/2, bufferFloors["water"]) + extra
		res, err := e.backend.ReduceRegion(ctx, mask, geo.PointBuffer(p, buffer), imagery.ReduceRequest{
			Reducers:  []string{imagery.ReduceMean},
			ScaleM:    budget.BaseScaleM,
			MaxPixels: 1e6,
		})
		if err != nil {
			continue
		}
		if val, ok := pick(res, "water", "mean"); ok {
			return &model.PointSample{
				Success:      true,
				Value:        val,
				Units:        "water fraction",
				QualityScore: 0.9 - 0.1*float64(indexOf(waterBufferLadder, extra)),
				ScaleMeters:  budget.BaseScaleM,
				BufferMeters: buffer,
			}
		}
	}

	// Max-extent probe: has this pixel ever been observed as water.
	ext := waterMaxExtent().Unmask(0)
	buffer := bufferFloors["water"] + waterBufferLadder[len(waterBufferLadder)-1]
	res, err := e.backend.ReduceRegion(ctx, ext, geo.PointBuffer(p, buffer), imagery.ReduceRequest{
		Reducers:  []string{imagery.ReduceMean},
		ScaleM:    budget.BaseScaleM,
		MaxPixels: 1e6,
	})
	if err == nil {
		if val, ok := pick(res, "max_extent", "mean"); ok && val > 0 {
			return &model.PointSample{
				Success:      true,
				Value:        val,
				Units:        "max extent fraction",
				QualityScore: 0.4,
				ScaleMeters:  budget.BaseScaleM,
				BufferMeters: buffer,
				Note:         "historical maximum water extent, not current water",
			}
		}
	}

	return &model.PointSample{
		Success:      true,
		Value:        0,
		Units:        "water fraction",
		QualityScore: 0.2,
		ScaleMeters:  budget.BaseScaleM,
		BufferMeters: buffer,
		Note:         "assumed land",
	}
}

func sampleUnits(indicator string) string {
	switch indicator {
	case "ndvi":
		return "NDVI"
	case "lst":
		return "celsius"
	case "lulc":
		return "class label"
	default:
		return "water fraction"
	}
}

func indexOf(s []float64, v float64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}
