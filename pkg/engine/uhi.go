package engine

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"

	"geoquery/pkg/imagery"
)

// uhiMethod is one rung of the urban/rural mask ladder.
type uhiMethod struct {
	Name      string
	Source    func(roi orb.Geometry, start, end string) imagery.Image
	Urban     []int
	Rural     []int
	MinPixels float64
}

var uhiMethods = []uhiMethod{
	{
		Name: "dynamic_world",
		Source: func(roi orb.Geometry, start, end string) imagery.Image {
			return lulcComposite(roi, start, end)
		},
		Urban:     []int{6},
		Rural:     []int{1, 2, 4, 5},
		MinPixels: 3,
	},
	{
		Name: "modis_lc",
		Source: func(roi orb.Geometry, start, end string) imagery.Image {
			return imagery.NewCollection(dsModisLC).
				FilterBounds(roi).
				FilterDate(start, end).
				Select("LC_Type1").
				Mode().
				Rename("lc")
		},
		Urban:     []int{13},
		Rural:     []int{10, 12, 1, 4, 5},
		MinPixels: 2,
	},
	{
		Name: "esa_worldcover",
		Source: func(roi orb.Geometry, start, end string) imagery.Image {
			return imagery.NewImage(dsESAWorldCover).Select("Map").Rename("wc")
		},
		Urban:     []int{50},
		Rural:     []int{10, 20, 30, 40},
		MinPixels: 5,
	},
}

// uhiResult carries the computed urban-heat-island intensity and how it
// was obtained.
type uhiResult struct {
	Intensity   float64 `json:"uhi_intensity"`
	Method      string  `json:"method"`
	UrbanMean   float64 `json:"urban_mean,omitempty"`
	RuralMean   float64 `json:"rural_mean,omitempty"`
	UrbanPixels float64 `json:"urban_pixels,omitempty"`
	RuralPixels float64 `json:"rural_pixels,omitempty"`
}

// computeUHI walks the method ladder: three land-cover maskings with
// increasing pixel leniency, then the p90-p10 statistical spread, then
// a zero-intensity error fallback. Never returns an error.
func (e *Engine) computeUHI(ctx context.Context, lstImg imagery.Image, roi orb.Geometry, start, end string, scaleM float64, maxPixels int64) uhiResult {
	for _, m := range uhiMethods {
		lc := m.Source(roi, start, end)

		urbanMean, urbanCount, uerr := e.maskedMeanCount(ctx, lstImg, lc.MaskClasses(m.Urban...), roi, scaleM, maxPixels)
		if uerr != nil {
			slog.Debug("UHI urban reduction failed", "method", m.Name, "error", uerr)
			continue
		}
		ruralMean, ruralCount, rerr := e.maskedMeanCount(ctx, lstImg, lc.MaskClasses(m.Rural...), roi, scaleM, maxPixels)
		if rerr != nil {
			slog.Debug("UHI rural reduction failed", "method", m.Name, "error", rerr)
			continue
		}
		if urbanCount < m.MinPixels || ruralCount < m.MinPixels {
			continue
		}

		intensity := urbanMean - ruralMean
		if intensity < 0 {
			intensity = 0
		}
		return uhiResult{
			Intensity:   intensity,
			Method:      m.Name,
			UrbanMean:   urbanMean,
			RuralMean:   ruralMean,
			UrbanPixels: urbanCount,
			RuralPixels: ruralCount,
		}
	}

	// Statistical spread over the whole ROI.
	res, err := e.backend.ReduceRegion(ctx, lstImg, roi, imagery.ReduceRequest{
		Reducers:   []string{imagery.ReducePercentile},
		ScaleM:     scaleM,
		MaxPixels:  maxPixels,
		BestEffort: true,
	})
	if err == nil {
		p10, ok1 := pick(res, "LST", "p10")
		p90, ok2 := pick(res, "LST", "p90")
		if ok1 && ok2 {
			intensity := p90 - p10
			if intensity < 0 {
				intensity = 0
			}
			return uhiResult{Intensity: intensity, Method: "statistical"}
		}
	}
	return uhiResult{Intensity: 0, Method: "error_fallback"}
}

// maskedMeanCount reduces the LST image restricted to nonzero mask
// pixels, returning mean and valid-pixel count.
func (e *Engine) maskedMeanCount(ctx context.Context, lstImg, mask imagery.Image, roi orb.Geometry, scaleM float64, maxPixels int64) (float64, float64, error) {
	masked := lstImg.UpdateMask(mask)
	res, err := e.backend.ReduceRegion(ctx, masked, roi, imagery.ReduceRequest{
		Reducers:   []string{imagery.ReduceMean, imagery.ReduceCount},
		ScaleM:     scaleM,
		MaxPixels:  maxPixels,
		BestEffort: true,
	})
	if err != nil {
		return 0, 0, err
	}
	mean, ok := pick(res, "LST", "mean")
	if !ok {
		return 0, 0, imagery.ErrNoData
	}
	count, _ := pick(res, "LST", "count")
	return mean, count, nil
}
