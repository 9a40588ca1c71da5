package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"geoquery/pkg/cache"
	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
	"geoquery/pkg/model"
	"geoquery/pkg/request"
)

// Params carries per-request analysis options.
type Params struct {
	TimeRange *model.TimeRange
	ROIName   string
}

// Indicators the engine can analyze.
var Indicators = []string{"ndvi", "lst", "lulc", "water"}

// Supported reports whether the engine has an analyzer for the indicator.
func Supported(indicator string) bool {
	for _, i := range Indicators {
		if i == indicator {
			return true
		}
	}
	return false
}

// Engine runs per-indicator remote-sensing analyses over an ROI: tiling,
// reduction, merging, visualization URLs, plus grid and point sampling.
// Stateless between requests; safe for concurrent use.
type Engine struct {
	backend imagery.Backend
	cfg     config.EngineConfig
	cache   cache.Cacher
	now     func() time.Time
}

// New creates an Engine. cache may be nil to disable point-sample caching.
func New(backend imagery.Backend, cfg config.EngineConfig, c cache.Cacher) *Engine {
	if c == nil {
		c = cache.NullCache{}
	}
	return &Engine{backend: backend, cfg: cfg, cache: c, now: time.Now}
}

// run states for one engine invocation. Recorded in result metadata so a
// failed request shows how far it got.
const (
	stateInit           = "INIT"
	stateBuildComposite = "BUILD_COMPOSITE"
	stateTiledLoop      = "TILED_LOOP"
	stateSingleReduce   = "SINGLE_REDUCE"
	stateMerge          = "MERGE"
	stateBuildTiles     = "BUILD_TILES"
	stateDone           = "DONE"
)

type run struct {
	states []string
}

func (r *run) enter(s string) {
	r.states = append(r.states, s)
}

// Analyze runs the analyzer for the indicator. The returned result is
// always non-nil; failures are structured, never panics.
func (e *Engine) Analyze(ctx context.Context, indicator string, roi orb.Geometry, params Params) *model.AnalysisResult {
	start := time.Now()
	if e.cfg.Deadline.Std() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Deadline.Std())
		defer cancel()
	}

	var res *model.AnalysisResult
	switch indicator {
	case "ndvi":
		res = e.analyzeNDVI(ctx, roi, params)
	case "lst":
		res = e.analyzeLST(ctx, roi, params)
	case "lulc":
		res = e.analyzeLULC(ctx, roi, params)
	case "water":
		res = e.analyzeWater(ctx, roi, params)
	default:
		res = model.NewAnalysisFailure(indicator, model.ErrValidation,
			fmt.Sprintf("unsupported analysis type %q", indicator))
	}

	res.ProcessingSecs = time.Since(start).Seconds()
	slog.Info("Analysis complete",
		"indicator", indicator, "success", res.Success,
		"area_km2", res.ROIAreaKm2, "elapsed_s", res.ProcessingSecs)
	return res
}

// dateWindow resolves the request time range, defaulting to the trailing
// twelve months.
func (e *Engine) dateWindow(params Params) (string, string) {
	if params.TimeRange != nil && params.TimeRange.Start != "" && params.TimeRange.End != "" {
		return params.TimeRange.Start, params.TimeRange.End
	}
	end := e.now()
	start := end.AddDate(-1, 0, 0)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// widen pushes a date window out by a year on each side. Used for the
// single no_data retry.
func widen(start, end string) (string, string) {
	s, err1 := time.Parse("2006-01-02", start)
	t, err2 := time.Parse("2006-01-02", end)
	if err1 != nil || err2 != nil {
		return start, end
	}
	return s.AddDate(-1, 0, 0).Format("2006-01-02"), t.AddDate(1, 0, 0).Format("2006-01-02")
}

// classify maps a backend error onto the failure taxonomy.
func classify(err error) model.ErrorType {
	switch {
	case errors.Is(err, imagery.ErrNoData):
		return model.ErrNoData
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrTimeout
	case request.StatusCode(err) == 429:
		return model.ErrQuotaExceeded
	case request.StatusCode(err) >= 500:
		return model.ErrBackendUnavailable
	default:
		return model.ErrProcessing
	}
}

func failure(indicator string, r *run, err error, msg string) *model.AnalysisResult {
	res := model.NewAnalysisFailure(indicator, classify(err), fmt.Sprintf("%s: %v", msg, err))
	res.Metadata["states"] = r.states
	return res
}

// tiles partitions the ROI per the indicator budget. Multipolygon ROIs
// tile as-is; every member is covered because tile cells clip against
// the full geometry.
func (e *Engine) tiles(indicator string, roi orb.Geometry) ([]geo.Tile, model.GeometryType) {
	budget := e.cfg.Budget(indicator)
	tiles := geo.TileROI(geo.Reducible(roi), budget.AreaBudgetKm2)
	gt := model.GeometrySinglePolygon
	if len(tiles) > 1 {
		gt = model.GeometryTiledPolygon
	}
	return tiles, gt
}

// scaleFor applies the large-area scale floor: ROIs past 1,000 km2 never
// reduce finer than 100 m.
func scaleFor(base float64, areaKm2 float64) float64 {
	if areaKm2 > 1000 && base < 100 {
		return 100
	}
	return base
}

// mapURL renders the visualization tiles, tolerating failure: a missing
// map URL degrades the result, it does not fail the analysis.
func (e *Engine) mapURL(ctx context.Context, indicator string, img imagery.Image) string {
	vis := visTable[indicator]
	u, err := e.backend.MapURL(ctx, img, vis)
	if err != nil {
		slog.Warn("Map URL generation failed", "indicator", indicator, "error", err)
		return ""
	}
	return u
}
