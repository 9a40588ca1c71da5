package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"geoquery/pkg/config"
	"geoquery/pkg/engine"
	"geoquery/pkg/geo"
	"geoquery/pkg/model"
	"geoquery/pkg/rag"
	"geoquery/pkg/search"
)

// AnalysisEngine is the engine surface the dispatcher needs.
type AnalysisEngine interface {
	Analyze(ctx context.Context, indicator string, roi orb.Geometry, params engine.Params) *model.AnalysisResult
}

// Synthesizer is the web-search surface the dispatcher needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, intent *model.IntentResult, loc *model.LocationParseResult) *search.Outcome
}

// RAG is the document-answering surface. May be absent.
type RAG interface {
	Ask(ctx context.Context, query, sessionID string) (*rag.Answer, error)
}

// Dispatcher routes a classified query to its backend, enforcing the
// area gate and per-analysis deadlines, and degrading deterministically.
type Dispatcher struct {
	engine AnalysisEngine
	synth  Synthesizer
	rag    RAG // nil when unconfigured
	cfg    config.DispatchConfig
}

// New creates a Dispatcher. ragClient may be nil.
func New(eng AnalysisEngine, synth Synthesizer, ragClient RAG, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{engine: eng, synth: synth, rag: ragClient, cfg: cfg}
}

// Timeout derives the engine deadline for an analysis type and ROI area:
// base seconds scaled by area bucket, read component capped by config.
func (d *Dispatcher) Timeout(indicator string, areaKm2 float64) time.Duration {
	row, ok := d.cfg.Timeouts[indicator]
	if !ok {
		return 120 * time.Second
	}

	factor := 1.0
	switch {
	case areaKm2 < 1000:
		if len(row.Factor) > 0 {
			factor = row.Factor[0]
		}
	case areaKm2 < 10000:
		if len(row.Factor) > 1 {
			factor = row.Factor[1]
		}
	default:
		if len(row.Factor) > 2 {
			factor = row.Factor[2]
		}
	}

	read := time.Duration(float64(row.Base.Std()) * factor)
	if limit := d.cfg.ReadTimeoutCap.Std(); limit > 0 && read > limit {
		read = limit
	}
	connect := d.cfg.ConnectTimeout.Std()
	if connect > 10*time.Second || connect <= 0 {
		connect = 10 * time.Second
	}
	return connect + read
}

// Dispatch routes the request. The returned ServiceResult is always
// non-nil.
func (d *Dispatcher) Dispatch(ctx context.Context, q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, ev *model.Evidence) *model.ServiceResult {
	// Uploaded-document sessions take priority when the RAG path exists.
	if q.SessionID != "" && d.rag != nil {
		ev.Add("dispatcher", "route_rag")
		if res := d.runRAG(ctx, q, ev); res != nil {
			return res
		}
		// RAG failure degrades to search.
		ev.Add("rag_service", "fallback")
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}

	switch intent.ServiceType {
	case model.ServiceGEE:
		return d.dispatchGEE(ctx, q, loc, intent, ev)
	case model.ServiceSearch:
		ev.Add("dispatcher", "route_search")
		return d.runSearch(ctx, q, intent, loc, ev)
	case model.ServiceRAG:
		// Classified as RAG but no usable session or service.
		ev.Add("dispatcher", "route_rag_unavailable")
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}

	return &model.ServiceResult{
		Service:   intent.ServiceType,
		Error:     fmt.Sprintf("no backend for service type %q", intent.ServiceType),
		ErrorType: model.ErrProcessing,
	}
}

func (d *Dispatcher) dispatchGEE(ctx context.Context, q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, ev *model.Evidence) *model.ServiceResult {
	indicator := intent.AnalysisType

	if loc == nil || loc.ROIGeometry == nil {
		ev.Add("dispatcher", "gee_no_roi")
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}
	if !engine.Supported(indicator) {
		ev.Addf("dispatcher", "gee_unsupported_%s", indicator)
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}
	// The engine is absent when the imagery backend failed to construct.
	if d.engine == nil {
		ev.Add("dispatcher", "gee_engine_unavailable")
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}

	// Area gate: oversized ROIs are refused before the engine runs.
	area := geo.AreaKm2(loc.ROIGeometry)
	if d.cfg.MaxROIKm2 > 0 && area > d.cfg.MaxROIKm2 {
		ev.Add("dispatcher", "area_too_large")
		name := "the requested area"
		if loc.Primary != nil {
			name = loc.Primary.DisplayName
		}
		return &model.ServiceResult{
			Service: model.ServiceGEE,
			Error: fmt.Sprintf(
				"%s covers about %.0f km², which exceeds the %.0f km² limit for satellite analysis. Try a smaller region, such as a single district or city within it.",
				name, area, d.cfg.MaxROIKm2),
			ErrorType: model.ErrAreaTooLarge,
		}
	}

	ev.Addf("dispatcher", "route_gee_%s", indicator)
	deadline := d.Timeout(indicator, area)
	ectx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result := d.engine.Analyze(ectx, indicator, loc.ROIGeometry, engine.Params{
		TimeRange: intent.TimeRange,
		ROIName:   roiName(loc),
	})

	if result.Success {
		ev.Addf(indicator+"_service", "success")
		return &model.ServiceResult{
			Service:  model.ServiceGEE,
			Analysis: result,
			Success:  true,
		}
	}

	ev.Addf(indicator+"_service", "failed_%s", result.ErrorType)
	switch result.ErrorType {
	case model.ErrTimeout, model.ErrBackendUnavailable, model.ErrProcessing:
		// Degrade to the search synthesizer with the same query.
		slog.Warn("Engine failed, degrading to web search",
			"indicator", indicator, "error_type", result.ErrorType, "error", result.Error)
		ev.Addf(indicator+"_service", "fallback")
		res := d.runSearch(ctx, q, intent, loc, ev)
		res.Fallback = true
		return res
	}

	// no_data, quota_exceeded, area_too_large, validation surface as-is.
	return &model.ServiceResult{
		Service:   model.ServiceGEE,
		Analysis:  result,
		Error:     result.Error,
		ErrorType: result.ErrorType,
	}
}

func (d *Dispatcher) runRAG(ctx context.Context, q model.Query, ev *model.Evidence) *model.ServiceResult {
	ans, err := d.rag.Ask(ctx, q.Text, q.SessionID)
	if err != nil {
		slog.Warn("RAG request failed", "error", err)
		ev.Add("rag_service", "failed")
		return nil
	}
	ev.Add("rag_service", "success")
	return &model.ServiceResult{
		Service:    model.ServiceRAG,
		RAGAnswer:  ans.Analysis,
		Sources:    ans.Sources,
		Confidence: ans.Confidence,
		Success:    true,
	}
}

func (d *Dispatcher) runSearch(ctx context.Context, q model.Query, intent *model.IntentResult, loc *model.LocationParseResult, ev *model.Evidence) *model.ServiceResult {
	out := d.synth.Synthesize(ctx, q.Text, intent, loc)
	if !out.Success {
		ev.Add("search_service", "failed")
		return &model.ServiceResult{
			Service:   model.ServiceSearch,
			Error:     out.Error,
			ErrorType: out.ErrorType,
		}
	}
	ev.Addf("search_service", "success_%d_sources", len(out.Sources))
	return &model.ServiceResult{
		Service:    model.ServiceSearch,
		SearchText: out.Analysis,
		Sources:    out.Sources,
		Confidence: out.Confidence,
		Quality:    out.Quality.Overall,
		Success:    true,
	}
}

func roiName(loc *model.LocationParseResult) string {
	if loc != nil && loc.Primary != nil {
		return loc.Primary.DisplayName
	}
	return ""
}
