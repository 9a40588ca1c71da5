package format

import (
	"strings"
	"testing"
	"time"

	"geoquery/pkg/model"
)

func baseIntent() *model.IntentResult {
	return &model.IntentResult{
		ServiceType:  model.ServiceGEE,
		AnalysisType: "ndvi",
		Confidence:   0.9,
		Success:      true,
	}
}

func ndviResult(mean float64) *model.AnalysisResult {
	return &model.AnalysisResult{
		AnalysisType: "ndvi",
		Success:      true,
		ROIAreaKm2:   120,
		GeometryType: model.GeometrySinglePolygon,
		DatasetsUsed: []string{"COPERNICUS/S2_SR_HARMONIZED"},
		MapStats: map[string]any{
			"NDVI_mean":   mean,
			"NDVI_min":    0.1,
			"NDVI_max":    0.8,
			"NDVI_stdDev": 0.12,
			"vegetation_percentages": map[string]float64{
				"dense_vegetation":    55.0,
				"moderate_vegetation": 30.0,
				"sparse_vegetation":   15.0,
			},
		},
		URLFormat: "https://earthengine.googleapis.com/map/{z}/{x}/{y}",
	}
}

func TestFormatEngineResult(t *testing.T) {
	f := New()
	q := model.Query{Text: "vegetation health in delhi", RequestID: "req-1"}
	svc := &model.ServiceResult{
		Service:  model.ServiceGEE,
		Success:  true,
		Analysis: ndviResult(0.45),
	}
	ev := model.NewEvidence()

	resp := f.Format(q, nil, baseIntent(), svc, ev, Timing{Total: 3 * time.Second})

	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Summary != "Good vegetation health (NDVI 0.45)." {
		t.Errorf("summary = %q", resp.Summary)
	}
	for _, want := range []string{
		"📝 Query: vegetation health in delhi",
		"🔧 Service: GEE (ndvi)",
		"Analyzed 120 km²",
		"NDVI: mean 0.45",
		"dense_vegetation: 55.0%",
		"Map tiles are available",
	} {
		if !strings.Contains(resp.Analysis, want) {
			t.Errorf("analysis missing %q:\n%s", want, resp.Analysis)
		}
	}
	if resp.Metadata["request_id"] != "req-1" {
		t.Errorf("metadata = %v", resp.Metadata)
	}
}

func TestSummarizeRanges(t *testing.T) {
	f := New()
	tests := []struct {
		result *model.AnalysisResult
		want   string
	}{
		{ndviResult(0.65), "Excellent vegetation health (NDVI 0.65)."},
		{ndviResult(0.45), "Good vegetation health (NDVI 0.45)."},
		{ndviResult(0.30), "Moderate vegetation cover (NDVI 0.30)."},
		{ndviResult(0.15), "Sparse vegetation (NDVI 0.15)."},
		{ndviResult(0.05), "Little to no vegetation (NDVI 0.05)."},
		{&model.AnalysisResult{AnalysisType: "lst", MapStats: map[string]any{"LST_mean": 42.3}},
			"Very hot surface conditions (mean 42.3°C)."},
		{&model.AnalysisResult{AnalysisType: "lst", MapStats: map[string]any{"LST_mean": 26.0}},
			"Warm surface conditions (mean 26.0°C)."},
		{&model.AnalysisResult{AnalysisType: "water", MapStats: map[string]any{"water_percentage": 31.0}},
			"Substantial surface water presence (31.0%)."},
		{&model.AnalysisResult{AnalysisType: "water", MapStats: map[string]any{"water_percentage": 0.1}},
			"Minimal surface water (0.1%)."},
		{&model.AnalysisResult{AnalysisType: "lulc", MapStats: map[string]any{
			"dominant_class":    "built_area",
			"class_percentages": map[string]float64{"built_area": 61.2},
		}}, "Dominant land cover: built_area (61.2% of the area)."},
		{&model.AnalysisResult{AnalysisType: "lulc", MapStats: map[string]any{}},
			"Land cover analysis complete."},
	}
	for _, tt := range tests {
		if got := f.summarize(tt.result); got != tt.want {
			t.Errorf("summarize(%s) = %q, want %q", tt.result.AnalysisType, got, tt.want)
		}
	}
}

func TestFormatSearchResult(t *testing.T) {
	f := New()
	q := model.Query{Text: "air quality in delhi"}
	svc := &model.ServiceResult{
		Service:    model.ServiceSearch,
		Success:    true,
		SearchText: "Air quality has declined over the last decade.\nPM2.5 levels remain high.",
		Sources:    []model.SearchSource{{Title: "report", URL: "https://example.org"}},
		Confidence: 0.6,
	}

	resp := f.Format(q, nil, baseIntent(), svc, model.NewEvidence(), Timing{})

	if !resp.Success {
		t.Fatal("expected success")
	}
	if !strings.HasPrefix(resp.Analysis, "📝 Query:") {
		t.Errorf("search text without header must gain one:\n%s", resp.Analysis)
	}
	if resp.Summary != "Air quality has declined over the last decade." {
		t.Errorf("summary = %q", resp.Summary)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("sources = %v", resp.Sources)
	}
	if resp.Confidence != 0.6 {
		t.Errorf("confidence = %v, service figure must win", resp.Confidence)
	}
}

func TestWithHeaderPassthrough(t *testing.T) {
	f := New()
	pre := "📝 Query: already formatted\n\nbody text"
	got := f.withHeader(pre, model.Query{Text: "q"}, nil, baseIntent(), Timing{})
	if got != pre {
		t.Errorf("text with a header must pass through unchanged:\n%s", got)
	}
}

func TestFormatErrorResult(t *testing.T) {
	f := New()
	svc := &model.ServiceResult{
		Service:   model.ServiceGEE,
		Error:     "region covers too much area",
		ErrorType: model.ErrAreaTooLarge,
	}

	resp := f.Format(model.Query{Text: "q"}, nil, baseIntent(), svc, model.NewEvidence(), Timing{})

	if resp.Success {
		t.Fatal("error results must not be marked successful")
	}
	if resp.ErrorType != model.ErrAreaTooLarge {
		t.Errorf("error type = %q", resp.ErrorType)
	}
	if resp.Analysis != svc.Error || resp.Summary != svc.Error {
		t.Errorf("analysis/summary = %q / %q", resp.Analysis, resp.Summary)
	}
}

func TestConfidenceBlend(t *testing.T) {
	f := New()
	intent := &model.IntentResult{Confidence: 0.8}

	if got := f.confidence(intent, &model.ServiceResult{Confidence: 0.65}); got != 0.65 {
		t.Errorf("service confidence must win, got %v", got)
	}
	if got := f.confidence(intent, &model.ServiceResult{Quality: 0.6}); got != 0.7 {
		t.Errorf("blend = %v, want 0.7", got)
	}
	if got := f.confidence(&model.IntentResult{Confidence: 1.5}, &model.ServiceResult{Quality: 1.5}); got != 1 {
		t.Errorf("blend must clamp to 1, got %v", got)
	}
}

func TestFirstLineSkipsHeaderLines(t *testing.T) {
	text := "📝 Query: q\n📍 Locations: Delhi\n🔧 Service: search\n\nThe real first line.\nSecond."
	if got := firstLine(text); got != "The real first line." {
		t.Errorf("firstLine = %q", got)
	}
}

func TestFormatTimingEvidence(t *testing.T) {
	f := New()
	ev := model.NewEvidence()
	svc := &model.ServiceResult{Service: model.ServiceGEE, Success: true, Analysis: ndviResult(0.4)}

	resp := f.Format(model.Query{Text: "q"}, nil, baseIntent(), svc, ev, Timing{
		Location: 1200 * time.Millisecond,
		Intent:   800 * time.Millisecond,
		Service:  2 * time.Second,
	})

	joined := strings.Join(resp.Evidence, "|")
	for _, want := range []string{
		"formatter:intent_processing_time_0.8s",
		"formatter:location_processing_time_1.2s",
		"formatter:service_processing_time_2.0s",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("evidence missing %q: %v", want, resp.Evidence)
		}
	}
}
