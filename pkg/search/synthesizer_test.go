package search

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"geoquery/pkg/config"
	"geoquery/pkg/model"
)

type searchCall struct {
	query string
	opts  Options
}

// scriptedSearch is a WebSearch that records calls and replays canned
// results. Safe for the synthesizer's parallel fan-out.
type scriptedSearch struct {
	mu      sync.Mutex
	calls   []searchCall
	results []Result
	err     error
}

func (s *scriptedSearch) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, searchCall{query: query, opts: opts})
	s.mu.Unlock()
	return s.results, s.err
}

func (s *scriptedSearch) recorded() []searchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]searchCall(nil), s.calls...)
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxResults:   5,
		MaxQueries:   5,
		QueryTimeout: config.Duration(2 * time.Second),
	}
}

func lstIntent() *model.IntentResult {
	return &model.IntentResult{ServiceType: model.ServiceSearch, AnalysisType: "lst", Success: true}
}

func delhiLoc() *model.LocationParseResult {
	return &model.LocationParseResult{
		Primary: &model.ResolvedLocation{DisplayName: "Delhi, India"},
		Success: true,
	}
}

func TestSynthesizeWithoutBackend(t *testing.T) {
	s := NewSynthesizer(nil, testSearchConfig())
	out := s.Synthesize(context.Background(), "heat in delhi", lstIntent(), delhiLoc())
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.ErrorType != model.ErrBackendUnavailable {
		t.Errorf("error type = %q, want backend_unavailable", out.ErrorType)
	}
}

func TestSynthesizeNoResults(t *testing.T) {
	ws := &scriptedSearch{}
	s := NewSynthesizer(ws, testSearchConfig())
	out := s.Synthesize(context.Background(), "heat in delhi", lstIntent(), delhiLoc())
	if out.Success || out.ErrorType != model.ErrNoData {
		t.Errorf("got %+v, want no_data", out)
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	ws := &scriptedSearch{results: []Result{{
		Title:   "Delhi heat report",
		URL:     "https://nasa.gov/delhi-heat",
		Content: "In 2025 the surface hit 41°C with 80% of the city affected.",
		Score:   0.9,
	}}}
	s := NewSynthesizer(ws, testSearchConfig())
	s.now = func() time.Time { return time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) }

	out := s.Synthesize(context.Background(), "how hot is delhi", lstIntent(), delhiLoc())

	if !out.Success {
		t.Fatalf("synthesis failed: %s", out.Error)
	}
	if len(out.Sources) != 1 || out.Sources[0].URL != "https://nasa.gov/delhi-heat" {
		t.Errorf("sources = %+v", out.Sources)
	}
	if len(out.Metrics) == 0 {
		t.Error("expected extracted metrics")
	}
	if out.Confidence > maxConfidenceCap {
		t.Errorf("confidence %v exceeds cap %v", out.Confidence, maxConfidenceCap)
	}
	for _, want := range []string{"📝 Query:", "📍 Locations: Delhi, India", "Data quality:", "Consulted 1 sources"} {
		if !strings.Contains(out.Analysis, want) {
			t.Errorf("narrative missing %q:\n%s", want, out.Analysis)
		}
	}
}

func TestSynthesizeConfidenceCapped(t *testing.T) {
	// Credible, recent, complete, and accurate sources push the raw
	// quality score above the cap.
	ws := &scriptedSearch{results: []Result{{
		Title:   "USGS bulletin",
		URL:     "https://usgs.gov/lst",
		Content: "2025 measurements: 38.2°C mean, 95% coverage.",
		Score:   1,
	}}}
	s := NewSynthesizer(ws, testSearchConfig())
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	out := s.Synthesize(context.Background(), "delhi lst", lstIntent(), delhiLoc())
	if !out.Success {
		t.Fatalf("synthesis failed: %s", out.Error)
	}
	if out.Quality.Overall <= maxConfidenceCap {
		t.Fatalf("test premise broken: overall quality %v not above cap", out.Quality.Overall)
	}
	if out.Confidence != maxConfidenceCap {
		t.Errorf("confidence = %v, want capped at %v", out.Confidence, maxConfidenceCap)
	}
}

func TestBuildQueries(t *testing.T) {
	s := NewSynthesizer(&scriptedSearch{}, testSearchConfig())

	queries := s.buildQueries("vegetation in delhi", "ndvi", "Delhi, India")
	if len(queries) > maxQueries {
		t.Fatalf("%d queries, want at most %d", len(queries), maxQueries)
	}
	if queries[0] != "vegetation in delhi" {
		t.Errorf("first query must be the original, got %q", queries[0])
	}
	joined := strings.Join(queries, "|")
	if !strings.Contains(joined, "NDVI") {
		t.Errorf("queries missing indicator terms: %v", queries)
	}
	if !strings.Contains(joined, "Delhi, India") {
		t.Errorf("queries missing location: %v", queries)
	}
}

func TestBuildQueriesHonorsConfigLimit(t *testing.T) {
	cfg := testSearchConfig()
	cfg.MaxQueries = 2
	s := NewSynthesizer(&scriptedSearch{}, cfg)

	queries := s.buildQueries("q", "ndvi", "Delhi")
	if len(queries) != 2 {
		t.Errorf("%d queries, want 2", len(queries))
	}
}

func TestFanOutPinsCredibleDomains(t *testing.T) {
	ws := &scriptedSearch{results: []Result{{URL: "https://example.org", Score: 0.5}}}
	s := NewSynthesizer(ws, testSearchConfig())

	s.Synthesize(context.Background(), "q", lstIntent(), delhiLoc())

	pinned := 0
	for _, c := range ws.recorded() {
		if len(c.opts.IncludeDomains) > 0 {
			pinned++
		}
	}
	if pinned != 1 {
		t.Errorf("%d calls pinned to credible domains, want exactly 1", pinned)
	}
}

func TestFanOutDeduplicatesAndRanks(t *testing.T) {
	ws := &scriptedSearch{results: []Result{
		{URL: "https://a.example", Score: 0.3},
		{URL: "https://b.example", Score: 0.9},
		{URL: "https://a.example", Score: 0.3},
	}}
	s := NewSynthesizer(ws, testSearchConfig())

	results := s.fanOut(context.Background(), []string{"one", "two"})
	if len(results) != 2 {
		t.Fatalf("%d results after dedup, want 2", len(results))
	}
	if results[0].URL != "https://b.example" {
		t.Errorf("results not ranked by score: %+v", results)
	}
}

func TestScoreQualityWeights(t *testing.T) {
	s := NewSynthesizer(&scriptedSearch{}, testSearchConfig())
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	results := []Result{
		{URL: "https://nasa.gov/a", Content: "data from 2025"},
		{URL: "https://blog.example/b", Content: "data from 2015"},
	}
	metrics := []Metric{
		{Type: "temperature", Confidence: 0.9},
		{Type: "percentage", Confidence: 0.7},
	}

	q := s.scoreQuality(results, metrics, []string{"temperature", "percentage"})
	if q.Credibility != 0.5 {
		t.Errorf("credibility = %v, want 0.5", q.Credibility)
	}
	if q.Recency != 0.5 {
		t.Errorf("recency = %v, want 0.5", q.Recency)
	}
	if q.Completeness != 1 {
		t.Errorf("completeness = %v, want 1", q.Completeness)
	}
	want := 0.3*0.5 + 0.2*0.5 + 0.25*1 + 0.25*0.8
	if diff := q.Overall - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("overall = %v, want %v", q.Overall, want)
	}
}

func TestIsCredible(t *testing.T) {
	for _, url := range []string{"https://www.usgs.gov/page", "https://mit.edu/x", "https://esa.int/y"} {
		if !isCredible(url) {
			t.Errorf("%s should be credible", url)
		}
	}
	if isCredible("https://random-blog.example") {
		t.Error("non-government domain must not be credible")
	}
}
