package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"geoquery/pkg/config"
	"geoquery/pkg/model"
)

const (
	maxQueries        = 5
	perQueryDeadline  = 10 * time.Second
	maxConfidenceCap  = 0.8
	currentYearWindow = 2
)

var credibleDomains = []string{
	".gov", ".edu", "nasa.gov", "usgs.gov", "esa.int", "copernicus.eu",
	"noaa.gov", "un.org", "worldbank.org",
}

// QualityScore breaks the data-quality assessment into its components.
type QualityScore struct {
	Credibility  float64 `json:"credibility"`
	Recency      float64 `json:"recency"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Overall      float64 `json:"overall"`
}

// Outcome is the synthesized web-search answer.
type Outcome struct {
	Analysis   string               `json:"analysis"`
	Sources    []model.SearchSource `json:"sources"`
	Metrics    []Metric             `json:"metrics"`
	Quality    QualityScore         `json:"quality"`
	Confidence float64              `json:"confidence"`
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	ErrorType  model.ErrorType      `json:"error_type,omitempty"`
}

// Synthesizer fans out web searches, extracts metrics, and assembles a
// narrative answer.
type Synthesizer struct {
	ws  WebSearch
	cfg config.SearchConfig
	now func() time.Time
}

// NewSynthesizer creates a Synthesizer. ws may be nil; Synthesize then
// reports backend_unavailable.
func NewSynthesizer(ws WebSearch, cfg config.SearchConfig) *Synthesizer {
	return &Synthesizer{ws: ws, cfg: cfg, now: time.Now}
}

// Synthesize runs the full search path for a query.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, intent *model.IntentResult, loc *model.LocationParseResult) *Outcome {
	if s.ws == nil {
		return &Outcome{
			Error:     "web search is not configured",
			ErrorType: model.ErrBackendUnavailable,
		}
	}

	analysisType := "general"
	if intent != nil && intent.AnalysisType != "" {
		analysisType = intent.AnalysisType
	}
	locName := ""
	if loc != nil && loc.Primary != nil {
		locName = loc.Primary.DisplayName
	}

	queries := s.buildQueries(query, analysisType, locName)
	results := s.fanOut(ctx, queries)
	if len(results) == 0 {
		return &Outcome{
			Error:     "no search results for query",
			ErrorType: model.ErrNoData,
		}
	}

	types := relevantMetricTypes(analysisType)
	var metrics []Metric
	var sources []model.SearchSource
	for _, r := range results {
		text := stripHTML(r.Content)
		metrics = append(metrics, extractMetrics(text, r.URL, types)...)
		sources = append(sources, model.SearchSource{
			Title:         r.Title,
			URL:           r.URL,
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
		})
	}

	quality := s.scoreQuality(results, metrics, types)
	analysis := s.buildNarrative(query, analysisType, locName, metrics, sources, quality)

	confidence := quality.Overall
	if confidence > maxConfidenceCap {
		confidence = maxConfidenceCap
	}

	return &Outcome{
		Analysis:   analysis,
		Sources:    sources,
		Metrics:    metrics,
		Quality:    quality,
		Confidence: confidence,
		Success:    true,
	}
}

// buildQueries composes up to five queries mixing indicator keywords,
// credible-source hints, and metric terms.
func (s *Synthesizer) buildQueries(query, analysisType, locName string) []string {
	indicatorTerms := map[string]string{
		"ndvi":  "NDVI vegetation index satellite",
		"lst":   "land surface temperature satellite",
		"lulc":  "land use land cover classification",
		"water": "surface water bodies extent",
	}

	queries := []string{query}
	if term, ok := indicatorTerms[analysisType]; ok {
		queries = append(queries, query+" "+term)
	}
	if locName != "" {
		queries = append(queries, fmt.Sprintf("%s %s statistics data", locName, analysisType))
	}
	queries = append(queries, query+" report government data")
	queries = append(queries, query+" recent measurements")

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	max := s.cfg.MaxQueries
	if max > 0 && len(queries) > max {
		queries = queries[:max]
	}
	return queries
}

// fanOut runs the queries in parallel with per-query deadlines and
// deduplicates results by URL.
func (s *Synthesizer) fanOut(ctx context.Context, queries []string) []Result {
	deadline := s.cfg.QueryTimeout.Std()
	if deadline <= 0 {
		deadline = perQueryDeadline
	}

	all := make([][]Result, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			opts := Options{MaxResults: s.cfg.MaxResults, Depth: "basic"}
			// One of the fan-out queries is pinned to credible domains.
			if i == len(queries)-2 {
				opts.IncludeDomains = credibleDomains
			}
			res, err := s.ws.Search(qctx, q, opts)
			if err != nil {
				slog.Debug("Search query failed", "query", q, "error", err)
				return
			}
			all[i] = res
		}(i, q)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var out []Result
	for _, batch := range all {
		for _, r := range batch {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

var yearRe = regexp.MustCompile(`\b(20\d{2})\b`)

// scoreQuality computes the weighted data-quality assessment:
// 0.3 credibility + 0.2 recency + 0.25 completeness + 0.25 accuracy.
func (s *Synthesizer) scoreQuality(results []Result, metrics []Metric, wantedTypes []string) QualityScore {
	var q QualityScore

	credible := 0
	recent := 0
	currentYear := s.now().Year()
	for _, r := range results {
		if isCredible(r.URL) {
			credible++
		}
		for _, m := range yearRe.FindAllStringSubmatch(r.Content, 5) {
			var y int
			fmt.Sscanf(m[1], "%d", &y)
			if currentYear-y <= currentYearWindow {
				recent++
				break
			}
		}
	}
	q.Credibility = float64(credible) / float64(len(results))
	q.Recency = float64(recent) / float64(len(results))

	covered := make(map[string]bool)
	var confSum float64
	for _, m := range metrics {
		covered[m.Type] = true
		confSum += m.Confidence
	}
	if len(wantedTypes) > 0 {
		q.Completeness = float64(len(covered)) / float64(len(wantedTypes))
	}
	if len(metrics) > 0 {
		q.Accuracy = confSum / float64(len(metrics))
	}

	q.Overall = 0.3*q.Credibility + 0.2*q.Recency + 0.25*q.Completeness + 0.25*q.Accuracy
	return q
}

func isCredible(url string) bool {
	lower := strings.ToLower(url)
	for _, d := range credibleDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// buildNarrative assembles the analysis text: header, location,
// data-quality block, top metrics, sources, findings, limitations.
func (s *Synthesizer) buildNarrative(query, analysisType, locName string, metrics []Metric, sources []model.SearchSource, q QualityScore) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📝 Query: %s\n", query)
	if locName != "" {
		fmt.Fprintf(&b, "📍 Locations: %s\n", locName)
	}
	fmt.Fprintf(&b, "🔧 Service: web search (%s)\n\n", analysisType)

	fmt.Fprintf(&b, "Data quality: %.0f%% (credibility %.0f%%, recency %.0f%%, completeness %.0f%%, accuracy %.0f%%)\n\n",
		q.Overall*100, q.Credibility*100, q.Recency*100, q.Completeness*100, q.Accuracy*100)

	byType := make(map[string][]Metric)
	for _, m := range metrics {
		byType[m.Type] = append(byType[m.Type], m)
	}
	if len(byType) > 0 {
		b.WriteString("Extracted metrics:\n")
		var types []string
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			ms := byType[t]
			sort.Slice(ms, func(i, j int) bool { return ms[i].Confidence > ms[j].Confidence })
			n := len(ms)
			if n > 3 {
				n = 3
			}
			for _, m := range ms[:n] {
				fmt.Fprintf(&b, "- %s: %.2f %s (%s)\n", t, m.Value, m.Unit, m.Context)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Consulted %d sources", len(sources))
	credible := 0
	for _, src := range sources {
		if isCredible(src.URL) {
			credible++
		}
	}
	if credible > 0 {
		fmt.Fprintf(&b, " (%d from government or academic domains)", credible)
	}
	b.WriteString(".\n\n")

	if len(metrics) == 0 {
		b.WriteString("Findings: no quantitative values could be extracted; see sources for qualitative coverage.\n")
	} else {
		fmt.Fprintf(&b, "Findings: %d quantitative values extracted across %d metric types.\n", len(metrics), len(byType))
	}
	b.WriteString("Limitations: web-sourced figures are not validated against satellite measurements; treat as indicative.\n")

	return b.String()
}
