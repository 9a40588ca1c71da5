package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"geoquery/pkg/model"
)

// Formatter combines stage outputs into the uniform response.
// Deterministic and free of I/O.
type Formatter struct{}

// New creates a Formatter.
func New() *Formatter {
	return &Formatter{}
}

// Timing captures per-stage durations for the evidence trail.
type Timing struct {
	Location time.Duration
	Intent   time.Duration
	Service  time.Duration
	Total    time.Duration
}

// Format builds the final response.
func (f *Formatter) Format(q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, svc *model.ServiceResult, ev *model.Evidence, timing Timing) *model.FinalResponse {
	resp := &model.FinalResponse{
		Metadata: map[string]any{
			"request_id":   q.RequestID,
			"service_type": intent.ServiceType,
		},
	}

	if loc != nil {
		resp.ROI = loc.ROIFeature()
	}

	switch {
	case svc.ErrorType != "":
		resp.Error = svc.Error
		resp.ErrorType = svc.ErrorType
		resp.Analysis = svc.Error
		resp.Summary = svc.Error
	case svc.Analysis != nil:
		resp.Success = true
		resp.AnalysisData = svc.Analysis
		resp.Analysis = f.engineNarrative(q, loc, intent, svc.Analysis, timing)
		resp.Summary = f.summarize(svc.Analysis)
	case svc.SearchText != "":
		resp.Success = true
		resp.Analysis = f.withHeader(svc.SearchText, q, loc, intent, timing)
		resp.Summary = firstLine(svc.SearchText)
		resp.Sources = svc.Sources
	case svc.RAGAnswer != "":
		resp.Success = true
		resp.Analysis = f.withHeader(svc.RAGAnswer, q, loc, intent, timing)
		resp.Summary = firstLine(svc.RAGAnswer)
		resp.Sources = svc.Sources
	default:
		resp.Error = svc.Error
		resp.ErrorType = model.ErrProcessing
		resp.Analysis = "The request could not be answered."
		resp.Summary = resp.Analysis
	}

	resp.ServiceResult = svc
	resp.Confidence = f.confidence(intent, svc)

	ev.Addf("formatter", "intent_processing_time_%.1fs", timing.Intent.Seconds())
	ev.Addf("formatter", "location_processing_time_%.1fs", timing.Location.Seconds())
	ev.Addf("formatter", "service_processing_time_%.1fs", timing.Service.Seconds())
	resp.Evidence = ev.Markers()
	return resp
}

// confidence prefers the downstream service's own figure, otherwise
// blends intent confidence with data quality.
func (f *Formatter) confidence(intent *model.IntentResult, svc *model.ServiceResult) float64 {
	if svc.Confidence > 0 {
		return svc.Confidence
	}
	c := 0.5*intent.Confidence + 0.5*svc.Quality
	if c > 1 {
		c = 1
	}
	return c
}

func (f *Formatter) header(q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, timing Timing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 Query: %s\n", q.Text)
	if loc != nil && loc.Primary != nil {
		fmt.Fprintf(&b, "📍 Locations: %s\n", loc.Primary.DisplayName)
	}
	fmt.Fprintf(&b, "🔧 Service: %s (%s)\n", intent.ServiceType, intent.AnalysisType)
	fmt.Fprintf(&b, "⏱️ Processing time: %.1fs\n", timing.Total.Seconds())
	return b.String()
}

// withHeader prepends the standard header unless the text already
// carries one.
func (f *Formatter) withHeader(text string, q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, timing Timing) string {
	if strings.Contains(text, "📝") {
		return text
	}
	return f.header(q, loc, intent, timing) + "\n" + text
}

func (f *Formatter) engineNarrative(q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, a *model.AnalysisResult, timing Timing) string {
	var b strings.Builder
	b.WriteString(f.header(q, loc, intent, timing))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Analyzed %.0f km² (%s) using %s.\n\n",
		a.ROIAreaKm2, a.GeometryType, strings.Join(a.DatasetsUsed, ", "))

	switch a.AnalysisType {
	case "ndvi":
		f.writeStats(&b, a, "NDVI", "")
		f.writeClassBlock(&b, a, "vegetation_percentages", "Vegetation cover")
	case "lst":
		f.writeStats(&b, a, "LST", "°C")
		if uhi, ok := num(a.MapStats, "uhi_intensity"); ok {
			fmt.Fprintf(&b, "Urban heat island intensity: %.1f°C\n", uhi)
		}
	case "lulc":
		if dom, ok := a.MapStats["dominant_class"].(string); ok && dom != "" {
			fmt.Fprintf(&b, "Dominant land cover: %s\n", dom)
		}
		f.writeClassBlock(&b, a, "class_percentages", "Land cover composition")
	case "water":
		if w, ok := num(a.MapStats, "water_percentage"); ok {
			fmt.Fprintf(&b, "Surface water: %.1f%% of the area (land: %.1f%%)\n", w, 100-w)
		}
		f.writeClassBlock(&b, a, "seasonality_percentages", "Water persistence")
	}

	if a.URLFormat != "" {
		b.WriteString("\nMap tiles are available for this analysis.\n")
	}
	b.WriteString("\n" + f.summarize(a) + "\n")
	return b.String()
}

func (f *Formatter) writeStats(b *strings.Builder, a *model.AnalysisResult, band, unit string) {
	mean, ok := num(a.MapStats, band+"_mean")
	if !ok {
		return
	}
	min, _ := num(a.MapStats, band+"_min")
	max, _ := num(a.MapStats, band+"_max")
	sd, _ := num(a.MapStats, band+"_stdDev")
	fmt.Fprintf(b, "%s: mean %.2f%s (range %.2f to %.2f, σ %.2f)\n", band, mean, unit, min, max, sd)
}

func (f *Formatter) writeClassBlock(b *strings.Builder, a *model.AnalysisResult, key, title string) {
	classes, ok := a.MapStats[key].(map[string]float64)
	if !ok || len(classes) == 0 {
		return
	}
	type kv struct {
		k string
		v float64
	}
	var rows []kv
	for k, v := range classes {
		rows = append(rows, kv{k, v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].v != rows[j].v {
			return rows[i].v > rows[j].v
		}
		return rows[i].k < rows[j].k
	})
	fmt.Fprintf(b, "%s:\n", title)
	for _, r := range rows {
		if r.v < 0.05 {
			continue
		}
		fmt.Fprintf(b, "- %s: %.1f%%\n", r.k, r.v)
	}
}

// summarize produces the one-line summary from value-range templates.
func (f *Formatter) summarize(a *model.AnalysisResult) string {
	switch a.AnalysisType {
	case "ndvi":
		mean, ok := num(a.MapStats, "NDVI_mean")
		if !ok {
			return "Vegetation analysis complete."
		}
		switch {
		case mean > 0.6:
			return fmt.Sprintf("Excellent vegetation health (NDVI %.2f).", mean)
		case mean > 0.4:
			return fmt.Sprintf("Good vegetation health (NDVI %.2f).", mean)
		case mean > 0.2:
			return fmt.Sprintf("Moderate vegetation cover (NDVI %.2f).", mean)
		case mean > 0.1:
			return fmt.Sprintf("Sparse vegetation (NDVI %.2f).", mean)
		default:
			return fmt.Sprintf("Little to no vegetation (NDVI %.2f).", mean)
		}
	case "lst":
		mean, ok := num(a.MapStats, "LST_mean")
		if !ok {
			return "Temperature analysis complete."
		}
		switch {
		case mean >= 40:
			return fmt.Sprintf("Very hot surface conditions (mean %.1f°C).", mean)
		case mean >= 32:
			return fmt.Sprintf("Hot surface conditions (mean %.1f°C).", mean)
		case mean >= 24:
			return fmt.Sprintf("Warm surface conditions (mean %.1f°C).", mean)
		default:
			return fmt.Sprintf("Mild surface conditions (mean %.1f°C).", mean)
		}
	case "lulc":
		dom, _ := a.MapStats["dominant_class"].(string)
		if dom == "" {
			return "Land cover analysis complete."
		}
		if classes, ok := a.MapStats["class_percentages"].(map[string]float64); ok {
			return fmt.Sprintf("Dominant land cover: %s (%.1f%% of the area).", dom, classes[dom])
		}
		return fmt.Sprintf("Dominant land cover: %s.", dom)
	case "water":
		w, ok := num(a.MapStats, "water_percentage")
		if !ok {
			return "Surface water analysis complete."
		}
		switch {
		case w >= 25:
			return fmt.Sprintf("Substantial surface water presence (%.1f%%).", w)
		case w >= 5:
			return fmt.Sprintf("Notable surface water presence (%.1f%%).", w)
		case w >= 0.5:
			return fmt.Sprintf("Limited surface water presence (%.1f%%).", w)
		default:
			return fmt.Sprintf("Minimal surface water (%.1f%%).", w)
		}
	}
	return "Analysis complete."
}

func num(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "📝") && !strings.HasPrefix(line, "📍") &&
			!strings.HasPrefix(line, "🔧") && !strings.HasPrefix(line, "⏱") {
			return line
		}
	}
	return strings.TrimSpace(s)
}
