package search

import (
	"regexp"
	"strconv"
	"strings"
)

// Metric is one quantitative value extracted from search content.
type Metric struct {
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Context    string  `json:"context"`
	Confidence float64 `json:"confidence"`
	SourceURL  string  `json:"source_url"`
}

// pattern binds a regex to extraction mechanics. Confidence reflects how
// specific the pattern is, not how often it fires.
type pattern struct {
	re         *regexp.Regexp
	unit       string
	confidence float64
	convert    func(float64) float64
}

var metricPatterns = map[string][]pattern{
	"temperature": {
		{re: regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*°\s*C`), unit: "°C", confidence: 0.9},
		{re: regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*°\s*F`), unit: "°C", confidence: 0.85,
			convert: func(f float64) float64 { return (f - 32) * 5 / 9 }},
		{re: regexp.MustCompile(`(?i)temperature[s]?\s+(?:of|around|near|at)\s+(-?\d{1,3}(?:\.\d+)?)`), unit: "°C", confidence: 0.6},
	},
	"ndvi": {
		{re: regexp.MustCompile(`(?i)NDVI\s+(?:of|value|around|is)?\s*(0?\.\d+|1\.0|0|1)`), unit: "NDVI", confidence: 0.85},
	},
	"area": {
		{re: regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*(?:km²|km2|sq\.?\s*km|square kilomet)`), unit: "km²", confidence: 0.85},
	},
	"percentage": {
		{re: regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`), unit: "%", confidence: 0.7},
	},
	"population": {
		{re: regexp.MustCompile(`(?i)population\s+(?:of|around|about|approximately)?\s*([\d,.]+)\s*(thousand|k|million|m|billion|b)?`), unit: "people", confidence: 0.75},
	},
	"coordinates": {
		{re: regexp.MustCompile(`(-?\d{1,2}(?:\.\d+)?)\s*°?\s*[NS]\s*,?\s*(-?\d{1,3}(?:\.\d+)?)\s*°?\s*[EW]`), unit: "deg", confidence: 0.8},
	},
}

// sanity bounds per metric type; values outside are discarded.
var sanityBounds = map[string][2]float64{
	"temperature": {-50, 60},
	"ndvi":        {0, 1},
	"area":        {0, 2e7},
	"percentage":  {0, 100},
	"population":  {0, 2e9},
	"coordinates": {-180, 180},
}

var popMultipliers = map[string]float64{
	"thousand": 1e3, "k": 1e3,
	"million": 1e6, "m": 1e6,
	"billion": 1e9, "b": 1e9,
}

// relevantMetricTypes picks which regex families to run for an analysis
// type.
func relevantMetricTypes(analysisType string) []string {
	switch analysisType {
	case "ndvi":
		return []string{"ndvi", "percentage", "area"}
	case "lst":
		return []string{"temperature", "percentage"}
	case "lulc":
		return []string{"percentage", "area"}
	case "water":
		return []string{"percentage", "area"}
	case "population":
		return []string{"population", "percentage", "area"}
	default:
		return []string{"temperature", "percentage", "area", "population", "coordinates"}
	}
}

// extractMetrics runs the given pattern families over plain text,
// applying unit conversion and sanity bounds.
func extractMetrics(text, sourceURL string, types []string) []Metric {
	var out []Metric
	for _, typ := range types {
		for _, p := range metricPatterns[typ] {
			for _, m := range p.re.FindAllStringSubmatch(text, 10) {
				raw := strings.ReplaceAll(m[1], ",", "")
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					continue
				}
				if p.convert != nil {
					v = p.convert(v)
				}
				if typ == "population" && len(m) > 2 && m[2] != "" {
					if mult, ok := popMultipliers[strings.ToLower(m[2])]; ok {
						v *= mult
					}
				}
				bounds := sanityBounds[typ]
				if v < bounds[0] || v > bounds[1] {
					continue
				}
				out = append(out, Metric{
					Type:       typ,
					Value:      v,
					Unit:       p.unit,
					Context:    snippet(text, m[0]),
					Confidence: p.confidence,
					SourceURL:  sourceURL,
				})
			}
		}
	}
	return out
}

// snippet returns a short context window around the match.
func snippet(text, match string) string {
	idx := strings.Index(text, match)
	if idx < 0 {
		return match
	}
	start := idx - 40
	if start < 0 {
		start = 0
	}
	end := idx + len(match) + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
