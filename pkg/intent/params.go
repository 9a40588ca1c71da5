package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"geoquery/pkg/model"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// extractTimeRange derives a date window from keyword patterns. No LLM
// involved; unresolvable queries get nil.
func extractTimeRange(query string, now time.Time) *model.TimeRange {
	lower := strings.ToLower(query)

	if m := yearPattern.FindString(query); m != "" {
		year, _ := strconv.Atoi(m)
		return &model.TimeRange{
			Start: fmt.Sprintf("%d-01-01", year),
			End:   fmt.Sprintf("%d-12-31", year),
		}
	}

	switch {
	case strings.Contains(lower, "last year"):
		y := now.Year() - 1
		return &model.TimeRange{Start: fmt.Sprintf("%d-01-01", y), End: fmt.Sprintf("%d-12-31", y)}
	case strings.Contains(lower, "this year"):
		y := now.Year()
		return &model.TimeRange{Start: fmt.Sprintf("%d-01-01", y), End: now.Format("2006-01-02")}
	case strings.Contains(lower, "last month"):
		end := now.AddDate(0, 0, -now.Day())
		start := end.AddDate(0, 0, -end.Day()+1)
		return &model.TimeRange{Start: start.Format("2006-01-02"), End: end.Format("2006-01-02")}
	case strings.Contains(lower, "summer"):
		y := seasonYear(query, now)
		return &model.TimeRange{Start: fmt.Sprintf("%d-06-01", y), End: fmt.Sprintf("%d-08-31", y)}
	case strings.Contains(lower, "winter"):
		y := seasonYear(query, now)
		return &model.TimeRange{Start: fmt.Sprintf("%d-12-01", y-1), End: fmt.Sprintf("%d-02-28", y)}
	case strings.Contains(lower, "monsoon"):
		y := seasonYear(query, now)
		return &model.TimeRange{Start: fmt.Sprintf("%d-06-01", y), End: fmt.Sprintf("%d-09-30", y)}
	case strings.Contains(lower, "recent") || strings.Contains(lower, "latest") || strings.Contains(lower, "current"):
		start := now.AddDate(0, -6, 0)
		return &model.TimeRange{Start: start.Format("2006-01-02"), End: now.Format("2006-01-02")}
	}
	return nil
}

func seasonYear(query string, now time.Time) int {
	if m := yearPattern.FindString(query); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return now.Year()
}

var metricHints = []string{
	"mean", "average", "max", "maximum", "min", "minimum",
	"change", "trend", "difference", "stddev", "variance", "percentage",
}

// extractMetrics picks up metric hints present in the query.
func extractMetrics(query string) []string {
	lower := strings.ToLower(query)
	var out []string
	for _, hint := range metricHints {
		if strings.Contains(lower, hint) {
			out = append(out, hint)
		}
	}
	return out
}
