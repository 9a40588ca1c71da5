package intent

import (
	"strings"

	"geoquery/pkg/model"
)

// Keyword sets for the fallback scorer. Additive match counts; the
// highest-scoring intent wins.
var serviceKeywords = map[model.ServiceType][]string{
	model.ServiceGEE: {
		"ndvi", "vegetation", "satellite", "land cover", "land use", "lulc",
		"temperature", "lst", "heat island", "water", "flood", "forest",
		"crop", "urban", "built-up", "imagery", "surface", "greenness",
	},
	model.ServiceSearch: {
		"latest", "news", "current", "today", "weather", "report",
		"statistics", "recent", "update", "price",
	},
	model.ServiceRAG: {
		"document", "uploaded", "pdf", "file", "my data", "report i",
	},
}

var subIntentKeywords = map[model.SubIntent][]string{
	model.IntentNDVI:           {"ndvi", "vegetation", "greenness", "crop health", "plant", "forest cover", "biomass"},
	model.IntentLULC:           {"land use", "land cover", "lulc", "classification", "built-up", "urban sprawl"},
	model.IntentLST:            {"temperature", "lst", "heat", "thermal", "heat island", "uhi", "hot"},
	model.IntentWater:          {"water", "lake", "river", "reservoir", "flood", "surface water", "wetland"},
	model.IntentClimate:        {"climate", "rainfall", "precipitation", "drought", "monsoon"},
	model.IntentSoil:           {"soil", "moisture", "erosion", "fertility"},
	model.IntentPopulation:     {"population", "density", "settlement", "demographic"},
	model.IntentTransportation: {"road", "highway", "transport", "railway", "traffic"},
}

// fallbackScore counts keyword matches and derives a confidence.
func fallbackScore(query string, keywords []string) (int, float64) {
	lower := strings.ToLower(query)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	if matches == 0 {
		return 0, 0
	}
	conf := float64(matches)/float64(len(keywords)) + 0.1
	if conf > 0.9 {
		conf = 0.9
	}
	return matches, conf
}

// classifyByKeywords is the total fallback: it returns a valid result for
// every input, including empty and non-English queries.
func classifyByKeywords(query string) (model.ServiceType, float64) {
	if strings.TrimSpace(query) == "" {
		return model.ServiceSearch, 0.0
	}

	best := model.ServiceSearch
	bestMatches := 0
	bestConf := 0.1
	for _, svc := range []model.ServiceType{model.ServiceGEE, model.ServiceSearch, model.ServiceRAG} {
		matches, conf := fallbackScore(query, serviceKeywords[svc])
		if matches > bestMatches {
			best, bestMatches, bestConf = svc, matches, conf
		}
	}
	if bestMatches == 0 {
		return model.ServiceSearch, 0.1
	}
	return best, bestConf
}

// classifySubByKeywords picks the GEE sub-intent, defaulting to LULC at
// low confidence when nothing matches.
func classifySubByKeywords(query string) (model.SubIntent, float64) {
	best := model.IntentLULC
	bestMatches := 0
	bestConf := 0.3
	for _, si := range model.SubIntents {
		matches, conf := fallbackScore(query, subIntentKeywords[si])
		if matches > bestMatches {
			best, bestMatches, bestConf = si, matches, conf
		}
	}
	if bestMatches == 0 {
		return model.IntentLULC, 0.3
	}
	return best, bestConf
}
