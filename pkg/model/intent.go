package model

import "strings"

// ServiceType is the top-level routing decision.
type ServiceType string

const (
	ServiceGEE    ServiceType = "GEE"
	ServiceSearch ServiceType = "SEARCH"
	ServiceRAG    ServiceType = "RAG"
)

// SubIntent is the remote-sensing analysis requested on the GEE path.
type SubIntent string

const (
	IntentNDVI           SubIntent = "NDVI"
	IntentLULC           SubIntent = "LULC"
	IntentLST            SubIntent = "LST"
	IntentWater          SubIntent = "WATER"
	IntentClimate        SubIntent = "CLIMATE"
	IntentSoil           SubIntent = "SOIL"
	IntentPopulation     SubIntent = "POPULATION"
	IntentTransportation SubIntent = "TRANSPORTATION"
)

// SubIntents lists every valid GEE sub-intent.
var SubIntents = []SubIntent{
	IntentNDVI, IntentLULC, IntentLST, IntentWater,
	IntentClimate, IntentSoil, IntentPopulation, IntentTransportation,
}

// ParseServiceType maps a raw string onto a ServiceType, reporting whether
// it named a known type.
func ParseServiceType(s string) (ServiceType, bool) {
	switch ServiceType(strings.ToUpper(strings.TrimSpace(s))) {
	case ServiceGEE:
		return ServiceGEE, true
	case ServiceSearch:
		return ServiceSearch, true
	case ServiceRAG:
		return ServiceRAG, true
	}
	return "", false
}

// ParseSubIntent maps a raw string onto a SubIntent.
func ParseSubIntent(s string) (SubIntent, bool) {
	up := SubIntent(strings.ToUpper(strings.TrimSpace(s)))
	for _, si := range SubIntents {
		if si == up {
			return si, true
		}
	}
	return "", false
}

// TimeRange is an inclusive date window in YYYY-MM-DD form.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IntentResult is the output of the hierarchical intent classification.
type IntentResult struct {
	ServiceType    ServiceType `json:"service_type"`
	Confidence     float64     `json:"confidence"`
	GEESubIntent   SubIntent   `json:"gee_sub_intent,omitempty"`
	GEEConfidence  float64     `json:"gee_confidence,omitempty"`
	AnalysisType   string      `json:"analysis_type"`
	TimeRange      *TimeRange  `json:"time_range,omitempty"`
	Metrics        []string    `json:"metrics,omitempty"`
	Reasoning      string      `json:"reasoning"`
	ProcessingSecs float64     `json:"processing_time"`
	ModelUsed      string      `json:"model_used"`
	Success        bool        `json:"success"`
	Error          string      `json:"error,omitempty"`
}
