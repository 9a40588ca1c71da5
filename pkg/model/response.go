package model

import "github.com/paulmach/orb/geojson"

// SearchSource is one web source consulted by the search synthesizer.
type SearchSource struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// ServiceResult is the raw outcome of whichever backend served the request.
// Exactly one of the payload fields is populated.
type ServiceResult struct {
	Service    ServiceType     `json:"service"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
	SearchText string          `json:"search_text,omitempty"`
	Sources    []SearchSource  `json:"sources,omitempty"`
	RAGAnswer  string          `json:"rag_answer,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Quality    float64         `json:"quality,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ErrorType  ErrorType       `json:"error_type,omitempty"`
	Fallback   bool            `json:"fallback,omitempty"`
}

// FinalResponse is the uniform answer shape returned to the client.
type FinalResponse struct {
	Analysis      string           `json:"analysis"`
	ROI           *geojson.Feature `json:"roi,omitempty"`
	Summary       string           `json:"summary"`
	Evidence      []string         `json:"evidence"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	Sources       []SearchSource   `json:"sources,omitempty"`
	Confidence    float64          `json:"confidence,omitempty"`
	AnalysisData  *AnalysisResult  `json:"analysis_data,omitempty"`
	ServiceResult *ServiceResult   `json:"service_result,omitempty"`
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	ErrorType     ErrorType        `json:"error_type,omitempty"`
}
