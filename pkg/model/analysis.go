package model

// ErrorType is the closed error taxonomy shared across the pipeline.
type ErrorType string

const (
	ErrValidation         ErrorType = "validation_error"
	ErrNoData             ErrorType = "no_data"
	ErrQuotaExceeded      ErrorType = "quota_exceeded"
	ErrTimeout            ErrorType = "timeout"
	ErrAreaTooLarge       ErrorType = "area_too_large"
	ErrProcessing         ErrorType = "processing_error"
	ErrNERUnavailable     ErrorType = "ner_unavailable"
	ErrIntentUnavailable  ErrorType = "intent_unavailable"
	ErrBackendUnavailable ErrorType = "backend_unavailable"
)

// GeometryType records how the engine processed the ROI.
type GeometryType string

const (
	GeometrySinglePolygon GeometryType = "single_polygon"
	GeometryTiledPolygon  GeometryType = "tiled_polygon"
)

// AnalysisResult is the normalized per-indicator output of the engine.
type AnalysisResult struct {
	AnalysisType   string         `json:"analysis_type"`
	GeometryType   GeometryType   `json:"geometry_type"`
	ROIAreaKm2     float64        `json:"roi_area_km2"`
	URLFormat      string         `json:"urlFormat"`
	MapStats       map[string]any `json:"mapStats"`
	DatasetsUsed   []string       `json:"datasets_used"`
	ProcessingSecs float64        `json:"processing_time_seconds"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	ErrorType      ErrorType      `json:"error_type,omitempty"`
}

// NewAnalysisFailure builds a failed AnalysisResult for the given indicator.
func NewAnalysisFailure(analysisType string, et ErrorType, msg string) *AnalysisResult {
	return &AnalysisResult{
		AnalysisType: analysisType,
		MapStats:     map[string]any{},
		Metadata:     map[string]any{},
		Success:      false,
		Error:        msg,
		ErrorType:    et,
	}
}

// PointSample is the output of a single-point probe.
type PointSample struct {
	Success      bool    `json:"success"`
	Value        float64 `json:"value"`
	Units        string  `json:"units"`
	QualityScore float64 `json:"quality_score"`
	DateRange    string  `json:"date_range"`
	ScaleMeters  float64 `json:"scale_meters"`
	BufferMeters float64 `json:"buffer_meters"`
	Note         string  `json:"note,omitempty"`
}
