package config

// Config holds the full application configuration. It is loaded once at
// startup and never mutated afterwards; hot-path code must not read the
// environment.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Request  RequestConfig  `yaml:"request"`
	DB       DBConfig       `yaml:"db"`
	Cache    CacheConfig    `yaml:"cache"`
	LLM      LLMConfig      `yaml:"llm"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Imagery  ImageryConfig  `yaml:"imagery"`
	Search   SearchConfig   `yaml:"search"`
	RAG      RAGConfig      `yaml:"rag"`
	Engine   EngineConfig   `yaml:"engine"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSink `yaml:"server"`
	Requests LogSink `yaml:"requests"`
}

// LogSink configures one log destination.
type LogSink struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RequestConfig holds outbound HTTP client settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// DBConfig holds the cache database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds response cache TTLs.
type CacheConfig struct {
	GeocodeTTL Duration `yaml:"geocode_ttl"`
	SearchTTL  Duration `yaml:"search_ttl"`
	SampleTTL  Duration `yaml:"sample_ttl"`
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	Type     string            `yaml:"type"` // "openrouter", "gemini"
	Key      string            `yaml:"key"`
	BaseURL  string            `yaml:"base_url"`
	Profiles map[string]string `yaml:"profiles"` // profile name -> model
}

// LLMConfig holds settings for the language-model providers.
// Providers are tried in order; the failover chain handles outages.
type LLMConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// GeocoderConfig holds Nominatim settings.
type GeocoderConfig struct {
	BaseURL     string   `yaml:"base_url"`
	CountryBias string   `yaml:"country_bias"`
	Limit       int      `yaml:"limit"`
	MaxAreaKm2  float64  `yaml:"max_area_km2"`
	Timeout     Duration `yaml:"timeout"`
}

// ImageryConfig holds imagery backend credentials and limits.
type ImageryConfig struct {
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsPath string `yaml:"credentials_path"`
	ProjectID       string `yaml:"project_id"`
	TileBaseURL     string `yaml:"tile_base_url"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Key          string   `yaml:"key"`
	MaxResults   int      `yaml:"max_results"`
	MaxQueries   int      `yaml:"max_queries"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// RAGConfig holds the retrieval-augmented-generation collaborator settings.
// An empty BaseURL means the RAG path is unavailable.
type RAGConfig struct {
	BaseURL     string   `yaml:"base_url"`
	TopK        int      `yaml:"top_k"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
}

// IndicatorBudget holds per-indicator processing limits.
type IndicatorBudget struct {
	AreaBudgetKm2 float64 `yaml:"area_budget_km2"`
	BaseScaleM    float64 `yaml:"base_scale_m"`
	MaxPixels     int64   `yaml:"max_pixels"`
}

// EngineConfig holds analysis engine settings.
type EngineConfig struct {
	Budgets      map[string]IndicatorBudget `yaml:"budgets"`
	GridWorkers  int                        `yaml:"grid_workers"`
	GridDeadline Duration                   `yaml:"grid_deadline"`
	Deadline     Duration                   `yaml:"deadline"`
}

// Budget returns the budget for an indicator, falling back to a
// conservative default when unconfigured.
func (e EngineConfig) Budget(indicator string) IndicatorBudget {
	if b, ok := e.Budgets[indicator]; ok {
		return b
	}
	return IndicatorBudget{AreaBudgetKm2: 5000, BaseScaleM: 30, MaxPixels: 1e9}
}

// TimeoutRow configures per-analysis deadlines: base seconds scaled by
// area bucket multipliers (<1k, 1-10k, 10-35k km2).
type TimeoutRow struct {
	Base   Duration  `yaml:"base"`
	Factor []float64 `yaml:"factor"` // three buckets
}

// DispatchConfig holds routing and budget enforcement settings.
type DispatchConfig struct {
	MaxROIKm2      float64               `yaml:"max_roi_km2"`
	Timeouts       map[string]TimeoutRow `yaml:"timeouts"`
	ConnectTimeout Duration              `yaml:"connect_timeout"`
	ReadTimeoutCap Duration              `yaml:"read_timeout_cap"`
}
