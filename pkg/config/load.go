package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the built-in defaults. Budget and timeout tables
// live here rather than in package constants so deployments can override
// them per indicator.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: "127.0.0.1:8740"},
		Log: LogConfig{
			Server:   LogSink{Path: "logs/geoquery.log", Level: "INFO"},
			Requests: LogSink{Path: "logs/requests.log", Level: "INFO"},
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(120 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		DB: DBConfig{Path: "data/geoquery.db"},
		Cache: CacheConfig{
			GeocodeTTL: Duration(Week),
			SearchTTL:  Duration(6 * time.Hour),
			SampleTTL:  Duration(Day),
		},
		LLM: LLMConfig{
			Providers: []ProviderConfig{
				{
					Type:    "openrouter",
					BaseURL: "https://openrouter.ai/api/v1",
					Profiles: map[string]string{
						"intent": "google/gemini-2.0-flash-001",
						"ner":    "google/gemini-2.0-flash-001",
					},
				},
			},
		},
		Geocoder: GeocoderConfig{
			BaseURL:    "https://nominatim.openstreetmap.org",
			Limit:      5,
			MaxAreaKm2: 35000,
			Timeout:    Duration(8 * time.Second),
		},
		Imagery: ImageryConfig{
			TileBaseURL: "https://earthengine.googleapis.com/v1/projects/%s/maps/%s/tiles/{z}/{x}/{y}",
		},
		Search: SearchConfig{
			BaseURL:      "https://api.tavily.com",
			MaxResults:   5,
			MaxQueries:   5,
			QueryTimeout: Duration(10 * time.Second),
		},
		RAG: RAGConfig{
			TopK:        4,
			Temperature: 0.2,
			Timeout:     Duration(30 * time.Second),
		},
		Engine: EngineConfig{
			Budgets: map[string]IndicatorBudget{
				"ndvi":  {AreaBudgetKm2: 5000, BaseScaleM: 30, MaxPixels: 1e9},
				"lst":   {AreaBudgetKm2: 20000, BaseScaleM: 1000, MaxPixels: 1e9},
				"lulc":  {AreaBudgetKm2: 8000, BaseScaleM: 10, MaxPixels: 1e9},
				"water": {AreaBudgetKm2: 10000, BaseScaleM: 30, MaxPixels: 1e9},
			},
			GridWorkers:  8,
			GridDeadline: Duration(30 * time.Second),
			Deadline:     Duration(300 * time.Second),
		},
		Dispatch: DispatchConfig{
			MaxROIKm2: 35000,
			Timeouts: map[string]TimeoutRow{
				"water": {Base: Duration(120 * time.Second), Factor: []float64{1.0, 1.5, 2.0}},
				"ndvi":  {Base: Duration(120 * time.Second), Factor: []float64{1.0, 1.5, 2.0}},
				"lulc":  {Base: Duration(150 * time.Second), Factor: []float64{1.0, 1.5, 2.0}},
				"lst":   {Base: Duration(150 * time.Second), Factor: []float64{1.0, 1.5, 2.0}},
			},
			ConnectTimeout: Duration(10 * time.Second),
			ReadTimeoutCap: Duration(120 * time.Second),
		},
	}
}

// Load reads the config file (creating it with defaults if missing) and
// applies environment overrides. A .env file in the working directory is
// honored; the environment is read here and nowhere else.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv copies recognized environment variables into the config.
// Env values win over file values so deployments can keep secrets out of
// the config file.
func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Type == "openrouter" {
				cfg.LLM.Providers[i].Key = key
			}
		}
	}
	if model := os.Getenv("OPENROUTER_INTENT_MODEL"); model != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Type == "openrouter" {
				if cfg.LLM.Providers[i].Profiles == nil {
					cfg.LLM.Providers[i].Profiles = map[string]string{}
				}
				cfg.LLM.Providers[i].Profiles["intent"] = model
			}
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Type == "gemini" {
				cfg.LLM.Providers[i].Key = key
			}
		}
	}
	if u := os.Getenv("NOMINATIM_URL"); u != "" {
		cfg.Geocoder.BaseURL = u
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		cfg.Search.Key = key
	}
	if j := os.Getenv("IMAGERY_CREDENTIALS_JSON"); j != "" {
		cfg.Imagery.CredentialsJSON = j
	}
	if p := os.Getenv("IMAGERY_CREDENTIALS_PATH"); p != "" {
		cfg.Imagery.CredentialsPath = p
	}
	if v := os.Getenv("MAX_ROI_KM2"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Dispatch.MaxROIKm2 = f
			cfg.Geocoder.MaxAreaKm2 = f
		}
	}
	if v := os.Getenv("ENGINE_DEADLINE_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.Deadline = Duration(time.Duration(n) * time.Second)
		}
	}
}

// Save writes the config to disk as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateDefault writes a default config file, refusing to overwrite.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
