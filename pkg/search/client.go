package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"geoquery/pkg/config"
	"geoquery/pkg/request"
)

// Result is one web search hit.
type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Options tunes a single search call.
type Options struct {
	MaxResults     int
	IncludeDomains []string
	ExcludeDomains []string
	Depth          string // "basic" or "advanced"
}

// WebSearch is the abstract search backend.
type WebSearch interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Tavily implements WebSearch against a Tavily-style JSON API.
type Tavily struct {
	rc      *request.Client
	baseURL string
	key     string
}

// NewTavily creates the client. Returns nil when no key is configured;
// callers treat a nil WebSearch as the path being unavailable.
func NewTavily(cfg config.SearchConfig, rc *request.Client) *Tavily {
	if cfg.Key == "" {
		return nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Tavily{rc: rc, baseURL: strings.TrimSuffix(baseURL, "/"), key: cfg.Key}
}

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search implements WebSearch.
func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	depth := opts.Depth
	if depth == "" {
		depth = "basic"
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(tavilyRequest{
		Query:          query,
		SearchDepth:    depth,
		MaxResults:     maxResults,
		IncludeDomains: opts.IncludeDomains,
		ExcludeDomains: opts.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + t.key,
		"Content-Type":  "application/json",
	}

	sum := sha256.Sum256(body)
	cacheKey := "search:" + hex.EncodeToString(sum[:12])

	raw, err := t.rc.PostWithCache(ctx, t.baseURL+"/search", body, headers, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var resp tavilyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return resp.Results, nil
}
