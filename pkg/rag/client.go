package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geoquery/pkg/config"
	"geoquery/pkg/model"
	"geoquery/pkg/request"
)

// Answer is the retrieval-augmented response from the document service.
type Answer struct {
	Analysis   string               `json:"analysis"`
	Sources    []model.SearchSource `json:"sources"`
	Confidence float64              `json:"confidence"`
}

// Client talks to the external document question-answering service. A
// nil *Client means the RAG path is unavailable; callers must check.
type Client struct {
	rc          *request.Client
	baseURL     string
	topK        int
	temperature float64
	timeout     time.Duration
}

// New creates a Client, or nil when no base URL is configured.
func New(cfg config.RAGConfig, rc *request.Client) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		rc:          rc,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		topK:        topK,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}
}

type askRequest struct {
	Query       string  `json:"query"`
	SessionID   string  `json:"session_id"`
	K           int     `json:"k"`
	Temperature float64 `json:"temperature"`
}

// Ask submits the query against the session's uploaded documents.
func (c *Client) Ask(ctx context.Context, query, sessionID string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(askRequest{
		Query:       query,
		SessionID:   sessionID,
		K:           c.topK,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rag request: %w", err)
	}

	raw, err := c.rc.Post(ctx, c.baseURL+"/ask", body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("rag request failed: %w", err)
	}

	var ans Answer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return nil, fmt.Errorf("failed to parse rag response: %w", err)
	}
	return &ans, nil
}
