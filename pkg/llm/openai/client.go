package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"geoquery/pkg/config"
	"geoquery/pkg/llm"
	"geoquery/pkg/request"
)

// Client implements llm.Provider for any OpenAI-compatible API
// (OpenRouter being the canonical deployment).
type Client struct {
	rc       *request.Client
	apiKey   string
	baseURL  string
	profiles map[string]string
	label    string
}

// Request follows the standard OpenAI Chat Completions format.
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// Response follows the standard Chat Completions response format.
type Response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(cfg config.ProviderConfig, rc *request.Client) (*Client, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	return &Client{
		rc:       rc,
		apiKey:   cfg.Key,
		baseURL:  baseURL,
		profiles: cfg.Profiles,
		label:    cfg.Type,
	}, nil
}

// HasProfile implements llm.Provider.
func (c *Client) HasProfile(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

// ResolveModel maps a profile name to the configured model.
func (c *Client) ResolveModel(name string) (string, error) {
	if model, ok := c.profiles[name]; ok {
		return model, nil
	}
	return "", fmt.Errorf("no model configured for profile %q on %s", name, c.label)
}

// HealthCheck implements llm.Provider.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("%s: api key not configured", c.label)
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if _, err := c.rc.GetWithHeaders(ctx, c.baseURL+"/models", headers, ""); err != nil {
		return fmt.Errorf("%s unreachable: %w", c.label, err)
	}
	return nil
}

// GenerateText implements llm.Provider.
func (c *Client) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	model, err := c.ResolveModel(name)
	if err != nil {
		return "", err
	}

	req := Request{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	}
	return c.Execute(ctx, req)
}

// GenerateJSON implements llm.Provider.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	model, err := c.ResolveModel(name)
	if err != nil {
		return err
	}

	// json_object mode requires "json" to appear in the prompt.
	if !strings.Contains(strings.ToLower(prompt), "json") {
		prompt += " Respond in JSON."
	}

	req := Request{
		Model:          model,
		Messages:       []Message{{Role: "user", Content: prompt}},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
		Temperature:    0.1,
	}

	respText, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}

	respText = llm.CleanJSONBlock(respText)
	if err := json.Unmarshal([]byte(respText), target); err != nil {
		return fmt.Errorf("failed to unmarshal %s json: %w (raw: %s)", c.label, err, respText)
	}
	return nil
}

// Execute sends a chat completion request and returns the first choice.
func (c *Client) Execute(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s: api key not configured", c.label)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Content-Type":  "application/json",
	}

	respBody, err := c.rc.Post(ctx, c.baseURL+"/chat/completions", body, headers)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.label, err)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w", c.label, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s api error: %s", c.label, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.label)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
