package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"geoquery/pkg/config"
	"geoquery/pkg/llm"
)

// Client implements llm.Provider for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	profiles    map[string]string
}

// NewClient creates a new Gemini client. A missing API key yields a
// client whose calls fail; the failover chain then skips past it.
func NewClient(cfg config.ProviderConfig) (*Client, error) {
	c := &Client{profiles: cfg.Profiles}
	if cfg.Key == "" {
		return c, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.genaiClient = client
	return c, nil
}

// HasProfile implements llm.Provider.
func (c *Client) HasProfile(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

// HealthCheck implements llm.Provider. It validates each configured
// profile model against the API; an unknown model logs the models the
// key can actually reach.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.genaiClient == nil {
		return fmt.Errorf("gemini client not configured")
	}

	for profile, model := range c.profiles {
		if model == "" {
			continue
		}
		name := model
		if !strings.HasPrefix(name, "models/") {
			name = "models/" + name
		}
		if _, err := c.genaiClient.Models.Get(ctx, name, nil); err != nil {
			c.logAvailableModels(ctx)
			return fmt.Errorf("model %q for profile %q not reachable: %w", model, profile, err)
		}
	}
	return nil
}

func (c *Client) logAvailableModels(ctx context.Context) {
	iter, err := c.genaiClient.Models.List(ctx, nil)
	if err != nil {
		slog.Warn("Failed to list gemini models", "error", err)
		return
	}
	var available []string
	for {
		m, err := iter.Next(ctx)
		if err == iterator.Done || err != nil {
			break
		}
		if strings.Contains(strings.ToLower(m.Name), "gemini") {
			available = append(available, m.Name)
		}
	}
	slog.Warn("Available gemini models for this key", "models", strings.Join(available, ", "))
}

func (c *Client) resolveModel(name string) (string, error) {
	if model, ok := c.profiles[name]; ok && model != "" {
		return model, nil
	}
	return "", fmt.Errorf("no model configured for profile %q on gemini", name)
}

// GenerateText implements llm.Provider.
func (c *Client) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("gemini client not configured")
	}

	model, err := c.resolveModel(name)
	if err != nil {
		return "", err
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{})
	if err != nil {
		return "", fmt.Errorf("generate text error: %w", err)
	}
	return getResponseText(resp)
}

// GenerateJSON implements llm.Provider.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	if c.genaiClient == nil {
		return fmt.Errorf("gemini client not configured")
	}

	model, err := c.resolveModel(name)
	if err != nil {
		return err
	}

	var temp float32 = 0.1
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return fmt.Errorf("generate json error: %w", err)
	}

	text, err := getResponseText(resp)
	if err != nil {
		return err
	}

	cleaned := llm.CleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON response: %w. Response: %s", err, cleaned)
	}
	return nil
}

func getResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
