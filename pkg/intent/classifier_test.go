package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"geoquery/pkg/model"
)

// scriptedProvider returns canned JSON per prompt marker.
type scriptedProvider struct {
	topLevel string
	sub      string
	err      error
}

func (p *scriptedProvider) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (p *scriptedProvider) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	if p.err != nil {
		return p.err
	}
	payload := p.topLevel
	if strings.Contains(prompt, "sub_intent") {
		payload = p.sub
	}
	return json.Unmarshal([]byte(payload), target)
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) error { return nil }
func (p *scriptedProvider) HasProfile(name string) bool           { return true }

func TestClassifyGEEWithSubIntent(t *testing.T) {
	provider := &scriptedProvider{
		topLevel: `{"intent": "GEE", "confidence": 0.92, "reasoning": "satellite analysis"}`,
		sub:      `{"sub_intent": "NDVI", "confidence": 0.88, "reasoning": "vegetation"}`,
	}
	c := New(provider)

	res := c.Classify(context.Background(), "show vegetation health in Delhi")

	if res.ServiceType != model.ServiceGEE {
		t.Fatalf("service = %q", res.ServiceType)
	}
	if res.GEESubIntent != model.IntentNDVI || res.AnalysisType != "ndvi" {
		t.Errorf("sub-intent = %q, analysis type = %q", res.GEESubIntent, res.AnalysisType)
	}
	if res.Confidence != 0.92 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if res.ModelUsed != "intent-llm" {
		t.Errorf("model used = %q", res.ModelUsed)
	}
}

func TestClassifyFallsBackOnLLMError(t *testing.T) {
	c := New(&scriptedProvider{err: errors.New("provider down")})

	res := c.Classify(context.Background(), "ndvi vegetation analysis of delhi")

	if res.ServiceType != model.ServiceGEE {
		t.Errorf("keyword fallback should route vegetation queries to GEE, got %q", res.ServiceType)
	}
	if res.ModelUsed != "keyword" {
		t.Errorf("model used = %q, want keyword", res.ModelUsed)
	}
	if !strings.Contains(res.Reasoning, "keyword_fallback") {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
}

func TestClassifyUnknownLLMIntentFallsBack(t *testing.T) {
	c := New(&scriptedProvider{topLevel: `{"intent": "BANANA", "confidence": 0.9}`})

	res := c.Classify(context.Background(), "latest news about floods")
	if res.ModelUsed != "keyword" {
		t.Errorf("unknown intent string must fall back, got model %q", res.ModelUsed)
	}
}

func TestClassifyNilProvider(t *testing.T) {
	c := New(nil)
	res := c.Classify(context.Background(), "surface water near chennai")
	if res.ServiceType != model.ServiceGEE {
		t.Errorf("service = %q", res.ServiceType)
	}
}

func TestClassifyTotality(t *testing.T) {
	c := New(nil)
	for _, q := range []string{"", "   ", "¿dónde está el agua?", "傻傻的问题", "!!!"} {
		res := c.Classify(context.Background(), q)
		if res == nil {
			t.Fatalf("Classify(%q) returned nil", q)
		}
		if res.ServiceType == "" {
			t.Errorf("Classify(%q) produced no service type", q)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Errorf("Classify(%q) confidence %v out of range", q, res.Confidence)
		}
	}
}

func TestClassifyConfidenceClamped(t *testing.T) {
	c := New(&scriptedProvider{topLevel: `{"intent": "SEARCH", "confidence": 3.7}`})
	res := c.Classify(context.Background(), "some question")
	if res.Confidence > 1 {
		t.Errorf("confidence must clamp to 1, got %v", res.Confidence)
	}
}

func TestExtractTimeRange(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		query string
		start string
		end   string
	}{
		{"ndvi in 2023", "2023-01-01", "2023-12-31"},
		{"temperature last year", "2025-01-01", "2025-12-31"},
		{"summer 2022 heat", "2022-06-01", "2022-08-31"},
		{"monsoon flooding", "2026-06-01", "2026-09-30"},
	}
	for _, tt := range tests {
		tr := extractTimeRange(tt.query, now)
		if tr == nil {
			t.Errorf("extractTimeRange(%q) = nil", tt.query)
			continue
		}
		if tr.Start != tt.start || tr.End != tt.end {
			t.Errorf("extractTimeRange(%q) = %s..%s, want %s..%s", tt.query, tr.Start, tr.End, tt.start, tt.end)
		}
	}

	if tr := extractTimeRange("vegetation in delhi", now); tr != nil {
		t.Errorf("query without time hints should yield nil, got %+v", tr)
	}
}

func TestExtractMetrics(t *testing.T) {
	got := extractMetrics("average and maximum temperature change")
	joined := strings.Join(got, ",")
	for _, want := range []string{"average", "maximum", "change"} {
		if !strings.Contains(joined, want) {
			t.Errorf("metrics %v missing %q", got, want)
		}
	}
	if m := extractMetrics("plain query"); m != nil {
		t.Errorf("expected nil, got %v", m)
	}
}

func TestClassifySubByKeywords(t *testing.T) {
	tests := []struct {
		query string
		want  model.SubIntent
	}{
		{"urban heat island intensity", model.IntentLST},
		{"surface water extent of the lake", model.IntentWater},
		{"crop health and biomass", model.IntentNDVI},
		{"land use classification", model.IntentLULC},
		{"nothing relevant here", model.IntentLULC}, // default
	}
	for _, tt := range tests {
		if got, _ := classifySubByKeywords(tt.query); got != tt.want {
			t.Errorf("classifySubByKeywords(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
