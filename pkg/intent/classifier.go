package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"geoquery/pkg/llm"
	"geoquery/pkg/model"
)

const classifyDeadline = 15 * time.Second

const topLevelPrompt = `You are a routing classifier for a geospatial question-answering service.
Classify the user query into exactly one of:
- GEE: requires satellite remote-sensing analysis (vegetation, land cover, temperature, water, soil, population, transportation)
- RAG: asks about the user's own uploaded documents
- SEARCH: anything answered best by a web search (news, weather, general facts)

Respond with a JSON object: {"intent": "GEE"|"RAG"|"SEARCH", "confidence": <0..1>, "reasoning": "<short>"}

Query: %q`

const subIntentPrompt = `A geospatial query needs a remote-sensing analysis. Pick the single best analysis type:
NDVI (vegetation health), LULC (land use / land cover), LST (land surface temperature, heat islands),
WATER (surface water), CLIMATE, SOIL, POPULATION, TRANSPORTATION.

Respond with a JSON object: {"sub_intent": "<one of the above>", "confidence": <0..1>, "reasoning": "<short>"}

Query: %q`

// Classifier performs hierarchical intent classification: top-level
// service routing, then GEE sub-intent, then deterministic parameter
// extraction. Stateless between calls.
type Classifier struct {
	provider llm.Provider
	now      func() time.Time
}

// New creates a Classifier. provider may be nil, in which case only the
// keyword fallback runs.
func New(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider, now: time.Now}
}

type topLevelReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type subIntentReply struct {
	SubIntent  string  `json:"sub_intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify never returns an error: degraded paths produce a low-confidence
// result and the reasoning string records which path ran.
func (c *Classifier) Classify(ctx context.Context, query string) *model.IntentResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, classifyDeadline)
	defer cancel()

	res := &model.IntentResult{Success: true, AnalysisType: "general"}

	svc, conf, reasoning, modelUsed := c.classifyTopLevel(ctx, query)
	res.ServiceType = svc
	res.Confidence = conf
	res.Reasoning = reasoning
	res.ModelUsed = modelUsed

	if svc == model.ServiceGEE {
		sub, subConf, subReasoning := c.classifySub(ctx, query)
		res.GEESubIntent = sub
		res.GEEConfidence = subConf
		res.AnalysisType = strings.ToLower(string(sub))
		res.Reasoning += "; sub: " + subReasoning
	}

	res.TimeRange = extractTimeRange(query, c.now())
	res.Metrics = extractMetrics(query)
	res.ProcessingSecs = time.Since(start).Seconds()
	return res
}

func (c *Classifier) classifyTopLevel(ctx context.Context, query string) (model.ServiceType, float64, string, string) {
	if c.provider != nil && strings.TrimSpace(query) != "" {
		var reply topLevelReply
		err := c.provider.GenerateJSON(ctx, llm.ProfileIntent, fmt.Sprintf(topLevelPrompt, query), &reply)
		if err == nil {
			if svc, ok := model.ParseServiceType(reply.Intent); ok {
				return svc, clamp01(reply.Confidence), "llm: " + reply.Reasoning, "intent-llm"
			}
			slog.Warn("Intent LLM returned unknown intent, using keyword fallback", "intent", reply.Intent)
		} else {
			slog.Warn("Intent LLM unavailable, using keyword fallback", "error", err)
		}
	}

	svc, conf := classifyByKeywords(query)
	return svc, conf, "keyword_fallback", "keyword"
}

func (c *Classifier) classifySub(ctx context.Context, query string) (model.SubIntent, float64, string) {
	if c.provider != nil {
		var reply subIntentReply
		err := c.provider.GenerateJSON(ctx, llm.ProfileIntent, fmt.Sprintf(subIntentPrompt, query), &reply)
		if err == nil {
			if si, ok := model.ParseSubIntent(reply.SubIntent); ok {
				return si, clamp01(reply.Confidence), "llm: " + reply.Reasoning
			}
			slog.Warn("Sub-intent LLM returned unknown value, using keyword fallback", "sub_intent", reply.SubIntent)
		} else {
			slog.Warn("Sub-intent LLM unavailable, using keyword fallback", "error", err)
		}
	}

	si, conf := classifySubByKeywords(query)
	return si, conf, "keyword_fallback"
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
