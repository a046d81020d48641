package esg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"esg-pipeline/internal/helper"
	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
)

type BreakdownGenerator struct {
	llm        llmservice.Completer
	workers    int
	repairJSON bool
}

func NewBreakdownGenerator(llm llmservice.Completer, workers int, repairJSON bool) *BreakdownGenerator {
	return &BreakdownGenerator{llm: llm, workers: workers, repairJSON: repairJSON}
}

func BreakdownPrompt(agg models.AggregatedMetrics, p models.Pillar) string {
	return fmt.Sprintf(models.BreakdownPromptTemplate, p, p, PillarContext(agg, p))
}

// GeneratePillar returns the category breakdown for one pillar, or nil when the call
// failed or the response held no JSON object.
func (b *BreakdownGenerator) GeneratePillar(ctx context.Context, agg models.AggregatedMetrics, p models.Pillar) models.Breakdown {
	resp, err := b.llm.Complete(ctx, llmservice.Request{
		Prompt:      BreakdownPrompt(agg, p),
		MaxTokens:   models.BreakdownMaxTokens,
		Temperature: models.DefaultTemperature,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("pillar", string(p)).Msg("Error generating breakdown")
		return nil
	}

	decoded := llmservice.Decode(resp, b.repairJSON)
	if decoded.Malformed() {
		zerolog.Ctx(ctx).Warn().Str("pillar", string(p)).Str("preview", helper.TruncateText(decoded.Raw, 200)).Msg("Breakdown response is not JSON")
		return nil
	}
	return toBreakdown(decoded.Object, p)
}

// Generate returns breakdowns keyed by pillar. Pillars that failed are absent.
func (b *BreakdownGenerator) Generate(ctx context.Context, agg models.AggregatedMetrics) map[models.Pillar]models.Breakdown {
	out := make(map[models.Pillar]models.Breakdown, len(models.Pillars))
	var mu sync.Mutex
	forEachPillar(ctx, b.workers, func(ctx context.Context, p models.Pillar) {
		bd := b.GeneratePillar(ctx, agg, p)
		if bd == nil {
			return
		}
		mu.Lock()
		out[p] = bd
		mu.Unlock()
	})
	return out
}

// toBreakdown unwraps the "Key Metrics Breakdown" object when present and keeps only the
// pillar's known categories. Non-string analyses are stored as compact JSON.
func toBreakdown(obj map[string]any, p models.Pillar) models.Breakdown {
	body := obj
	if inner, ok := obj[models.BreakdownKey].(map[string]any); ok {
		body = inner
	}

	bd := make(models.Breakdown)
	for key, v := range body {
		if !models.IsCategory(p, key) {
			continue
		}
		switch val := v.(type) {
		case string:
			bd[key] = val
		case nil:
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				continue
			}
			bd[key] = string(raw)
		}
	}
	return bd
}
