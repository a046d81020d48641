package esg

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
)

type Summarizer struct {
	llm     llmservice.Completer
	workers int
}

func NewSummarizer(llm llmservice.Completer, workers int) *Summarizer {
	return &Summarizer{llm: llm, workers: workers}
}

func SummaryPrompt(agg models.AggregatedMetrics, p models.Pillar) string {
	return fmt.Sprintf(models.SummaryPromptTemplate, p, p, PillarContext(agg, p))
}

// SummarizePillar never fails: a failed or empty completion yields the fallback summary.
func (s *Summarizer) SummarizePillar(ctx context.Context, agg models.AggregatedMetrics, p models.Pillar) string {
	resp, err := s.llm.Complete(ctx, llmservice.Request{
		Prompt:      SummaryPrompt(agg, p),
		MaxTokens:   models.SummaryMaxTokens,
		Temperature: models.DefaultTemperature,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("pillar", string(p)).Msg("Error generating summary")
		return models.SummaryFallback
	}

	summary := llmservice.StripThinking(resp)
	if summary == "" {
		zerolog.Ctx(ctx).Warn().Str("pillar", string(p)).Msg("Empty summary response")
		return models.SummaryFallback
	}
	return summary
}

// Summarize returns a summary for every pillar.
func (s *Summarizer) Summarize(ctx context.Context, agg models.AggregatedMetrics) map[models.Pillar]string {
	out := make(map[models.Pillar]string, len(models.Pillars))
	var mu sync.Mutex
	forEachPillar(ctx, s.workers, func(ctx context.Context, p models.Pillar) {
		summary := s.SummarizePillar(ctx, agg, p)
		mu.Lock()
		out[p] = summary
		mu.Unlock()
	})
	return out
}

// forEachPillar runs fn for every pillar, concurrently when workers > 1.
func forEachPillar(ctx context.Context, workers int, fn func(context.Context, models.Pillar)) {
	if workers <= 1 {
		for _, p := range models.Pillars {
			fn(ctx, p)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, p := range models.Pillars {
		g.Go(func() error {
			fn(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}
