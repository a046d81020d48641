package esg

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"esg-pipeline/internal/helper"
	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
)

// ChunkResult is the outcome of extracting one chunk. Err is set when the LLM call
// failed after retries; otherwise Decoded holds either a record or raw text.
type ChunkResult struct {
	Index   int
	Decoded llmservice.Decoded
	Err     error
}

// Failed reports whether the call itself failed.
func (r ChunkResult) Failed() bool {
	return r.Err != nil
}

type Extractor struct {
	llm        llmservice.Completer
	workers    int
	repairJSON bool
}

// NewExtractor creates an extractor fanning out to at most workers concurrent calls.
// workers <= 1 processes chunks sequentially.
func NewExtractor(llm llmservice.Completer, workers int, repairJSON bool) *Extractor {
	return &Extractor{llm: llm, workers: workers, repairJSON: repairJSON}
}

func ExtractPrompt(chunk string) string {
	return fmt.Sprintf(models.ExtractPromptTemplate, models.MetricsJSONFormat, chunk)
}

// ExtractChunk runs one extraction call and decodes the response.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk models.Chunk) ChunkResult {
	resp, err := e.llm.Complete(ctx, llmservice.Request{
		Prompt:      ExtractPrompt(chunk.Content),
		MaxTokens:   models.ExtractMaxTokens,
		Temperature: models.DefaultTemperature,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("chunk", chunk.Index).Msg("Error extracting ESG metrics")
		return ChunkResult{Index: chunk.Index, Err: err}
	}

	decoded := llmservice.Decode(resp, e.repairJSON)
	if decoded.Malformed() {
		zerolog.Ctx(ctx).Warn().Int("chunk", chunk.Index).Str("preview", helper.TruncateText(decoded.Raw, 200)).Msg("Extraction response is not JSON, keeping raw text")
	}
	return ChunkResult{Index: chunk.Index, Decoded: decoded}
}

// Extract processes every chunk and returns results ordered by chunk index. A failure on
// one chunk never cancels the others.
func (e *Extractor) Extract(ctx context.Context, chunks []models.Chunk) []ChunkResult {
	results := make([]ChunkResult, 0, len(chunks))
	if e.workers <= 1 {
		for _, c := range chunks {
			results = append(results, e.ExtractChunk(ctx, c))
		}
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, c := range chunks {
		g.Go(func() error {
			r := e.ExtractChunk(gctx, c)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
