package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"esg-pipeline/internal/config"
	"esg-pipeline/internal/llmservice"
)

// NewEmbedder creates an embedder for the configured provider.
func NewEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	if llmConfig.Provider == "ollama" {
		return NewOllamaEmbedder(llmConfig)
	}

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
		openai.WithEmbeddingModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init embedding llm: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// EmbeddingFunc adapts an embedder to chromem. Every attempt waits on limiter so
// embedding traffic shares the provider quota with completions.
func EmbeddingFunc(embedder embeddings.Embedder, limiter *llmservice.Limiter, policy llmservice.RetryPolicy) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		var vec []float32
		err := llmservice.Retry(ctx, policy, func(ctx context.Context) error {
			if err := limiter.Acquire(ctx); err != nil {
				return err
			}
			v, err := embedder.EmbedQuery(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(vec) == 0 {
			return nil, errors.New("embed text: empty vector")
		}
		return vec, nil
	}
}
