package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"esg-pipeline/internal/config"
)

var ErrEmptyResponse = errors.New("llm returned no choices")

// Request is one completion call: a single user prompt with output bounds.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer returns the text of a single completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Generator is the slice of llms.Model the client depends on.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client wraps an OpenAI compatible endpoint with a shared rate limiter, a per call
// timeout and retries on transient failures.
type Client struct {
	llm     Generator
	limiter *Limiter
	retry   RetryPolicy
	timeout time.Duration
}

// NewOpenAI builds the langchaingo model for an OpenAI compatible endpoint such as OpenRouter.
func NewOpenAI(llmConfig *config.LLMConfig) (*openai.LLM, error) {
	log.Debug().Str("baseURL", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating LLM client")
	return openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	)
}

// NewClient creates a Client from config. The limiter is shared by the caller across
// every client that talks to the same provider.
func NewClient(llmConfig *config.LLMConfig, limiter *Limiter) (*Client, error) {
	llm, err := NewOpenAI(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return NewClientWithGenerator(llm, limiter, PolicyFromConfig(llmConfig), llmConfig.Timeout), nil
}

func NewClientWithGenerator(llm Generator, limiter *Limiter, retry RetryPolicy, timeout time.Duration) *Client {
	return &Client{
		llm:     llm,
		limiter: limiter,
		retry:   retry,
		timeout: timeout,
	}
}

// PolicyFromConfig overrides the default policy with any configured values.
func PolicyFromConfig(llmConfig *config.LLMConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if llmConfig.MaxAttempts > 0 {
		policy.MaxAttempts = llmConfig.MaxAttempts
	}
	if llmConfig.InitialBackoff > 0 {
		policy.InitialDelay = llmConfig.InitialBackoff
	}
	if llmConfig.MaxBackoff > 0 {
		policy.MaxDelay = llmConfig.MaxBackoff
	}
	return policy
}

// Complete sends req as a single human message. Every attempt waits on the limiter first.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var content string
	err := Retry(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		res, err := c.llm.GenerateContent(callCtx, messages, opts...)
		if err != nil {
			return err
		}
		if res == nil || len(res.Choices) == 0 {
			return ErrEmptyResponse
		}
		zerolog.Ctx(ctx).Debug().Dur("elapsed", time.Since(start)).Int("promptChars", len(req.Prompt)).Msg("LLM call completed")
		content = res.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return content, nil
}
