package llmservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"esg-pipeline/internal/config"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	content  string
	empty    bool
	lastOpts llms.CallOptions
	prompts  []string
	onCall   func()
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.lastOpts = opts
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tp.Text)
			}
		}
	}

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Retryable:    IsTransient,
	}
}

func TestClient_Complete(t *testing.T) {
	gen := &fakeGenerator{content: "hello"}
	client := NewClientWithGenerator(gen, NewLimiter(0), fastPolicy(3), time.Second)

	out, err := client.Complete(context.Background(), Request{Prompt: "say hello", MaxTokens: 1200, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, []string{"say hello"}, gen.prompts)
	assert.Equal(t, 1200, gen.lastOpts.MaxTokens)
	assert.InDelta(t, 0.2, gen.lastOpts.Temperature, 1e-9)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	gen := &fakeGenerator{
		content: "ok",
		errs:    []error{errors.New("API returned unexpected status code: 503"), errors.New("read: connection reset by peer")},
	}
	client := NewClientWithGenerator(gen, nil, fastPolicy(3), time.Second)

	out, err := client.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, gen.calls)
}

func TestClient_StopsAfterMaxAttempts(t *testing.T) {
	gen := &fakeGenerator{errs: []error{
		errors.New("status code: 502"),
		errors.New("status code: 502"),
		errors.New("status code: 502"),
		errors.New("status code: 502"),
	}}
	client := NewClientWithGenerator(gen, nil, fastPolicy(3), time.Second)

	_, err := client.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 3, gen.calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("API returned unexpected status code: 401: invalid api key")}}
	client := NewClientWithGenerator(gen, nil, fastPolicy(3), time.Second)

	_, err := client.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestClient_DoesNotRetryClientErrorsMentioningServerCodes(t *testing.T) {
	gen := &fakeGenerator{errs: []error{
		errors.New("API returned unexpected status code: 400: max_tokens: 2000 > context budget 1500"),
		errors.New("API returned unexpected status code: 400: max_tokens: 2000 > context budget 1500"),
	}}
	client := NewClientWithGenerator(gen, nil, fastPolicy(3), time.Second)

	_, err := client.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code: 400")
	assert.Equal(t, 1, gen.calls)
}

func TestClient_CanceledDuringBackoffReturnsCallError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{errs: []error{errors.New("API returned unexpected status code: 503")}}
	gen.onCall = cancel
	policy := fastPolicy(3)
	policy.InitialDelay = time.Hour
	client := NewClientWithGenerator(gen, nil, policy, time.Second)

	_, err := client.Complete(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 1, gen.calls)
}

func TestClient_EmptyChoices(t *testing.T) {
	gen := &fakeGenerator{empty: true}
	client := NewClientWithGenerator(gen, nil, fastPolicy(2), time.Second)

	_, err := client.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 2, gen.calls)
}

func TestClient_LimiterSpacesCalls(t *testing.T) {
	gen := &fakeGenerator{content: "ok"}
	client := NewClientWithGenerator(gen, NewLimiter(50*time.Millisecond), fastPolicy(1), time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), Request{Prompt: "p"})
		require.NoError(t, err)
	}
	// first call is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(&config.LLMConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 4 * time.Second})
	assert.Equal(t, 5, policy.MaxAttempts)

	b := policy.backOff()
	var waits []time.Duration
	for i := 0; i < 4; i++ {
		waits = append(waits, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}, waits)
}
