package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"esg-pipeline/internal/chromemdb"
	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
)

const (
	defaultTopK    = 8
	answerMaxToken = 800
)

var ErrNoEvidence = errors.New("no indexed evidence for query")

// Retriever finds evidence fragments similar to a question.
type Retriever interface {
	Search(ctx context.Context, company, query string, n int) ([]chromemdb.Evidence, error)
}

type RAG struct {
	retriever Retriever
	llm       llmservice.Completer
	topK      int
}

func NewRAG(retriever Retriever, llm llmservice.Completer, topK int) *RAG {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &RAG{retriever: retriever, llm: llm, topK: topK}
}

// Answer is a generated reply with the evidence it was grounded on.
type Answer struct {
	Text     string
	Evidence []chromemdb.Evidence
}

// Query answers a question about one company using only indexed evidence.
func (r *RAG) Query(ctx context.Context, company, query string) (*Answer, error) {
	docs, err := r.retriever.Search(ctx, company, query, r.topK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoEvidence
	}
	zerolog.Ctx(ctx).Debug().Int("evidence", len(docs)).Msg("Retrieved evidence")

	var evidence strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&evidence, "- [%s / %s] %s\n", doc.Pillar, doc.Category, doc.Content)
	}

	resp, err := r.llm.Complete(ctx, llmservice.Request{
		Prompt:      fmt.Sprintf(models.AskPromptTemplate, company, evidence.String(), query),
		MaxTokens:   answerMaxToken,
		Temperature: models.DefaultTemperature,
	})
	if err != nil {
		return nil, err
	}
	return &Answer{Text: llmservice.StripThinking(resp), Evidence: docs}, nil
}
