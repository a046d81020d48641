package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"esg-pipeline/internal/config"
	"esg-pipeline/internal/esg"
	"esg-pipeline/internal/helper"
	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
	"esg-pipeline/internal/parser"
)

// AnalysisStore persists one analysis row per company.
type AnalysisStore interface {
	Exists(ctx context.Context, company string) (bool, error)
	Upsert(ctx context.Context, a *models.CompanyAnalysis) error
}

// TextFetcher returns the combined text of a company's sources.
type TextFetcher interface {
	FetchText(ctx context.Context, urls []string) string
}

// EvidenceIndex stores aggregated fragments for later search.
type EvidenceIndex interface {
	IndexCompany(ctx context.Context, company string, agg models.AggregatedMetrics) (int, error)
}

type Options struct {
	ChunkSize      int
	Workers        int
	CompanyWorkers int
	RepairJSON     bool
	// DryRun runs the analysis but never writes to the store.
	DryRun bool
	// Force reprocesses companies that already have a stored analysis.
	Force bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChunkSize:      cfg.Pipeline.ChunkSize,
		Workers:        cfg.Pipeline.Workers,
		CompanyWorkers: cfg.Pipeline.CompanyWorkers,
		RepairJSON:     cfg.LLM.RepairJSON,
	}
}

type Pipeline struct {
	store      AnalysisStore
	fetcher    TextFetcher
	index      EvidenceIndex
	extractor  *esg.Extractor
	summarizer *esg.Summarizer
	breakdowns *esg.BreakdownGenerator
	opts       Options
	runID      string
}

// New wires the stages around one completer. index may be nil.
func New(store AnalysisStore, fetcher TextFetcher, llm llmservice.Completer, index EvidenceIndex, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = models.DefaultChunkSize
	}
	return &Pipeline{
		store:      store,
		fetcher:    fetcher,
		index:      index,
		extractor:  esg.NewExtractor(llm, opts.Workers, opts.RepairJSON),
		summarizer: esg.NewSummarizer(llm, opts.Workers),
		breakdowns: esg.NewBreakdownGenerator(llm, opts.Workers, opts.RepairJSON),
		opts:       opts,
		runID:      helper.NewRunID(),
	}
}

// ErrExtractionFailed means no chunk produced a model response, so there is nothing to
// summarise and the company should be retried later.
var ErrExtractionFailed = errors.New("extraction failed for every chunk")

// Result is the in-memory analysis of one company.
type Result struct {
	Analysis   *models.CompanyAnalysis
	Aggregated models.AggregatedMetrics
	Chunks     int
}

// Fetch downloads urls and returns their combined text.
func (p *Pipeline) Fetch(ctx context.Context, urls []string) string {
	return p.fetcher.FetchText(ctx, urls)
}

// Analyze runs chunking, extraction and aggregation on text, then the summaries and
// breakdowns side by side. When every extraction call fails it stops early with
// ErrExtractionFailed.
func (p *Pipeline) Analyze(ctx context.Context, company, text string) (*Result, error) {
	chunks := slices.Collect(parser.ChunkText(text, p.opts.ChunkSize))
	zerolog.Ctx(ctx).Info().Int("chunks", len(chunks)).Msg("Extracting ESG metrics")

	results := p.extractor.Extract(ctx, chunks)
	failed := 0
	var lastErr error
	for _, r := range results {
		if r.Failed() {
			failed++
			lastErr = r.Err
		}
	}
	if len(results) > 0 && failed == len(results) {
		return &Result{Chunks: len(chunks)}, fmt.Errorf("%w: %w", ErrExtractionFailed, lastErr)
	}
	agg := esg.Aggregate(results)

	var summaries map[models.Pillar]string
	var breakdowns map[models.Pillar]models.Breakdown
	if p.opts.Workers > 1 {
		var g errgroup.Group
		g.Go(func() error {
			summaries = p.summarizer.Summarize(ctx, agg)
			return nil
		})
		g.Go(func() error {
			breakdowns = p.breakdowns.Generate(ctx, agg)
			return nil
		})
		_ = g.Wait()
	} else {
		summaries = p.summarizer.Summarize(ctx, agg)
		breakdowns = p.breakdowns.Generate(ctx, agg)
	}

	return &Result{
		Analysis: &models.CompanyAnalysis{
			Company:    company,
			Summaries:  summaries,
			Breakdowns: breakdowns,
		},
		Aggregated: agg,
		Chunks:     len(chunks),
	}, nil
}

// Process runs the full pipeline for one company. It never panics and never returns an
// error; failures are reported in the outcome.
func (p *Pipeline) Process(ctx context.Context, res models.Resource) (out Outcome) {
	start := time.Now()
	out = Outcome{Company: res.Company}
	logger := log.With().Str("company", res.Company).Str("run_id", p.runID).Logger()
	ctx = logger.WithContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = time.Since(start)
		logOutcome(&logger, out)
	}()

	if len(res.URLs) == 0 {
		out.Status = StatusNoURLs
		return out
	}

	if !p.opts.Force && !p.opts.DryRun {
		exists, err := p.store.Exists(ctx, res.Company)
		if err != nil {
			out.Status, out.Err = StatusFailed, err
			return out
		}
		if exists {
			out.Status = StatusExisting
			return out
		}
	}

	logger.Info().Int("urls", len(res.URLs)).Msg("Processing company")
	text := p.Fetch(ctx, res.URLs)
	if text == "" {
		out.Status = StatusNoData
		return out
	}

	result, err := p.Analyze(ctx, res.Company, text)
	out.Chunks = result.Chunks
	if err != nil {
		out.Status, out.Err = StatusFailed, err
		return out
	}

	if p.index != nil {
		n, err := p.index.IndexCompany(ctx, res.Company, result.Aggregated)
		if err != nil {
			logger.Warn().Err(err).Msg("Error indexing evidence")
		}
		out.Indexed = n
	}

	if p.opts.DryRun {
		out.Status = StatusDryRun
		return out
	}
	if err := p.store.Upsert(ctx, result.Analysis); err != nil {
		out.Status, out.Err = StatusFailed, err
		return out
	}
	out.Status = StatusProcessed
	return out
}

// RunBatch processes every resource. Companies run on an ants pool when CompanyWorkers
// is above one. One company failing never stops the others.
func (p *Pipeline) RunBatch(ctx context.Context, resources []models.Resource) *Report {
	report := &Report{}
	resources = MergeResources(resources)

	if p.opts.CompanyWorkers <= 1 {
		for _, res := range resources {
			if ctx.Err() != nil {
				break
			}
			report.add(p.Process(ctx, res))
		}
		return report
	}

	pool, err := ants.NewPool(p.opts.CompanyWorkers, ants.WithPanicHandler(func(r interface{}) {
		log.Error().Interface("panic", r).Msg("Company worker panic recovered")
	}))
	if err != nil {
		log.Error().Err(err).Msg("Error creating company pool, running sequentially")
		for _, res := range resources {
			report.add(p.Process(ctx, res))
		}
		return report
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, res := range resources {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			report.add(p.Process(ctx, res))
		}); err != nil {
			wg.Done()
			report.add(Outcome{Company: res.Company, Status: StatusFailed, Err: err})
		}
	}
	wg.Wait()
	return report
}

// MergeResources folds rows for the same company into one, keeping first-seen URL order.
func MergeResources(resources []models.Resource) []models.Resource {
	index := make(map[string]int, len(resources))
	var out []models.Resource
	for _, r := range resources {
		i, ok := index[r.Company]
		if !ok {
			index[r.Company] = len(out)
			out = append(out, models.Resource{Company: r.Company})
			i = len(out) - 1
		}
		for _, u := range r.URLs {
			if u != "" && !slices.Contains(out[i].URLs, u) {
				out[i].URLs = append(out[i].URLs, u)
			}
		}
	}
	return out
}

func logOutcome(logger *zerolog.Logger, o Outcome) {
	evt := logger.Info()
	if o.Status == StatusFailed {
		evt = logger.Error().Err(o.Err)
	}
	evt.Str("status", string(o.Status)).
		Int("chunks", o.Chunks).
		Dur("elapsed", o.Duration).
		Msg("Company finished")
}
