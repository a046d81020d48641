package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"esg-pipeline/internal/chromemdb"
	"esg-pipeline/internal/config"
	"esg-pipeline/internal/db"
	"esg-pipeline/internal/embedding"
	"esg-pipeline/internal/fetcher"
	"esg-pipeline/internal/helper"
	"esg-pipeline/internal/llmservice"
	"esg-pipeline/internal/models"
	"esg-pipeline/internal/pipeline"
	"esg-pipeline/internal/rag"
)

var (
	runCompany string
	runDryRun  bool
	runForce   bool

	analyzeCompany string
	analyzeURLs    []string

	searchCompany string
	searchLimit   int

	askCompany string
	askTopK    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze every company with report URLs",
	Long: `Reads companies from the config file, or from the resources table when the config
lists none, and stores one analysis per company in esg_report_analysis. Companies that
already have an analysis are skipped unless --force is given.`,
	RunE: runBatch,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze explicit report URLs and print the result",
	RunE:  runAnalyze,
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the pipeline tables if missing",
	RunE:  runInitDB,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed ESG evidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about a company from indexed evidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	runCmd.Flags().StringVar(&runCompany, "company", "", "only process this company")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "run the analysis without writing results")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reprocess companies that already have an analysis")

	analyzeCmd.Flags().StringVar(&analyzeCompany, "company", "", "company name")
	analyzeCmd.Flags().StringSliceVar(&analyzeURLs, "url", nil, "report URL (repeatable)")
	_ = analyzeCmd.MarkFlagRequired("company")
	_ = analyzeCmd.MarkFlagRequired("url")

	searchCmd.Flags().StringVar(&searchCompany, "company", "", "restrict results to one company")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")

	askCmd.Flags().StringVar(&askCompany, "company", "", "company name")
	askCmd.Flags().IntVar(&askTopK, "top-k", 8, "number of evidence fragments to retrieve")
	_ = askCmd.MarkFlagRequired("company")

	rootCmd.AddCommand(runCmd, analyzeCmd, initDBCmd, searchCmd, askCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openDB(cfg *config.Config) (*bun.DB, error) {
	sqldb, err := db.ConnectDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	return db.NewDB(sqldb, cfg.Database.Debug), nil
}

// newIndex opens the evidence index with an embedder sharing the completion limiter.
func newIndex(cfg *config.Config, limiter *llmservice.Limiter) (*chromemdb.VectorDBManager, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	embed := embedding.EmbeddingFunc(embedder, limiter, llmservice.PolicyFromConfig(&cfg.EmbedLLM))
	return chromemdb.NewVectorDBManager(cfg.Index, embed)
}

func newPipeline(cfg *config.Config, store pipeline.AnalysisStore, opts pipeline.Options) (*pipeline.Pipeline, error) {
	limiter := llmservice.NewLimiter(cfg.LLM.MinInterval)
	client, err := llmservice.NewClient(&cfg.LLM, limiter)
	if err != nil {
		return nil, err
	}

	var index pipeline.EvidenceIndex
	if cfg.Index.Enabled {
		idx, err := newIndex(cfg, limiter)
		if err != nil {
			return nil, err
		}
		index = idx
	}

	if cfg.Pipeline.TempDir != "" {
		if err := helper.CreateFolder(cfg.Pipeline.TempDir); err != nil {
			return nil, err
		}
	}
	f := fetcher.New(cfg.Pipeline.DownloadTimeout, cfg.Pipeline.TempDir, nil)
	return pipeline.New(store, f, client, index, opts), nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var store pipeline.AnalysisStore
	var bunDB *bun.DB
	if cfg.Database.DSN != "" {
		bunDB, err = openDB(cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer bunDB.Close()
		store = db.NewAnalysisStore(bunDB)
	} else if !runDryRun {
		return errors.New("database dsn is required unless --dry-run is set")
	}

	resources, err := loadResources(ctx, cfg, bunDB, runCompany)
	if err != nil {
		return err
	}
	log.Info().Int("companies", len(resources)).Msg("Loaded companies")

	opts := pipeline.OptionsFromConfig(cfg)
	opts.DryRun = runDryRun
	opts.Force = runForce
	p, err := newPipeline(cfg, store, opts)
	if err != nil {
		return err
	}

	report := p.RunBatch(ctx, resources)
	logReport(report)
	if report.Failed() {
		return fmt.Errorf("%d companies failed", report.Count(pipeline.StatusFailed))
	}
	return nil
}

// loadResources prefers the config list and falls back to the resources table.
func loadResources(ctx context.Context, cfg *config.Config, bunDB *bun.DB, company string) ([]models.Resource, error) {
	if len(cfg.Companies) > 0 {
		var out []models.Resource
		for _, r := range cfg.Companies {
			if company == "" || r.Company == company {
				out = append(out, r)
			}
		}
		if len(out) == 0 {
			return nil, db.ErrNoResources
		}
		return out, nil
	}
	if bunDB == nil {
		return nil, errors.New("no companies configured and no database to read resources from")
	}
	return db.ListResources(ctx, bunDB, company)
}

func logReport(report *pipeline.Report) {
	byStatus := make(map[pipeline.Status][]string)
	for _, o := range report.Outcomes() {
		byStatus[o.Status] = append(byStatus[o.Status], o.Company)
	}
	evt := log.Info().Str("summary", report.String())
	for status, companies := range byStatus {
		evt = evt.Strs(string(status), companies)
	}
	evt.Msg("Run finished")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.DryRun = true
	p, err := newPipeline(cfg, nil, opts)
	if err != nil {
		return err
	}

	text := p.Fetch(ctx, analyzeURLs)
	if text == "" {
		return fmt.Errorf("no text extracted for %s", analyzeCompany)
	}

	result, err := p.Analyze(ctx, analyzeCompany, text)
	if err != nil {
		return err
	}
	helper.PrettyPrint(result.Analysis)
	return nil
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bunDB, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer bunDB.Close()

	if err := db.InitDB(cmd.Context(), bunDB); err != nil {
		return err
	}
	log.Info().Msg("Tables ready")
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	idx, err := newIndex(cfg, llmservice.NewLimiter(cfg.LLM.MinInterval))
	if err != nil {
		return err
	}
	results, err := idx.Search(cmd.Context(), searchCompany, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No evidence found.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "[%.3f] %s / %s / %s\n  %s\n", r.Similarity, r.Company, r.Pillar, r.Category, r.Content)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	limiter := llmservice.NewLimiter(cfg.LLM.MinInterval)
	idx, err := newIndex(cfg, limiter)
	if err != nil {
		return err
	}
	client, err := llmservice.NewClient(&cfg.LLM, limiter)
	if err != nil {
		return err
	}

	ans, err := rag.NewRAG(idx, client, askTopK).Query(cmd.Context(), askCompany, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
	fmt.Fprintf(cmd.OutOrStdout(), "\n(%d evidence fragments)\n", len(ans.Evidence))
	return nil
}
