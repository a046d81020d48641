package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"esg-pipeline/internal/config"
	"esg-pipeline/internal/models"
)

const (
	compress = false

	metaCompany  = "company"
	metaPillar   = "pillar"
	metaCategory = "category"
)

// Evidence is one aggregated fragment returned by a search.
type Evidence struct {
	ID         string
	Company    string
	Pillar     models.Pillar
	Category   string
	Content    string
	Similarity float32
}

// VectorDBManager keeps aggregated ESG fragments in a chromem collection so analysts can
// search the evidence behind a company's summaries.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
}

// NewVectorDBManager opens the index described by cfg. embed is used for both documents
// and queries.
func NewVectorDBManager(cfg config.IndexConfig, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	c, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &VectorDBManager{
		db:         db,
		collection: c,
		dbPath:     cfg.Path,
	}, nil
}

// documentID is stable per company, pillar, category and fragment text, so re-indexing
// the same fragment overwrites it.
func documentID(company string, p models.Pillar, category, fragment string) string {
	key := company + "\x00" + string(p) + "\x00" + category + "\x00" + fragment
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// IndexCompany replaces the company's evidence with the given aggregated fragments and
// returns the number of documents written.
func (m *VectorDBManager) IndexCompany(ctx context.Context, company string, agg models.AggregatedMetrics) (int, error) {
	if err := m.DeleteCompany(ctx, company); err != nil {
		return 0, err
	}

	var docs []chromem.Document
	for _, p := range models.Pillars {
		for _, cat := range models.Categories(p) {
			for i, frag := range agg[p][cat] {
				docs = append(docs, chromem.Document{
					ID:      documentID(company, p, cat, frag),
					Content: frag,
					Metadata: map[string]string{
						metaCompany:  company,
						metaPillar:   string(p),
						metaCategory: cat,
						"position":   strconv.Itoa(i),
					},
				})
			}
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info().Str("company", company).Int("documents", len(docs)).Msg("Indexed ESG evidence")
	return len(docs), nil
}

// DeleteCompany removes every indexed fragment for company.
func (m *VectorDBManager) DeleteCompany(ctx context.Context, company string) error {
	if m.collection.Count() == 0 {
		return nil
	}
	if err := m.collection.Delete(ctx, map[string]string{metaCompany: company}, nil); err != nil {
		return fmt.Errorf("failed to delete documents for %s: %w", company, err)
	}
	return nil
}

// Search returns up to n fragments most similar to query. An empty company searches
// every company.
func (m *VectorDBManager) Search(ctx context.Context, company, query string, n int) ([]Evidence, error) {
	if query == "" {
		return nil, fmt.Errorf("query must be provided")
	}
	count := m.collection.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}

	var where map[string]string
	if company != "" {
		where = map[string]string{metaCompany: company}
	}

	results, err := m.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]Evidence, 0, len(results))
	for _, r := range results {
		out = append(out, Evidence{
			ID:         r.ID,
			Company:    r.Metadata[metaCompany],
			Pillar:     models.Pillar(r.Metadata[metaPillar]),
			Category:   r.Metadata[metaCategory],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}
