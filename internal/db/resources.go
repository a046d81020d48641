package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"esg-pipeline/internal/models"
)

// Resource is a row of the resources table filled by the source discovery job.
// List columns are stored as JSON arrays.
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:r"`

	ID        int64    `bun:"id,pk,autoincrement"`
	Ticker    string   `bun:"ticker"`
	Company   string   `bun:"company,notnull"`
	FileNames []string `bun:"file_names,type:jsonb"`
	Titles    []string `bun:"titles,type:jsonb"`
	URLs      []string `bun:"urls,type:jsonb"`
	Source    []string `bun:"source,type:jsonb"`
}

// ListResources returns company and URL pairs, optionally filtered to one company.
// Rows without URLs are kept so callers can report them as skipped.
func ListResources(ctx context.Context, db *bun.DB, company string) ([]models.Resource, error) {
	var rows []Resource
	q := db.NewSelect().
		Model(&rows).
		Column("company", "urls").
		OrderExpr("company ASC")
	if company != "" {
		q = q.Where("company = ?", company)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoResources
	}

	out := make([]models.Resource, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Resource{Company: r.Company, URLs: r.URLs})
	}
	return out, nil
}
