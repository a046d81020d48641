package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"esg-pipeline/internal/models"
)

// ESGReportAnalysis is one row per company. A NULL breakdown means it was not generated.
type ESGReportAnalysis struct {
	bun.BaseModel `bun:"table:esg_report_analysis,alias:a"`

	Company                string           `bun:"company,pk"`
	EnvironmentalSummary   string           `bun:"environmental_summary"`
	EnvironmentalBreakdown models.Breakdown `bun:"environmental_breakdown,type:jsonb,nullzero"`
	SocialSummary          string           `bun:"social_summary"`
	SocialBreakdown        models.Breakdown `bun:"social_breakdown,type:jsonb,nullzero"`
	GovernanceSummary      string           `bun:"governance_summary"`
	GovernanceBreakdown    models.Breakdown `bun:"governance_breakdown,type:jsonb,nullzero"`
	CreatedAt              time.Time        `bun:"created_at,type:timestamptz"`
	UpdatedAt              time.Time        `bun:"updated_at,type:timestamptz"`
}

func NewESGReportAnalysis(a *models.CompanyAnalysis, now time.Time) *ESGReportAnalysis {
	return &ESGReportAnalysis{
		Company:                a.Company,
		EnvironmentalSummary:   a.Summary(models.Environmental),
		EnvironmentalBreakdown: a.Breakdown(models.Environmental),
		SocialSummary:          a.Summary(models.Social),
		SocialBreakdown:        a.Breakdown(models.Social),
		GovernanceSummary:      a.Summary(models.Governance),
		GovernanceBreakdown:    a.Breakdown(models.Governance),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// ToModel converts the row back into a CompanyAnalysis. NULL breakdowns stay absent.
func (r *ESGReportAnalysis) ToModel() *models.CompanyAnalysis {
	a := &models.CompanyAnalysis{
		Company: r.Company,
		Summaries: map[models.Pillar]string{
			models.Environmental: r.EnvironmentalSummary,
			models.Social:        r.SocialSummary,
			models.Governance:    r.GovernanceSummary,
		},
		Breakdowns: make(map[models.Pillar]models.Breakdown),
	}
	for p, bd := range map[models.Pillar]models.Breakdown{
		models.Environmental: r.EnvironmentalBreakdown,
		models.Social:        r.SocialBreakdown,
		models.Governance:    r.GovernanceBreakdown,
	} {
		if bd != nil {
			a.Breakdowns[p] = bd
		}
	}
	return a
}

type AnalysisStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewAnalysisStore(db *bun.DB) *AnalysisStore {
	return &AnalysisStore{db: db, now: time.Now}
}

// Exists reports whether an analysis row is already stored for company.
func (s *AnalysisStore) Exists(ctx context.Context, company string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*ESGReportAnalysis)(nil)).
		Where("company = ?", company).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check analysis for %s: %w", company, err)
	}
	return exists, nil
}

// Upsert writes the full analysis in one statement, replacing any earlier row for the
// company.
func (s *AnalysisStore) Upsert(ctx context.Context, a *models.CompanyAnalysis) error {
	row := NewESGReportAnalysis(a, s.now().UTC())
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (company) DO UPDATE").
		Set("environmental_summary = EXCLUDED.environmental_summary").
		Set("environmental_breakdown = EXCLUDED.environmental_breakdown").
		Set("social_summary = EXCLUDED.social_summary").
		Set("social_breakdown = EXCLUDED.social_breakdown").
		Set("governance_summary = EXCLUDED.governance_summary").
		Set("governance_breakdown = EXCLUDED.governance_breakdown").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert analysis for %s: %w", a.Company, err)
	}
	return nil
}

// Get loads the stored analysis for company.
func (s *AnalysisStore) Get(ctx context.Context, company string) (*models.CompanyAnalysis, error) {
	row := new(ESGReportAnalysis)
	if err := s.db.NewSelect().Model(row).Where("company = ?", company).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load analysis for %s: %w", company, err)
	}
	return row.ToModel(), nil
}
