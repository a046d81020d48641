package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esg-pipeline/internal/config"
	"esg-pipeline/internal/models"
)

func newMockStore(t *testing.T) (*AnalysisStore, sqlmock.Sqlmock) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })

	store := NewAnalysisStore(NewDB(sqldb, false))
	store.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestAnalysisStore_Exists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT .* FROM "esg_report_analysis" AS "a" WHERE \(company = 'ACME'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := store.Exists(context.Background(), "ACME")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(context.Background(), "Globex")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisStore_ExistsError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection refused"))

	_, err := store.Exists(context.Background(), "ACME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACME")
}

func TestAnalysisStore_Upsert(t *testing.T) {
	store, mock := newMockStore(t)

	// a missing breakdown goes out as DEFAULT (NULL) and is read back; a generated empty one is '{}'
	mock.ExpectQuery(`INSERT INTO "esg_report_analysis" .*VALUES \('ACME', 'env', '\{"Energy Use":"Mostly renewable"\}', 'Summary not available\.', DEFAULT, 'gov', '\{\}', .*\) ON CONFLICT \(company\) DO UPDATE SET environmental_summary = EXCLUDED\.environmental_summary.* RETURNING "social_breakdown"`).
		WillReturnRows(sqlmock.NewRows([]string{"social_breakdown"}).AddRow(nil))

	err := store.Upsert(context.Background(), &models.CompanyAnalysis{
		Company: "ACME",
		Summaries: map[models.Pillar]string{
			models.Environmental: "env",
			models.Social:        models.SummaryFallback,
			models.Governance:    "gov",
		},
		Breakdowns: map[models.Pillar]models.Breakdown{
			models.Environmental: {"Energy Use": "Mostly renewable"},
			models.Governance:    {},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisStore_UpsertError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO "esg_report_analysis" .*DEFAULT.* RETURNING "environmental_breakdown", "social_breakdown", "governance_breakdown"`).
		WillReturnError(errors.New("permission denied"))

	err := store.Upsert(context.Background(), &models.CompanyAnalysis{Company: "ACME"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ACME")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestESGReportAnalysis_RoundTrip(t *testing.T) {
	a := &models.CompanyAnalysis{
		Company:    "ACME",
		Summaries:  map[models.Pillar]string{models.Environmental: "env"},
		Breakdowns: map[models.Pillar]models.Breakdown{models.Governance: {}},
	}
	row := NewESGReportAnalysis(a, time.Now())
	assert.Nil(t, row.EnvironmentalBreakdown)
	assert.True(t, row.EnvironmentalBreakdown.IsZero())
	assert.NotNil(t, row.GovernanceBreakdown)
	assert.False(t, row.GovernanceBreakdown.IsZero())

	back := row.ToModel()
	assert.Equal(t, "env", back.Summary(models.Environmental))
	assert.Nil(t, back.Breakdown(models.Environmental))
	assert.NotNil(t, back.Breakdown(models.Governance))
}

func TestListResources(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	db := NewDB(sqldb, false)

	mock.ExpectQuery(`SELECT "r"\."company", "r"\."urls" FROM "resources" AS "r"`).
		WillReturnRows(sqlmock.NewRows([]string{"company", "urls"}).
			AddRow("ACME", []byte(`["https://acme.example/esg.pdf"]`)).
			AddRow("Globex", []byte(`[]`)))

	res, err := ListResources(context.Background(), db, "")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, models.Resource{Company: "ACME", URLs: []string{"https://acme.example/esg.pdf"}}, res[0])
	assert.Empty(t, res[1].URLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListResources_Empty(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()

	mock.ExpectQuery(`SELECT .* FROM "resources"`).
		WillReturnRows(sqlmock.NewRows([]string{"company", "urls"}))

	_, err = ListResources(context.Background(), NewDB(sqldb, false), "ACME")
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestConnectDB_Validation(t *testing.T) {
	_, err := ConnectDB(config.DatabaseConfig{})
	assert.Error(t, err)

	_, err = ConnectDB(config.DatabaseConfig{DSN: "postgres://u@localhost/db", Driver: "mysql"})
	assert.Error(t, err)

	sqldb, err := ConnectDB(config.DatabaseConfig{DSN: "postgres://u@localhost:5432/db?sslmode=disable", Password: "x"})
	require.NoError(t, err)
	assert.NoError(t, sqldb.Close())
}
