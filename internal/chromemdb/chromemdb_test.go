package chromemdb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esg-pipeline/internal/config"
	"esg-pipeline/internal/models"
)

// keywordEmbed maps text onto a few topic axes so similarity is predictable.
func keywordEmbed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	for i, kw := range []string{"water", "carbon", "board"} {
		if strings.Contains(text, kw) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func newIndex(t *testing.T) *VectorDBManager {
	m, err := NewVectorDBManager(config.IndexConfig{InMemory: true, Collection: "test"}, keywordEmbed)
	require.NoError(t, err)
	return m
}

func sampleMetrics() models.AggregatedMetrics {
	agg := models.NewAggregatedMetrics()
	agg[models.Environmental]["Water Usage"] = []string{"Water withdrawal down 8%"}
	agg[models.Environmental]["Carbon Emissions"] = []string{"Carbon intensity 120 g/kWh", "Scope 3 carbon screening"}
	agg[models.Governance]["Board Composition"] = []string{"Board is 70% independent"}
	return agg
}

func TestIndexAndSearch(t *testing.T) {
	m := newIndex(t)
	ctx := context.Background()

	n, err := m.IndexCompany(ctx, "ACME", sampleMetrics())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, m.Count())

	res, err := m.Search(ctx, "ACME", "board independence", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, models.Governance, res[0].Pillar)
	assert.Equal(t, "Board Composition", res[0].Category)
	assert.Equal(t, "ACME", res[0].Company)

	// n larger than the collection is capped
	res, err = m.Search(ctx, "", "carbon", 50)
	require.NoError(t, err)
	assert.Len(t, res, 4)
	assert.Equal(t, "Carbon Emissions", res[0].Category)
}

func TestIndexCompany_ReplacesPreviousRun(t *testing.T) {
	m := newIndex(t)
	ctx := context.Background()

	_, err := m.IndexCompany(ctx, "ACME", sampleMetrics())
	require.NoError(t, err)
	_, err = m.IndexCompany(ctx, "Globex", sampleMetrics())
	require.NoError(t, err)
	assert.Equal(t, 8, m.Count())

	agg := models.NewAggregatedMetrics()
	agg[models.Social]["Human Rights"] = []string{"Supplier audits"}
	n, err := m.IndexCompany(ctx, "ACME", agg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, m.Count())
}

func TestIndexCompany_Empty(t *testing.T) {
	m := newIndex(t)
	n, err := m.IndexCompany(context.Background(), "ACME", models.NewAggregatedMetrics())
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := m.Search(context.Background(), "ACME", "water", 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = m.Search(context.Background(), "ACME", "", 3)
	assert.Error(t, err)
}

func TestDocumentIDStable(t *testing.T) {
	a := documentID("ACME", models.Social, "Human Rights", "audit")
	assert.Equal(t, a, documentID("ACME", models.Social, "Human Rights", "audit"))
	assert.NotEqual(t, a, documentID("Globex", models.Social, "Human Rights", "audit"))
}
