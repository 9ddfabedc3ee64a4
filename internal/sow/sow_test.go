package sow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

func sampleInventory() *schema.Inventory {
	return &schema.Inventory{
		Projects: []schema.Project{
			{
				ID:                1,
				PathWithNamespace: "group/a",
				Readiness:         schema.Readiness{Complexity: schema.ComplexityLow},
				Estimate: &schema.Estimate{
					HoursLow: 1, HoursHigh: 2, Confidence: schema.ConfidenceHigh, Bucket: "S",
				},
			},
			{
				ID:                2,
				PathWithNamespace: "group/b",
				Archived:          true,
				Readiness:         schema.Readiness{Complexity: schema.ComplexityHigh, Blockers: []string{"Uses Git LFS"}},
				Estimate: &schema.Estimate{
					HoursLow: 20, HoursHigh: 40, Confidence: schema.ConfidenceMedium, Bucket: "L",
				},
			},
			{
				ID:                3,
				PathWithNamespace: "group/c",
				Readiness:         schema.Readiness{Complexity: schema.ComplexityMedium},
			},
		},
	}
}

func TestAggregateSumsHoursAndSkipsMissingEstimates(t *testing.T) {
	inv := sampleInventory()
	m := aggregate(inv.Projects)

	assert.Equal(t, 3, m.TotalProjects)
	assert.Equal(t, 1, m.ArchivedProjects)
	assert.Equal(t, 21.0, m.HoursLow)
	assert.Equal(t, 42.0, m.HoursHigh)
	assert.Equal(t, 1, m.ProjectsMissingEstimate)
	assert.Equal(t, 1, m.ComplexityCounts["low"])
	assert.Equal(t, 1, m.ComplexityCounts["high"])
	assert.Equal(t, 1, m.ComplexityCounts["medium"])
	assert.Equal(t, 1, m.BlockerCounts["Uses Git LFS"])
}

func TestSelectProjectsFiltersByID(t *testing.T) {
	inv := sampleInventory()
	got := selectProjects(inv, []int64{2})
	require.Len(t, got, 1)
	assert.Equal(t, "group/b", got[0].PathWithNamespace)
}

func TestSelectProjectsEmptyIDsReturnsAll(t *testing.T) {
	inv := sampleInventory()
	got := selectProjects(inv, nil)
	assert.Len(t, got, 3)
}

func TestChunkProjectsRespectsSize(t *testing.T) {
	inv := sampleInventory()
	chunks := chunkProjects(inv.Projects, 2)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)
}

func TestGenerateWithoutLLMFallsBackToTemplatedNarrative(t *testing.T) {
	inv := sampleInventory()
	req := Request{
		Inventory: inv,
		Options:   Options{ClientName: "Acme Corp"},
	}

	res, err := Generate(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metrics.TotalProjects)
	assert.Contains(t, res.Markdown, "Acme Corp")
	assert.Contains(t, res.Markdown, "## Narrative")
	assert.Contains(t, res.Markdown, "standard repository, CI/CD, issue, and merge-request transformation pipeline")
	assert.Contains(t, res.Markdown, "group/a")
	assert.Contains(t, res.Markdown, "group/b")
	assert.True(t, strings.HasPrefix(res.Markdown, "---\n"))
}

func TestGenerateDefaultsClientNameWhenBlank(t *testing.T) {
	inv := sampleInventory()
	res, err := Generate(context.Background(), Request{Inventory: inv}, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "Client")
}
