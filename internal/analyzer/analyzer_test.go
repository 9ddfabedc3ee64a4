package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// --- ParseCI / ScoreCI (S3) ---

func ciHeavyFixture(jobCount int) string {
	content := "include:\n  - local: '/templates.yml'\nservices:\n  - docker:dind\nbuild:\n  stage: build\n  tags:\n    - self-hosted\n  script:\n    - echo hi\n"
	for i := 2; i <= jobCount; i++ {
		content += fmt.Sprintf("job%d:\n  stage: build\n  script:\n    - echo hi\n", i)
	}
	return content
}

func TestParseCIDetectsFeaturesAndRunnerHints(t *testing.T) {
	profile := ParseCI(ciHeavyFixture(15))
	require.True(t, profile.Present)
	require.True(t, profile.Features.Include)
	require.True(t, profile.Features.Services)
	require.True(t, profile.RunnerHints.DockerInDocker)
	require.True(t, profile.RunnerHints.PossibleSelfHosted)
	require.True(t, profile.RunnerHints.UsesTags)
	require.Equal(t, 15, profile.JobCount)
}

func TestParseCIEmptyContent(t *testing.T) {
	profile := ParseCI("   \n\n")
	require.False(t, profile.Present)
}

func TestScoreCICrossesComplexityThreshold(t *testing.T) {
	profile := ParseCI(ciHeavyFixture(15))
	score, factors := ScoreCI(profile)
	require.GreaterOrEqual(t, score, 30)
	require.NotEmpty(t, factors)
}

func TestScoreCIAbsentProfile(t *testing.T) {
	score, factors := ScoreCI(schema.CIProfile{Present: false})
	require.Equal(t, 0, score)
	require.Nil(t, factors)
}

// --- computeRiskFlags ---

func TestComputeRiskFlagsComplexCIAndSelfHosted(t *testing.T) {
	profile := ParseCI(ciHeavyFixture(15))
	p := &schema.Project{DefaultBranch: "main"}
	flags := computeRiskFlags(p, profile, schema.EnrichmentProfile{})
	require.True(t, flags.ComplexCI)
	require.True(t, flags.SelfHostedRunnerHints)
	require.False(t, flags.MissingDefaultBranch)
}

func TestComputeRiskFlagsMissingDefaultBranch(t *testing.T) {
	p := &schema.Project{DefaultBranch: ""}
	flags := computeRiskFlags(p, schema.CIProfile{}, schema.EnrichmentProfile{})
	require.True(t, flags.MissingDefaultBranch)
}

func TestComputeRiskFlagsExceededLimits(t *testing.T) {
	p := &schema.Project{
		Facts: schema.Facts{
			MRCounts: schema.MRCounts{Total: schema.CeilingCount(1000)},
		},
	}
	flags := computeRiskFlags(p, schema.CIProfile{}, schema.EnrichmentProfile{})
	require.True(t, flags.ExceededLimits)
}

// --- Estimate (S1, S2, S3) ---

func TestEstimateTinyProjectIsLowAndConfident(t *testing.T) {
	p := &schema.Project{
		ID: 1, PathWithNamespace: "acme/tiny", Archived: false,
		Facts: schema.Facts{
			HasCI:  schema.Known(false),
			HasLFS: schema.Known(false),
			MRCounts: schema.MRCounts{
				Open: schema.ExactCount(0), Closed: schema.ExactCount(0),
				Merged: schema.ExactCount(0), Total: schema.ExactCount(0),
			},
			IssueCounts: schema.IssueCounts{
				Open: schema.ExactCount(0), Closed: schema.ExactCount(0), Total: schema.ExactCount(0),
			},
		},
	}
	est := Estimate(p)
	require.InDelta(t, 1.0, est.HoursLow, 0.5)
	require.InDelta(t, 2.0, est.HoursHigh, 0.5)
	require.Equal(t, schema.ConfidenceHigh, est.Confidence)
	require.Equal(t, "S", est.Bucket)
}

func TestEstimateArchivedLargeProjectIsReducedAndHighConfidence(t *testing.T) {
	p := &schema.Project{
		ID: 2, PathWithNamespace: "acme/archive", Archived: true,
		Facts: schema.Facts{
			HasLFS: schema.Known(true),
			MRCounts: schema.MRCounts{
				Total: schema.ExactCount(500),
			},
			IssueCounts: schema.IssueCounts{
				Total: schema.ExactCount(1500),
			},
		},
	}
	est := Estimate(p)
	require.Equal(t, schema.ConfidenceHigh, est.Confidence, "archived projects are always high confidence")
	require.True(t, est.HoursLow <= est.HoursHigh)
	require.Less(t, est.HoursHigh, 10.0, "archive override must sharply reduce the estimate")
}

func TestEstimateCIHeavyProjectHasLargeHoursHigh(t *testing.T) {
	profile := ParseCI(ciHeavyFixture(15))
	p := &schema.Project{
		ID: 3, PathWithNamespace: "acme/ci-heavy", DefaultBranch: "main",
		Facts: schema.Facts{
			HasCI:     schema.Known(true),
			HasLFS:    schema.Known(false),
			CIProfile: &profile,
		},
	}
	p.Facts.Enrichment = &schema.EnrichmentProfile{
		RiskFlags: computeRiskFlags(p, profile, schema.EnrichmentProfile{}),
	}
	est := Estimate(p)
	require.GreaterOrEqual(t, est.HoursHigh, 20.0)
	require.LessOrEqual(t, est.HoursLow, est.HoursHigh)
	require.Contains(t, est.Drivers, "Self-hosted runner hints")
}

func TestEstimateHoursLowNeverExceedsHigh(t *testing.T) {
	for _, archived := range []bool{true, false} {
		p := &schema.Project{Archived: archived}
		est := Estimate(p)
		require.LessOrEqual(t, est.HoursLow, est.HoursHigh)
	}
}

// --- Bucket thresholds ---

func TestBucketThresholds(t *testing.T) {
	require.Equal(t, "S", Bucket(0))
	require.Equal(t, "S", Bucket(19))
	require.Equal(t, "M", Bucket(20))
	require.Equal(t, "M", Bucket(44))
	require.Equal(t, "L", Bucket(45))
	require.Equal(t, "L", Bucket(69))
	require.Equal(t, "XL", Bucket(70))
	require.Equal(t, "XL", Bucket(100))
}

// --- Rank / TopN ---

func TestRankOrdersHigherRiskFirst(t *testing.T) {
	projects := []schema.Project{
		{ID: 1, Archived: true},
		{ID: 2, Facts: schema.Facts{HasCI: schema.Known(true)}, DefaultBranch: "main"},
		{ID: 3},
	}
	ranked := Rank(projects)
	require.Equal(t, int64(2), ranked[0], "CI-present active project should rank highest")
}

func TestTopNClampsToLength(t *testing.T) {
	ranked := []int64{1, 2, 3}
	require.Equal(t, []int64{1, 2, 3}, TopN(ranked, 0))
	require.Equal(t, []int64{1, 2, 3}, TopN(ranked, 10))
	require.Equal(t, []int64{1, 2}, TopN(ranked, 2))
}

// --- enrichOne against a stub GitLab server ---

func TestEnrichOneWiresRepoCIAndRiskFlags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/1/repository/branches", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total", "3")
		w.Write([]byte(`[{},{},{}]`))
	})
	mux.HandleFunc("/api/v4/projects/1/repository/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total", "0")
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v4/projects/1/repository/files/.gitlab-ci.yml", func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte(ciHeavyFixture(15))),
			"encoding": "base64",
		})
		w.Write(body)
	})
	mux.HandleFunc("/api/v4/projects/1/repository/files/.gitattributes", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/api/v4/projects/1/repository/files/.gitmodules", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/api/v4/projects/1/protected_branches", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) })
	mux.HandleFunc("/api/v4/projects/1/variables", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) })
	mux.HandleFunc("/api/v4/projects/1/hooks", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) })
	mux.HandleFunc("/api/v4/projects/1/releases", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) })
	mux.HandleFunc("/api/v4/projects/1", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) })

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := forgeclient.NewGitLabClient(srv.URL, "tok", nil)
	p := &schema.Project{ID: 1, PathWithNamespace: "acme/ci-heavy", DefaultBranch: "main"}

	out, err := enrichOne(context.Background(), client, nil, p)
	require.NoError(t, err)
	require.NotNil(t, out.Facts.CIProfile)
	require.True(t, out.Facts.CIProfile.Present)
	require.True(t, out.Facts.CIProfile.RunnerHints.UsesTags)
	require.NotNil(t, out.Facts.Enrichment)
	require.True(t, out.Facts.Enrichment.RiskFlags.ComplexCI)
	require.NotNil(t, out.Estimate)
	require.GreaterOrEqual(t, out.Estimate.HoursHigh, 20.0)
}

// --- LLM response parsing ---

func TestParseLLMResponseFromFencedCodeBlock(t *testing.T) {
	text := "Here is my estimate:\n```json\n{\"hours_low\": 4, \"hours_high\": 9, \"risk\": \"low\", \"supported\": [\"issues\"]}\n```\nLet me know if you need anything else."
	est, err := parseLLMResponse(text)
	require.NoError(t, err)
	require.Equal(t, 4.0, est.HoursLow)
	require.Equal(t, 9.0, est.HoursHigh)
	require.Equal(t, "low", est.Risk)
}

func TestParseLLMResponseScansFirstBraceObject(t *testing.T) {
	text := `Sure, here is the answer: {"hours_low": 2, "hours_high": 5, "risk": "medium", "critical_notes": ["a {braced} note"]} and my reasoning is {nested braces like this}`
	est, err := parseLLMResponse(text)
	require.NoError(t, err)
	require.Equal(t, 2.0, est.HoursLow)
	require.Equal(t, 5.0, est.HoursHigh)
}

func TestParseLLMResponseNoJSONFails(t *testing.T) {
	_, err := parseLLMResponse("I cannot help with that.")
	require.Error(t, err)
}

func TestParseLLMResponseDefaultsRiskToMedium(t *testing.T) {
	est, err := parseLLMResponse(`{"hours_low": 1, "hours_high": 2}`)
	require.NoError(t, err)
	require.Equal(t, "medium", est.Risk)
}

func TestParseLLMResponseCapsSupportedLists(t *testing.T) {
	text := `{"hours_low": 1, "hours_high": 2, "supported": ["a","b","c","d","e","f","g"]}`
	est, err := parseLLMResponse(text)
	require.NoError(t, err)
	require.Len(t, est.Supported, 5)
}

func TestApplyLLMResultAttachesBreakdownOnlyWhenItSums(t *testing.T) {
	base := &schema.Estimate{HoursLow: 1, HoursHigh: 2, Drivers: []string{"existing"}}
	good := &llmEstimate{
		HoursLow: 5, HoursHigh: 10, Risk: "low",
		Breakdown: map[string]llmHourBand{
			"code": {HoursLow: 5, HoursHigh: 10},
		},
		Supported: []string{"CI"},
	}
	out := applyLLMResult(base, good)
	require.Equal(t, 5.0, out.HoursLow)
	require.Equal(t, 10.0, out.HoursHigh)
	require.NotNil(t, out.Breakdown)
	require.Equal(t, schema.ConfidenceHigh, out.Confidence)
	require.Contains(t, out.Drivers, "existing")
	require.Contains(t, out.Drivers, "CI")

	mismatched := &llmEstimate{
		HoursLow: 5, HoursHigh: 10, Risk: "high",
		Breakdown: map[string]llmHourBand{"code": {HoursLow: 1, HoursHigh: 1}},
	}
	out2 := applyLLMResult(base, mismatched)
	require.Nil(t, out2.Breakdown, "a breakdown that doesn't sum to the total must be dropped")
	require.Equal(t, schema.ConfidenceLow, out2.Confidence)
}

func TestConfidenceFromRisk(t *testing.T) {
	require.Equal(t, schema.ConfidenceHigh, confidenceFromRisk("low"))
	require.Equal(t, schema.ConfidenceMedium, confidenceFromRisk("medium"))
	require.Equal(t, schema.ConfidenceLow, confidenceFromRisk("high"))
	require.Equal(t, schema.ConfidenceMedium, confidenceFromRisk("unexpected"))
}
