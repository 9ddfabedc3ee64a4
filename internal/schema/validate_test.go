package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInventory() *Inventory {
	return &Inventory{
		Run: Run{
			StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
			BaseURL:   "https://gitlab.example.com",
			Stats:     RunStats{Groups: 1, Projects: 1, Errors: 0, APICalls: 12},
		},
		Groups: []Group{
			{ID: 1, FullPath: "team-a", Projects: []int64{10}},
		},
		Projects: []Project{
			{
				ID:                10,
				PathWithNamespace: "team-a/widget",
				DefaultBranch:     "main",
				Archived:          false,
				Visibility:        VisibilityPrivate,
				GroupID:           1,
				Facts: Facts{
					HasCI:  Known(true),
					HasLFS: Known(false),
					MRCounts: MRCounts{
						Open: ExactCount(0), Closed: ExactCount(0), Merged: ExactCount(0), Total: ExactCount(0),
					},
					IssueCounts: IssueCounts{
						Open: ExactCount(0), Closed: ExactCount(0), Total: ExactCount(0),
					},
				},
				Readiness: Readiness{Complexity: ComplexityLow, Blockers: []string{}, Notes: []string{}},
				Errors:    []ProjectError{},
			},
		},
	}
}

func TestValidate_AcceptsWellFormedInventory(t *testing.T) {
	err := Validate(sampleInventory())
	assert.NoError(t, err)
}

func TestValidate_RejectsGroupProjectMismatch(t *testing.T) {
	inv := sampleInventory()
	inv.Groups[0].Projects = append(inv.Groups[0].Projects, 999)
	err := Validate(inv)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, ve.Error(), "unknown project id")
}

func TestValidate_RejectsUnsortedGroups(t *testing.T) {
	inv := sampleInventory()
	inv.Groups = append(inv.Groups, Group{ID: 2, FullPath: "aaa-earlier", Projects: []int64{}})
	err := Validate(inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sorted")
}

func TestValidate_RejectsInvertedHourBand(t *testing.T) {
	inv := sampleInventory()
	inv.Projects[0].Estimate = &Estimate{HoursLow: 10, HoursHigh: 2, Confidence: ConfidenceHigh}
	err := Validate(inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hours_low > hours_high")
}

func TestValidate_RejectsBreakdownMismatch(t *testing.T) {
	inv := sampleInventory()
	inv.Projects[0].Estimate = &Estimate{
		HoursLow: 5, HoursHigh: 10, Confidence: ConfidenceMedium,
		Breakdown: &Breakdown{
			Code:   HourBand{HoursLow: 1, HoursHigh: 2},
			MRs:    HourBand{HoursLow: 1, HoursHigh: 2},
			Issues: HourBand{HoursLow: 1, HoursHigh: 2},
			CI:     HourBand{HoursLow: 1, HoursHigh: 2},
		},
	}
	err := Validate(inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not sum")
}

func TestCount_JSONRoundTrip(t *testing.T) {
	for _, c := range []Count{UnknownCount(), ExactCount(42), CeilingCount(1000)} {
		b, err := c.MarshalJSON()
		require.NoError(t, err)
		var back Count
		require.NoError(t, back.UnmarshalJSON(b))
		assert.Equal(t, c, back)
	}
}

func TestTriBool_JSONRoundTrip(t *testing.T) {
	for _, tb := range []TriBool{Unknown(), Known(true), Known(false)} {
		b, err := tb.MarshalJSON()
		require.NoError(t, err)
		var back TriBool
		require.NoError(t, back.UnmarshalJSON(b))
		assert.Equal(t, tb, back)
	}
}
