package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDiscoveryRequiresBaseURLAndToken(t *testing.T) {
	_, err := LoadDiscovery(DiscoveryFlags{})
	assert.Error(t, err)

	_, err = LoadDiscovery(DiscoveryFlags{BaseURL: "https://gitlab.example.com", Token: "tok"})
	require.NoError(t, err)
}

func TestLoadDiscoveryRejectsMutuallyExclusiveModes(t *testing.T) {
	_, err := LoadDiscovery(DiscoveryFlags{
		BaseURL:     "https://gitlab.example.com",
		Token:       "tok",
		RootGroup:   "group-a",
		ProjectPath: "group-a/project-b",
	})
	assert.Error(t, err)
}

func TestLoadDiscoveryAppliesDefaultsAndTrimsTrailingSlash(t *testing.T) {
	cfg, err := LoadDiscovery(DiscoveryFlags{BaseURL: "https://gitlab.example.com/", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "https://gitlab.example.com", cfg.BaseURL)
	assert.Equal(t, 5000, cfg.MaxAPICalls)
	assert.Equal(t, 200, cfg.MaxPerProject)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.VerifySSL)
}

func TestLoadDiscoveryFlagOverridesDefault(t *testing.T) {
	cfg, err := LoadDiscovery(DiscoveryFlags{BaseURL: "https://x", Token: "tok", MaxAPICalls: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxAPICalls)
}

func TestLoadExportRequiresProjectAndRunID(t *testing.T) {
	_, err := LoadExport(ExportFlags{GitLabURL: "https://gitlab.example.com", GitLabToken: "tok"})
	assert.Error(t, err)

	_, err = LoadExport(ExportFlags{GitLabURL: "https://gitlab.example.com", GitLabToken: "tok", ProjectID: 1, RunID: "run-1"})
	assert.NoError(t, err)
}

func TestLoadApplyRequiresTokenAndPlan(t *testing.T) {
	_, err := LoadApply(ApplyFlags{})
	assert.Error(t, err)

	_, err = LoadApply(ApplyFlags{GitHubToken: "tok", PlanPath: "plan.json"})
	assert.NoError(t, err)
}
