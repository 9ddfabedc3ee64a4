// Package config holds the per-agent configuration structs and env-driven
// defaults for the CLI entry points: read from the environment with env(),
// let a flag override win when one is supplied, validate required fields,
// and return a descriptive error rather than panic.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// firstNonEmpty returns the first non-blank string, letting a flag value
// (passed first) win over an env-derived default.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// AIConfig is the optional LLM-augmentation block: ai_enabled plus the
// {endpoint, api_key, deployment, api_version} needed to reach it.
type AIConfig struct {
	Enabled    bool
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// AIConfigFromEnv loads the optional LLM-augmentation block directly from
// the environment, for CLIs (e.g. cmd/gl2gh-sow) that don't otherwise go
// through LoadDiscovery.
func AIConfigFromEnv() AIConfig {
	return loadAIConfig()
}

func loadAIConfig() AIConfig {
	return AIConfig{
		Enabled:    envBool("GL2GH_AI_ENABLED", false),
		Endpoint:   env("GL2GH_AI_ENDPOINT", ""),
		APIKey:     env("GL2GH_AI_API_KEY", ""),
		Deployment: env("GL2GH_AI_DEPLOYMENT", ""),
		APIVersion: env("GL2GH_AI_API_VERSION", "2024-02-15-preview"),
	}
}

// DiscoveryFlags are the per-invocation values a CLI flag can override;
// a zero value means "fall back to the environment/default".
type DiscoveryFlags struct {
	BaseURL       string
	Token         string
	RootGroup     string
	ProjectPath   string
	OutputDir     string
	MaxAPICalls   int
	MaxPerProject int
	Timeout       int
	VerifySSL     *bool
	Deep          bool
	DeepTopN      int
	Workers       int
	StatusAddr    string
	DBPath        string
}

// DiscoveryConfig is the validated configuration for cmd/gl2gh-discover.
type DiscoveryConfig struct {
	BaseURL       string
	Token         string
	RootGroup     string
	ProjectPath   string
	OutputDir     string
	MaxAPICalls   int
	MaxPerProject int
	Timeout       int
	VerifySSL     bool
	Deep          bool
	DeepTopN      int
	Workers       int
	AI            AIConfig
	StatusAddr    string
	DBPath        string
}

// LoadDiscovery merges flags over env defaults and validates the result.
// Mode selection (root_group | project_path | neither) is left to the
// caller to interpret.
func LoadDiscovery(f DiscoveryFlags) (DiscoveryConfig, error) {
	cfg := DiscoveryConfig{
		BaseURL:       strings.TrimRight(firstNonEmpty(f.BaseURL, env("GL2GH_GITLAB_URL", "")), "/"),
		Token:         firstNonEmpty(f.Token, env("GL2GH_GITLAB_TOKEN", "")),
		RootGroup:     f.RootGroup,
		ProjectPath:   f.ProjectPath,
		OutputDir:     firstNonEmpty(f.OutputDir, env("GL2GH_OUTPUT_DIR", "./output")),
		MaxAPICalls:   firstPositive(f.MaxAPICalls, envInt("GL2GH_MAX_API_CALLS", 5000)),
		MaxPerProject: firstPositive(f.MaxPerProject, envInt("GL2GH_MAX_PER_PROJECT_CALLS", 200)),
		Timeout:       firstPositive(f.Timeout, envInt("GL2GH_TIMEOUT_SECONDS", 30)),
		VerifySSL:     true,
		Deep:          f.Deep || envBool("GL2GH_DEEP", false),
		DeepTopN:      firstPositive(f.DeepTopN, envInt("GL2GH_DEEP_TOP_N", 20)),
		Workers:       firstPositive(f.Workers, envInt("GL2GH_PARALLEL_WORKERS", 4)),
		AI:            loadAIConfig(),
		StatusAddr:    firstNonEmpty(f.StatusAddr, env("GL2GH_STATUS_ADDR", "")),
		DBPath:        firstNonEmpty(f.DBPath, env("GL2GH_DB_PATH", "data/gl2gh.sqlite")),
	}
	if f.VerifySSL != nil {
		cfg.VerifySSL = *f.VerifySSL
	} else {
		cfg.VerifySSL = envBool("GL2GH_VERIFY_SSL", true)
	}

	if cfg.BaseURL == "" {
		return DiscoveryConfig{}, errors.New("missing base_url (GL2GH_GITLAB_URL or -base-url)")
	}
	if cfg.Token == "" {
		return DiscoveryConfig{}, errors.New("missing token (GL2GH_GITLAB_TOKEN or -token)")
	}
	if cfg.RootGroup != "" && cfg.ProjectPath != "" {
		return DiscoveryConfig{}, errors.New("root_group and project_path are mutually exclusive")
	}
	if cfg.MaxAPICalls <= 0 {
		return DiscoveryConfig{}, errors.New("max_api_calls must be positive")
	}
	return cfg, nil
}

// ExportFlags are the per-invocation overrides for cmd/gl2gh-export.
type ExportFlags struct {
	GitLabURL   string
	GitLabToken string
	OutputDir   string
	ProjectID   int64
	RunID       string
	DBPath      string
}

type ExportConfig struct {
	GitLabURL   string
	GitLabToken string
	OutputDir   string
	ProjectID   int64
	RunID       string
	DBPath      string
}

func LoadExport(f ExportFlags) (ExportConfig, error) {
	cfg := ExportConfig{
		GitLabURL:   strings.TrimRight(firstNonEmpty(f.GitLabURL, env("GL2GH_GITLAB_URL", "")), "/"),
		GitLabToken: firstNonEmpty(f.GitLabToken, env("GL2GH_GITLAB_TOKEN", "")),
		OutputDir:   firstNonEmpty(f.OutputDir, env("GL2GH_OUTPUT_DIR", "./output")),
		ProjectID:   f.ProjectID,
		RunID:       firstNonEmpty(f.RunID, env("GL2GH_RUN_ID", "")),
		DBPath:      firstNonEmpty(f.DBPath, env("GL2GH_DB_PATH", "data/gl2gh.sqlite")),
	}
	if cfg.GitLabURL == "" {
		return ExportConfig{}, errors.New("missing gitlab url (GL2GH_GITLAB_URL or -gitlab-url)")
	}
	if cfg.GitLabToken == "" {
		return ExportConfig{}, errors.New("missing gitlab token (GL2GH_GITLAB_TOKEN or -token)")
	}
	if cfg.ProjectID == 0 {
		return ExportConfig{}, errors.New("missing -project-id")
	}
	if cfg.RunID == "" {
		return ExportConfig{}, errors.New("missing -run-id")
	}
	return cfg, nil
}

// ApplyFlags are the per-invocation overrides for cmd/gl2gh-apply.
type ApplyFlags struct {
	GitHubToken  string
	PlanPath     string
	DryRun       bool
	AbortOnError bool
	Rollback     bool
	DBPath       string
}

type ApplyConfig struct {
	GitHubToken  string
	PlanPath     string
	DryRun       bool
	AbortOnError bool
	Rollback     bool
	DBPath       string
}

func LoadApply(f ApplyFlags) (ApplyConfig, error) {
	cfg := ApplyConfig{
		GitHubToken:  firstNonEmpty(f.GitHubToken, env("GL2GH_GITHUB_TOKEN", "")),
		PlanPath:     f.PlanPath,
		DryRun:       f.DryRun,
		AbortOnError: f.AbortOnError,
		Rollback:     f.Rollback,
		DBPath:       firstNonEmpty(f.DBPath, env("GL2GH_DB_PATH", "data/gl2gh.sqlite")),
	}
	if cfg.GitHubToken == "" {
		return ApplyConfig{}, errors.New("missing github token (GL2GH_GITHUB_TOKEN or -token)")
	}
	if cfg.PlanPath == "" {
		return ApplyConfig{}, errors.New("missing -plan (action plan JSON path)")
	}
	return cfg, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
