// Package schema defines the inventory document produced by discovery and
// validated against the Draft-07 JSON Schema embedded in this package.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriBool encodes a fact that is either known (true/false) or "unknown"
// because a forge call failed or was never attempted.
type TriBool struct {
	known bool
	value bool
}

func Known(v bool) TriBool { return TriBool{known: true, value: v} }
func Unknown() TriBool     { return TriBool{known: false} }

func (t TriBool) IsUnknown() bool { return !t.known }
func (t TriBool) Value() bool     { return t.known && t.value }

func (t TriBool) MarshalJSON() ([]byte, error) {
	if !t.known {
		return json.Marshal("unknown")
	}
	return json.Marshal(t.value)
}

func (t *TriBool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "unknown" {
			return fmt.Errorf("schema: invalid TriBool string %q", s)
		}
		*t = Unknown()
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("schema: TriBool must be bool or \"unknown\": %w", err)
	}
	*t = Known(v)
	return nil
}

// Count encodes an integer count that may be "unknown" (never gathered) or
// a truncated ">N" ceiling reached under light-mode enumeration limits.
type Count struct {
	known     bool
	ceiling   bool
	exactOrCeil int
}

func UnknownCount() Count      { return Count{known: false} }
func ExactCount(n int) Count   { return Count{known: true, exactOrCeil: n} }
func CeilingCount(n int) Count { return Count{known: true, ceiling: true, exactOrCeil: n} }

func (c Count) IsUnknown() bool  { return !c.known }
func (c Count) IsCeiling() bool  { return c.known && c.ceiling }
func (c Count) Value() int       { return c.exactOrCeil }

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.known {
		return json.Marshal("unknown")
	}
	if c.ceiling {
		return json.Marshal(fmt.Sprintf(">%d", c.exactOrCeil))
	}
	return json.Marshal(c.exactOrCeil)
}

func (c *Count) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "unknown" {
			*c = UnknownCount()
			return nil
		}
		if strings.HasPrefix(s, ">") {
			n, err := strconv.Atoi(strings.TrimPrefix(s, ">"))
			if err != nil {
				return fmt.Errorf("schema: invalid Count ceiling %q: %w", s, err)
			}
			*c = CeilingCount(n)
			return nil
		}
		return fmt.Errorf("schema: invalid Count string %q", s)
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("schema: Count must be int, \">N\", or \"unknown\": %w", err)
	}
	*c = ExactCount(n)
	return nil
}

type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
	VisibilityPublic   Visibility = "public"
)

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type RunStats struct {
	Groups   int `json:"groups"`
	Projects int `json:"projects"`
	Errors   int `json:"errors"`
	APICalls int `json:"api_calls"`
}

type Run struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	BaseURL    string    `json:"base_url"`
	RootGroup  string    `json:"root_group,omitempty"`
	Stats      RunStats  `json:"stats"`
}

type Group struct {
	ID       int64   `json:"id"`
	FullPath string  `json:"full_path"`
	Projects []int64 `json:"projects"`
}

type MRCounts struct {
	Open     Count `json:"open"`
	Closed   Count `json:"closed"`
	Merged   Count `json:"merged"`
	Total    Count `json:"total"`
}

type IssueCounts struct {
	Open   Count `json:"open"`
	Closed Count `json:"closed"`
	Total  Count `json:"total"`
}

type Facts struct {
	HasCI       TriBool     `json:"has_ci"`
	HasLFS      TriBool     `json:"has_lfs"`
	MRCounts    MRCounts    `json:"mr_counts"`
	IssueCounts IssueCounts `json:"issue_counts"`

	RepoProfile *RepoProfile       `json:"repo_profile,omitempty"`
	CIProfile   *CIProfile         `json:"ci_profile,omitempty"`
	Enrichment  *EnrichmentProfile `json:"enrichment,omitempty"`
}

type RepoProfile struct {
	BranchesCount  Count `json:"branches_count"`
	TagsCount      Count `json:"tags_count"`
	HasSubmodules  TriBool `json:"has_submodules"`
	HasLFS         TriBool `json:"has_lfs"`
}

type CIFeatures struct {
	Include      bool `json:"include"`
	Services     bool `json:"services"`
	Artifacts    bool `json:"artifacts"`
	Cache        bool `json:"cache"`
	Rules        bool `json:"rules"`
	Needs        bool `json:"needs"`
	Parallel     bool `json:"parallel"`
	Trigger      bool `json:"trigger"`
	Environments bool `json:"environments"`
	ManualJobs   bool `json:"manual_jobs"`
	Variables    bool `json:"variables"`
	Extends      bool `json:"extends"`
	Matrix       bool `json:"matrix"`
}

type RunnerHints struct {
	UsesTags           bool `json:"uses_tags"`
	PossibleSelfHosted bool `json:"possible_self_hosted"`
	DockerInDocker     bool `json:"docker_in_docker"`
	Privileged         bool `json:"privileged"`
}

type CIProfile struct {
	Present      bool        `json:"present"`
	Features     CIFeatures  `json:"features"`
	RunnerHints  RunnerHints `json:"runner_hints"`
	JobCount     int         `json:"job_count"`
	StageCount   int         `json:"stage_count"`
	IncludeCount int         `json:"include_count"`
}

type PermissionsProfile struct {
	CanReadRepo             bool `json:"can_read_repo"`
	CanReadCI               bool `json:"can_read_ci"`
	CanReadProtectedBranches bool `json:"can_read_protected_branches"`
	CanReadVariables        bool `json:"can_read_variables"`
	CanReadWebhooks         bool `json:"can_read_webhooks"`
}

type IntegrationsProfile struct {
	ProtectedBranchesCount int  `json:"protected_branches_count"`
	HasCodeowners          bool `json:"has_codeowners"`
	ProjectVariablesCount  int  `json:"project_variables_count"`
	GroupVariablesCount    int  `json:"group_variables_count"`
	WebhooksCount          int  `json:"webhooks_count"`
	RegistryEnabled        bool `json:"registry_enabled"`
	PackagesEnabled        bool `json:"packages_enabled"`
	WikiEnabled            bool `json:"wiki_enabled"`
	PagesEnabled           bool `json:"pages_enabled"`
	ReleasesCount          int  `json:"releases_count"`
	TagsCount              int  `json:"tags_count"`
	HasDockerfile          bool `json:"has_dockerfile"`
	HasCompose             bool `json:"has_compose"`
	HasK8sManifests        bool `json:"has_k8s_manifests"`
}

type RiskFlags struct {
	ComplexCI              bool `json:"complex_ci"`
	SelfHostedRunnerHints  bool `json:"self_hosted_runner_hints"`
	BigMRBacklog           bool `json:"big_mr_backlog"`
	BigIssueBacklog        bool `json:"big_issue_backlog"`
	ExceededLimits         bool `json:"exceeded_limits"`
	MissingDefaultBranch   bool `json:"missing_default_branch"`
}

type EnrichmentProfile struct {
	Permissions  PermissionsProfile  `json:"permissions"`
	Integrations IntegrationsProfile `json:"integrations"`
	RiskFlags    RiskFlags           `json:"risk_flags"`
}

type Readiness struct {
	Complexity Complexity `json:"complexity"`
	Blockers   []string   `json:"blockers"`
	Notes      []string   `json:"notes"`
}

type HourBand struct {
	HoursLow  float64 `json:"hours_low"`
	HoursHigh float64 `json:"hours_high"`
	Notes     string  `json:"notes,omitempty"`
}

type Breakdown struct {
	Code   HourBand `json:"code"`
	MRs    HourBand `json:"mrs"`
	Issues HourBand `json:"issues"`
	CI     HourBand `json:"ci"`
}

type Estimate struct {
	HoursLow      float64    `json:"hours_low"`
	HoursHigh     float64    `json:"hours_high"`
	Confidence    Confidence `json:"confidence"`
	Drivers       []string   `json:"drivers"`
	Blockers      []string   `json:"blockers"`
	Unknowns      []string   `json:"unknowns"`
	ScopeFlags    []string   `json:"scope_flags,omitempty"`
	WorkScore     int        `json:"work_score"`
	Bucket        string     `json:"bucket"`
	Breakdown     *Breakdown `json:"breakdown,omitempty"`
	CriticalNotes []string   `json:"critical_notes,omitempty"`
}

type Project struct {
	ID                int64      `json:"id"`
	PathWithNamespace string     `json:"path_with_namespace"`
	DefaultBranch     string     `json:"default_branch,omitempty"`
	Archived          bool       `json:"archived"`
	Visibility        Visibility `json:"visibility"`
	Facts             Facts      `json:"facts"`
	Readiness         Readiness  `json:"readiness"`
	Errors            []ProjectError `json:"errors"`
	Estimate          *Estimate  `json:"estimate,omitempty"`

	GroupID int64 `json:"-"`
}

type ProjectError struct {
	Step    string `json:"step"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

type Inventory struct {
	Run      Run       `json:"run"`
	Groups   []Group   `json:"groups"`
	Projects []Project `json:"projects"`
}
