// Package discovery implements the rule-based planner/executor that walks
// a GitLab group tree, gathers a small fixed set of facts per project
// within strict API budgets, and produces a schema.Inventory.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Mode selects what the planner walks: a single project, one root group, or
// every group the token can see.
type Mode string

const (
	ModeSingleProject Mode = "single_project"
	ModeRootGroup     Mode = "root_group"
	ModeAllGroups     Mode = "all_groups"
)

// GroupState tracks per-group walk progress.
type GroupState struct {
	ID                int64  `json:"id"`
	FullPath          string `json:"full_path"`
	SubgroupsListed   bool   `json:"subgroups_listed"`
	ProjectsListed    bool   `json:"projects_listed"`
	ProjectIDs        []int64 `json:"project_ids"`
}

// FactStep names one of the four per-project fact-gathering calls.
type FactStep string

const (
	FactDetectCI        FactStep = "detect_ci"
	FactDetectLFS       FactStep = "detect_lfs"
	FactGetMRCounts     FactStep = "get_mr_counts"
	FactGetIssueCounts  FactStep = "get_issue_counts"
)

var factOrder = []FactStep{FactDetectCI, FactDetectLFS, FactGetMRCounts, FactGetIssueCounts}

// ProjectState tracks per-project fact-gathering progress.
type ProjectState struct {
	ID                int64          `json:"id"`
	PathWithNamespace string         `json:"path_with_namespace"`
	GroupID           int64          `json:"group_id"`
	FactsDone         map[FactStep]bool `json:"facts_done"`
	Completed         bool           `json:"completed"`
	Project           schema.Project `json:"project"`
}

func newProjectState(id int64, path string, groupID int64) *ProjectState {
	return &ProjectState{
		ID:                id,
		PathWithNamespace: path,
		GroupID:           groupID,
		FactsDone:         make(map[FactStep]bool, len(factOrder)),
		Project: schema.Project{
			ID:                id,
			PathWithNamespace: path,
			GroupID:           groupID,
			Errors:            []schema.ProjectError{},
		},
	}
}

// nextFact returns the first undone fact step in order, or "" if all are done.
func (p *ProjectState) nextFact() FactStep {
	for _, f := range factOrder {
		if !p.FactsDone[f] {
			return f
		}
	}
	return ""
}

func (p *ProjectState) allFactsDone() bool {
	return p.nextFact() == ""
}

// AgentState is the mutable record the Planner reads and the Executor
// mutates across the whole discovery run. It is checkpointable so a
// long-running walk against a large root group can resume after a crash,
// the same way internal/export's checkpoint file lets Export resume.
type AgentState struct {
	Mode           Mode    `json:"mode"`
	RootGroupPath  string  `json:"root_group_path,omitempty"`
	ProjectPath    string  `json:"project_path,omitempty"`

	HealthChecked  bool `json:"health_checked"`
	ProjectResolved bool `json:"project_resolved"`
	AllGroupsListed bool `json:"all_groups_listed"`
	RootGroupID    int64 `json:"root_group_id"`
	RootGroupResolved bool `json:"root_group_resolved"`

	Groups         map[int64]*GroupState   `json:"groups"`
	Projects       map[int64]*ProjectState `json:"projects"`
	PendingGroupIDs []int64 `json:"pending_group_ids"`

	APICalls int `json:"api_calls"`
	Errors   int `json:"errors"`

	Done bool `json:"done"`
}

func NewAgentState(mode Mode, rootGroupPath, projectPath string) *AgentState {
	return &AgentState{
		Mode:          mode,
		RootGroupPath: rootGroupPath,
		ProjectPath:   projectPath,
		Groups:        make(map[int64]*GroupState),
		Projects:      make(map[int64]*ProjectState),
	}
}

// SaveCheckpoint atomically writes state as JSON via write-temp-then-rename,
// the same durability pattern internal/export's checkpoint file uses.
func (s *AgentState) SaveCheckpoint(path string) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCheckpoint reads a previously saved AgentState. If no checkpoint
// exists at path it returns a nil state, ok=false and a nil error.
func LoadCheckpoint(path string) (state *AgentState, ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var s AgentState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func checkpointPath(outputDir string) string {
	return filepath.Join(outputDir, "discovery-checkpoint.json")
}
