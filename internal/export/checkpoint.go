// Package export implements the eight independent export components
// (repository, CI/CD, issues, merge requests, wiki, releases, packages,
// settings) and the per-project checkpoint store that lets an export run
// resume after interruption.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Component names, as they appear in the checkpoint's completed_components.
const (
	ComponentRepository     = "repository"
	ComponentCICD           = "ci_cd"
	ComponentIssues         = "issues"
	ComponentMergeRequests  = "merge_requests"
	ComponentWiki           = "wiki"
	ComponentReleases       = "releases"
	ComponentPackages       = "packages"
	ComponentSettings       = "settings"
)

// AllComponents is the fixed order RunProject dispatches in; order doesn't
// matter for correctness (the components are independent and may run in
// any order) but a stable order makes checkpoint output reproducible.
var AllComponents = []string{
	ComponentRepository, ComponentCICD, ComponentIssues, ComponentMergeRequests,
	ComponentWiki, ComponentReleases, ComponentPackages, ComponentSettings,
}

// Checkpoint is the JSON document at <output>/<project>/<run>/checkpoint.json.
type Checkpoint struct {
	ProjectID          int64                      `json:"project_id"`
	RunID              string                     `json:"run_id"`
	CompletedComponents []string                  `json:"completed_components"`
	LastCheckpointAt   time.Time                  `json:"last_checkpoint_at"`
	PartialState       map[string]json.RawMessage `json:"partial_state"`
}

func NewCheckpoint(projectID int64, runID string) *Checkpoint {
	return &Checkpoint{
		ProjectID:    projectID,
		RunID:        runID,
		PartialState: make(map[string]json.RawMessage),
	}
}

// IsCompleted reports whether component has already run successfully in
// this checkpoint — a resumed run skips anything already listed in
// completed_components.
func (c *Checkpoint) IsCompleted(component string) bool {
	for _, done := range c.CompletedComponents {
		if done == component {
			return true
		}
	}
	return false
}

// MarkCompleted appends component if not already present, keeping
// completed_components monotonically non-decreasing within a run.
func (c *Checkpoint) MarkCompleted(component string) {
	if c.IsCompleted(component) {
		return
	}
	c.CompletedComponents = append(c.CompletedComponents, component)
}

func (c *Checkpoint) PartialFor(component string, out any) bool {
	raw, ok := c.PartialState[component]
	if !ok || len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (c *Checkpoint) SetPartial(component string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if c.PartialState == nil {
		c.PartialState = make(map[string]json.RawMessage)
	}
	c.PartialState[component] = raw
}

func checkpointPath(outputDir string, projectID int64, runID string) string {
	return filepath.Join(outputDir, strconv.FormatInt(projectID, 10), runID, "checkpoint.json")
}

// Load reads a project/run's checkpoint, returning a fresh one (not an
// error) if none exists — a missing checkpoint means "start fresh"
// (deleting the checkpoint file forces a fresh run).
func Load(outputDir string, projectID int64, runID string) (*Checkpoint, error) {
	raw, err := os.ReadFile(checkpointPath(outputDir, projectID, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return NewCheckpoint(projectID, runID), nil
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return NewCheckpoint(projectID, runID), nil
	}
	if cp.PartialState == nil {
		cp.PartialState = make(map[string]json.RawMessage)
	}
	return &cp, nil
}

// Save atomically persists the checkpoint via write-temp-then-rename.
// Each (project, run) has exactly one writer.
func (c *Checkpoint) Save(outputDir string) error {
	c.LastCheckpointAt = time.Now().UTC()
	path := checkpointPath(outputDir, c.ProjectID, c.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
