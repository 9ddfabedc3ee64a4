// Package apply implements the Apply Agent's action graph executor: a
// closed registry of GitHub-side write actions (repository creation, CI
// commit, issue/PR/wiki/release recreation, settings, preservation
// metadata), each with execute/simulate and an optional rollback, run
// through a shared retry-with-idempotency contract.
package apply

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/go-github/v66/github"
)

// Result captures a single action's outcome: success flag, free-form
// outputs, optional error, retry/duration bookkeeping, and simulation
// fields populated only when Simulate ran.
type Result struct {
	Success            bool            `json:"success"`
	ActionID           string          `json:"action_id"`
	ActionType         string          `json:"action_type"`
	Outputs            map[string]any  `json:"outputs"`
	Error              string          `json:"error,omitempty"`
	RetryCount         int             `json:"retry_count"`
	DurationSeconds    float64         `json:"duration_seconds"`
	Timestamp          time.Time       `json:"timestamp"`
	Simulated          bool            `json:"simulated,omitempty"`
	SimulationOutcome  string          `json:"simulation_outcome,omitempty"`
	SimulationMessage  string          `json:"simulation_message,omitempty"`
	RollbackData       json.RawMessage `json:"-"`
}

// Context is the mutable state threaded through an apply run: the
// destination GitHub token, the idempotency ledger keyed by
// IdempotencyKey, and the source-ID-to-destination-ID mapping table
// actions consult and extend as they create resources.
type Context struct {
	GitHub *github.Client

	GitHubToken     string
	ExecutedActions map[string]Result
	IDMappings      map[string]map[string]string // gitlab_type -> gitlab_id -> github_id

	DryRun bool
}

// NewContext builds an empty Context ready for a fresh apply run.
func NewContext(client *github.Client, token string, dryRun bool) *Context {
	return &Context{
		GitHub:          client,
		GitHubToken:     token,
		ExecutedActions: map[string]Result{},
		IDMappings:      map[string]map[string]string{},
		DryRun:          dryRun,
	}
}

// GetIDMapping resolves a previously recorded GitLab->GitHub ID mapping.
func (c *Context) GetIDMapping(gitlabType string, gitlabID string) (string, bool) {
	byID, ok := c.IDMappings[gitlabType]
	if !ok {
		return "", false
	}
	v, ok := byID[gitlabID]
	return v, ok
}

// SetIDMapping records a GitLab->GitHub ID mapping for later actions to
// resolve (e.g. an issue action resolving the milestone a prior action
// created).
func (c *Context) SetIDMapping(gitlabType, gitlabID, githubID string) {
	if c.IDMappings[gitlabType] == nil {
		c.IDMappings[gitlabType] = map[string]string{}
	}
	c.IDMappings[gitlabType][gitlabID] = githubID
}

// Action is the contract every action family implements.
type Action interface {
	ID() string
	Type() string
	IdempotencyKey() string
	Execute(ctx context.Context, ac *Context) (Result, error)
	Simulate(ctx context.Context, ac *Context) (Result, error)
}

// Reversible is implemented by actions whose effect can be undone; actions
// that permanently alter history (a code push, say) do not implement it.
type Reversible interface {
	Rollback(ctx context.Context, ac *Context, data json.RawMessage) error
}

// newResult is the shared constructor every action uses to stamp its
// ActionID/ActionType onto a fresh Result.
func newResult(id, actionType string, success bool, outputs map[string]any, errMsg string) Result {
	if outputs == nil {
		outputs = map[string]any{}
	}
	return Result{
		Success:    success,
		ActionID:   id,
		ActionType: actionType,
		Outputs:    outputs,
		Error:      errMsg,
	}
}

func simulationResult(id, actionType, outcome, message string, outputs map[string]any, success bool) Result {
	r := newResult(id, actionType, success, outputs, "")
	r.Simulated = true
	r.SimulationOutcome = outcome
	r.SimulationMessage = message
	return r
}
