package export

import (
	"context"
	"encoding/json"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Result is one component's export outcome, folded into the run-level
// checkpoint and artifact tree by the orchestrator. Partial is saved back
// into the checkpoint's partial_state under the component's name whether or
// not Export returned an error, so a resumed run can skip re-fetching
// sub-resources the component had already counted.
type Result struct {
	Status  string          `json:"status"`
	Summary map[string]any  `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
	Partial json.RawMessage `json:"-"`
}

// Component is the contract every export subcomponent implements: each
// exposes Export(project_id, project_metadata) -> {status,
// subcomponent_results}. partial is whatever this component last saved to
// partial_state, nil on a fresh run.
type Component interface {
	Name() string
	Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, partial json.RawMessage) (Result, error)
}
