package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Config configures one discovery run.
type Config struct {
	BaseURL       string
	Token         string
	Mode          Mode
	RootGroupPath string
	ProjectPath   string
	MaxAPICalls   int
	OutputDir     string
	Resume        bool

	// Monitor, when non-nil, is updated with a snapshot of *AgentState
	// after every planner/executor iteration, for a status endpoint to
	// read from a different goroutine than the one driving Run (see
	// internal/statusapi). Reading AgentState's exported fields directly
	// from another goroutine while Run mutates them is a data race;
	// Monitor.Update copies out just the counters a status page needs.
	Monitor *StateMonitor
}

// Run drives the planner/executor loop to completion or budget exhaustion,
// computes readiness for every project, validates the assembled inventory,
// and returns it.
func Run(ctx context.Context, cfg Config) (*schema.Inventory, error) {
	startedAt := time.Now()

	budget := forgeclient.NewBudget(cfg.MaxAPICalls)
	client := forgeclient.NewGitLabClient(cfg.BaseURL, cfg.Token, budget)
	src := &source{c: client}
	planner := NewPlanner()
	executor := NewExecutor(src)

	var state *AgentState
	if cfg.Resume {
		if loaded, ok, err := LoadCheckpoint(checkpointPath(cfg.OutputDir)); err != nil {
			return nil, err
		} else if ok {
			state = loaded
		}
	}
	if state == nil {
		state = NewAgentState(cfg.Mode, cfg.RootGroupPath, cfg.ProjectPath)
	}

	ceiling := 2 * cfg.MaxAPICalls
	iterations := 0

	for !state.Done {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if budget.Exceeded() {
			break
		}
		iterations++
		if iterations > ceiling {
			break
		}

		action := planner.Next(state)
		if action.Type == ActionDone {
			state.Done = true
			break
		}
		if err := executor.Dispatch(ctx, state, action); err != nil {
			if fe, ok := errAsForge(err); ok && fe.Kind == forgeclient.KindRateLimited && budget.Exceeded() {
				break
			}
			state.Errors++
		}

		if cfg.OutputDir != "" {
			_ = state.SaveCheckpoint(checkpointPath(cfg.OutputDir))
		}
		if cfg.Monitor != nil {
			cfg.Monitor.Update(state, budget)
		}
	}

	inv := assembleInventory(state, startedAt, cfg.BaseURL, cfg.RootGroupPath, client.Stats())
	if err := schema.Validate(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func assembleInventory(state *AgentState, startedAt time.Time, baseURL, rootGroup string, stats *forgeclient.Stats) *schema.Inventory {
	groupIDs := make([]int64, 0, len(state.Groups))
	for id := range state.Groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Slice(groupIDs, func(i, j int) bool {
		return state.Groups[groupIDs[i]].FullPath < state.Groups[groupIDs[j]].FullPath
	})

	groups := make([]schema.Group, 0, len(groupIDs))
	for _, id := range groupIDs {
		g := state.Groups[id]
		projIDs := make([]int64, len(g.ProjectIDs))
		copy(projIDs, g.ProjectIDs)
		sort.Slice(projIDs, func(i, j int) bool { return projIDs[i] < projIDs[j] })
		groups = append(groups, schema.Group{ID: g.ID, FullPath: g.FullPath, Projects: projIDs})
	}

	projIDs := make([]int64, 0, len(state.Projects))
	for id := range state.Projects {
		projIDs = append(projIDs, id)
	}
	sort.Slice(projIDs, func(i, j int) bool { return projIDs[i] < projIDs[j] })

	errCount := state.Errors
	projects := make([]schema.Project, 0, len(projIDs))
	for _, id := range projIDs {
		p := state.Projects[id]
		p.Project.Readiness = ComputeReadiness(&p.Project)
		errCount += len(p.Project.Errors)
		projects = append(projects, p.Project)
	}

	return &schema.Inventory{
		Run: schema.Run{
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
			BaseURL:    forgeclient.RedactURL(baseURL),
			RootGroup:  rootGroup,
			Stats: schema.RunStats{
				Groups:   len(groups),
				Projects: len(projects),
				Errors:   errCount,
				APICalls: stats.Snapshot().TotalCalls,
			},
		},
		Groups:   groups,
		Projects: projects,
	}
}
