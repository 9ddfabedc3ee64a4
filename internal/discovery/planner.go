package discovery

import "sort"

// ActionType names one step the Executor knows how to dispatch.
type ActionType string

const (
	ActionHealthCheck     ActionType = "health_check"
	ActionResolveProject  ActionType = "resolve_project"
	ActionListAllGroups   ActionType = "list_all_groups"
	ActionResolveGroup    ActionType = "resolve_group"
	ActionListSubgroups   ActionType = "list_subgroups"
	ActionListProjects    ActionType = "list_projects"
	ActionGatherFact      ActionType = "gather_fact"
	ActionCompleteProject ActionType = "complete_project"
	ActionDone            ActionType = "done"
)

// Action is the unit the Planner hands to the Executor. Fields beyond Type
// are only meaningful for the action types that need them.
type Action struct {
	Type      ActionType
	GroupID   int64
	ProjectID int64
	Fact      FactStep
}

// Planner produces the next Action from AgentState. Next is a pure function
// — it never mutates state — mirroring the seven-rule priority chain: a
// direct if/else ladder rather than a generic rules engine, since the chain
// is short, fixed, and reads better as plain control flow.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

func (p *Planner) Next(s *AgentState) Action {
	if !s.HealthChecked {
		return Action{Type: ActionHealthCheck}
	}

	if s.Mode == ModeSingleProject && !s.ProjectResolved {
		return Action{Type: ActionResolveProject}
	}

	if s.Mode == ModeAllGroups && !s.AllGroupsListed {
		return Action{Type: ActionListAllGroups}
	}

	if s.Mode == ModeRootGroup && !s.RootGroupResolved {
		return Action{Type: ActionResolveGroup}
	}

	for _, gid := range s.PendingGroupIDs {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		if !g.SubgroupsListed {
			return Action{Type: ActionListSubgroups, GroupID: gid}
		}
		if !g.ProjectsListed {
			return Action{Type: ActionListProjects, GroupID: gid}
		}
	}

	for _, proj := range orderedProjects(s) {
		if proj.Completed {
			continue
		}
		if next := proj.nextFact(); next != "" {
			return Action{Type: ActionGatherFact, ProjectID: proj.ID, Fact: next}
		}
		return Action{Type: ActionCompleteProject, ProjectID: proj.ID}
	}

	return Action{Type: ActionDone}
}

// orderedProjects returns projects in a stable order (ascending ID) so the
// planner's choice of "next pending project" is deterministic across runs
// and checkpoint resumes.
func orderedProjects(s *AgentState) []*ProjectState {
	ids := make([]int64, 0, len(s.Projects))
	for id := range s.Projects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*ProjectState, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Projects[id])
	}
	return out
}
