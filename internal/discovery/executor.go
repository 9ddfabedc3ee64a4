package discovery

import (
	"context"
	"fmt"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Executor dispatches one Action against the GitLab source, mutating
// AgentState/GroupState/ProjectState and recording per-project errors keyed
// by step + status.
type Executor struct {
	src *source
}

func NewExecutor(src *source) *Executor { return &Executor{src: src} }

func (e *Executor) Dispatch(ctx context.Context, s *AgentState, a Action) error {
	switch a.Type {
	case ActionHealthCheck:
		if err := e.src.healthCheck(ctx); err != nil {
			return err
		}
		s.HealthChecked = true
		return nil

	case ActionResolveProject:
		proj, err := e.src.resolveProject(ctx, s.ProjectPath)
		if err != nil {
			return err
		}
		s.Projects[proj.ID] = newProjectState(proj.ID, proj.PathWithNamespace, 0)
		applyProjectFields(&s.Projects[proj.ID].Project, proj)
		s.ProjectResolved = true
		return nil

	case ActionListAllGroups:
		groups, err := e.src.listAllGroups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			e.registerGroup(s, g)
		}
		s.AllGroupsListed = true
		return nil

	case ActionResolveGroup:
		id, err := e.src.resolveGroup(ctx, s.RootGroupPath)
		if err != nil {
			return err
		}
		s.RootGroupID = id
		e.registerGroup(s, gitlabGroup{ID: id, FullPath: s.RootGroupPath})
		s.RootGroupResolved = true
		return nil

	case ActionListSubgroups:
		g := s.Groups[a.GroupID]
		if g == nil {
			return fmt.Errorf("list_subgroups: unknown group %d", a.GroupID)
		}
		subs, err := e.src.listSubgroups(ctx, a.GroupID)
		if err != nil {
			g.SubgroupsListed = true
			return err
		}
		for _, sg := range subs {
			e.registerGroup(s, sg)
		}
		g.SubgroupsListed = true
		return nil

	case ActionListProjects:
		g := s.Groups[a.GroupID]
		if g == nil {
			return fmt.Errorf("list_projects: unknown group %d", a.GroupID)
		}
		projects, err := e.src.listProjects(ctx, a.GroupID)
		if err != nil {
			g.ProjectsListed = true
			return err
		}
		for _, p := range projects {
			ps := newProjectState(p.ID, p.PathWithNamespace, a.GroupID)
			applyProjectFields(&ps.Project, &p)
			s.Projects[p.ID] = ps
			g.ProjectIDs = append(g.ProjectIDs, p.ID)
		}
		g.ProjectsListed = true
		return nil

	case ActionGatherFact:
		return e.gatherFact(ctx, s, a.ProjectID, a.Fact)

	case ActionCompleteProject:
		if p := s.Projects[a.ProjectID]; p != nil {
			p.Completed = true
		}
		return nil

	case ActionDone:
		s.Done = true
		return nil

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (e *Executor) registerGroup(s *AgentState, g gitlabGroup) {
	if _, ok := s.Groups[g.ID]; ok {
		return
	}
	s.Groups[g.ID] = &GroupState{ID: g.ID, FullPath: g.FullPath}
	s.PendingGroupIDs = append(s.PendingGroupIDs, g.ID)
}

func applyProjectFields(dst *schema.Project, src *gitlabProject) {
	dst.DefaultBranch = src.DefaultBranch
	dst.Archived = src.Archived
	dst.Visibility = schema.Visibility(src.Visibility)
}

// gatherFact dispatches one of the four per-project fact calls and records
// the outcome on ProjectState.Project.Facts, or a ProjectError keyed by
// step+status on failure — per-project errors never abort the whole run.
func (e *Executor) gatherFact(ctx context.Context, s *AgentState, projectID int64, fact FactStep) error {
	p := s.Projects[projectID]
	if p == nil {
		return fmt.Errorf("gather_fact: unknown project %d", projectID)
	}
	p.FactsDone[fact] = true

	switch fact {
	case FactDetectCI:
		v, err := e.src.detectCI(ctx, projectID)
		if err != nil {
			recordProjectError(p, "detect_ci", err)
			p.Project.Facts.HasCI = schema.Unknown()
			return nil
		}
		p.Project.Facts.HasCI = triBoolFrom(v)

	case FactDetectLFS:
		v, err := e.src.detectLFS(ctx, projectID)
		if err != nil {
			recordProjectError(p, "detect_lfs", err)
			p.Project.Facts.HasLFS = schema.Unknown()
			return nil
		}
		p.Project.Facts.HasLFS = triBoolFrom(v)

	case FactGetMRCounts:
		counts, err := e.src.mrCounts(ctx, projectID)
		if err != nil {
			recordProjectError(p, "get_mr_counts", err)
			p.Project.Facts.MRCounts = unknownMRCounts()
			return nil
		}
		p.Project.Facts.MRCounts = schema.MRCounts{
			Open:   countFrom(counts.Open, counts.OpenCeiling),
			Closed: countFrom(counts.Closed, counts.ClosedCeiling),
			Merged: countFrom(counts.Merged, counts.MergedCeiling),
			Total:  schema.ExactCount(counts.Open + counts.Closed + counts.Merged),
		}

	case FactGetIssueCounts:
		counts, err := e.src.issueCounts(ctx, projectID)
		if err != nil {
			recordProjectError(p, "get_issue_counts", err)
			p.Project.Facts.IssueCounts = unknownIssueCounts()
			return nil
		}
		p.Project.Facts.IssueCounts = schema.IssueCounts{
			Open:   countFrom(counts.Open, counts.OpenCeiling),
			Closed: countFrom(counts.Closed, counts.ClosedCeiling),
			Total:  schema.ExactCount(counts.Open + counts.Closed),
		}
	}
	return nil
}

func triBoolFrom(v string) schema.TriBool {
	switch v {
	case "true":
		return schema.Known(true)
	case "false":
		return schema.Known(false)
	default:
		return schema.Unknown()
	}
}

func countFrom(n int, ceiling bool) schema.Count {
	if ceiling {
		return schema.CeilingCount(n)
	}
	return schema.ExactCount(n)
}

func unknownMRCounts() schema.MRCounts {
	return schema.MRCounts{Open: schema.UnknownCount(), Closed: schema.UnknownCount(), Merged: schema.UnknownCount(), Total: schema.UnknownCount()}
}

func unknownIssueCounts() schema.IssueCounts {
	return schema.IssueCounts{Open: schema.UnknownCount(), Closed: schema.UnknownCount(), Total: schema.UnknownCount()}
}

func recordProjectError(p *ProjectState, step string, err error) {
	status := 0
	if fe, ok := errAsForge(err); ok {
		status = fe.Status
	}
	p.Project.Errors = append(p.Project.Errors, schema.ProjectError{
		Step:    step,
		Status:  status,
		Message: err.Error(),
	})
}
