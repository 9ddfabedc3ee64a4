package discovery

import (
	"fmt"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// ComputeReadiness fills in Readiness from gathered facts and errors:
// complexity scoring, blocker surfacing, and advisory notes.
func ComputeReadiness(p *schema.Project) schema.Readiness {
	return schema.Readiness{
		Complexity: estimateComplexity(p),
		Blockers:   identifyBlockers(p),
		Notes:      generateNotes(p),
	}
}

func estimateComplexity(p *schema.Project) schema.Complexity {
	if p.Archived {
		return schema.ComplexityLow
	}

	score := 0
	switch {
	case !p.Facts.HasCI.IsUnknown() && p.Facts.HasCI.Value():
		score += 2
	case p.Facts.HasCI.IsUnknown():
		score += 1
	}
	switch {
	case !p.Facts.HasLFS.IsUnknown() && p.Facts.HasLFS.Value():
		score += 3
	case p.Facts.HasLFS.IsUnknown():
		score += 1
	}

	total := p.Facts.MRCounts.Total
	switch {
	case total.IsUnknown():
	case total.IsCeiling():
		score += 2
	case total.Value() > 100:
		score += 2
	case total.Value() > 20:
		score += 1
	}

	issues := p.Facts.IssueCounts.Total
	switch {
	case issues.IsUnknown():
	case issues.IsCeiling():
		score += 2
	case issues.Value() > 500:
		score += 2
	case issues.Value() > 100:
		score += 1
	}

	switch {
	case score >= 5:
		return schema.ComplexityHigh
	case score >= 2:
		return schema.ComplexityMedium
	default:
		return schema.ComplexityLow
	}
}

func identifyBlockers(p *schema.Project) []string {
	blockers := []string{}

	if !p.Facts.HasCI.IsUnknown() && p.Facts.HasCI.Value() {
		blockers = append(blockers, "Has GitLab CI/CD pipeline - requires conversion to GitHub Actions")
	}
	if !p.Facts.HasLFS.IsUnknown() && p.Facts.HasLFS.Value() {
		blockers = append(blockers, "Uses Git LFS - requires LFS migration setup")
	}
	if p.Visibility == schema.VisibilityInternal {
		blockers = append(blockers, "Internal visibility not available in GitHub - must choose private or public")
	}
	for _, e := range p.Errors {
		if e.Status == 403 {
			step := e.Step
			if step == "" {
				step = "unknown step"
			}
			blockers = append(blockers, fmt.Sprintf("Permission denied for %s", step))
		}
	}
	return blockers
}

func generateNotes(p *schema.Project) []string {
	notes := []string{}

	if p.Archived {
		notes = append(notes, "Project is archived - consider keeping archived status after migration")
	}
	if p.DefaultBranch != "" && p.DefaultBranch != "main" && p.DefaultBranch != "master" {
		notes = append(notes, fmt.Sprintf("Non-standard default branch: %s", p.DefaultBranch))
	}
	if p.DefaultBranch == "master" {
		notes = append(notes, "Consider renaming default branch from 'master' to 'main'")
	}

	if open := p.Facts.MRCounts.Open; !open.IsUnknown() && !open.IsCeiling() && open.Value() > 0 {
		notes = append(notes, fmt.Sprintf("%d open merge requests - consider closing or migrating", open.Value()))
	}
	if open := p.Facts.IssueCounts.Open; !open.IsUnknown() && !open.IsCeiling() && open.Value() > 50 {
		notes = append(notes, fmt.Sprintf("%d open issues - large issue backlog to migrate", open.Value()))
	}

	return notes
}
