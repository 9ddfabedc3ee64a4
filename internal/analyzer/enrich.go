package analyzer

import (
	"context"
	"strconv"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// enrichOne gathers the full enrichment profile for a single project
// (repo_profile, ci_profile, enrichment) and computes its estimate. It
// returns a
// copy of p with Facts/Estimate filled in; the caller (pool.go) swaps it
// into the shared inventory slice under its own lock — enrichOne itself
// touches no shared state besides the *forgeclient.Client it's handed,
// which is already safe for concurrent use (see forgeclient.Client's own
// doc comment).
func enrichOne(ctx context.Context, client *forgeclient.Client, llm *LLMClient, p *schema.Project) (*schema.Project, error) {
	out := *p
	src := &deepSource{c: client}

	repo := schema.RepoProfile{}
	if n, ceiling, err := src.branchesCount(ctx, p.ID); err == nil {
		repo.BranchesCount = countFrom(n, ceiling)
	} else {
		repo.BranchesCount = schema.UnknownCount()
	}
	if n, ceiling, err := src.tagsCount(ctx, p.ID); err == nil {
		repo.TagsCount = countFrom(n, ceiling)
	} else {
		repo.TagsCount = schema.UnknownCount()
	}

	gitmodules, hasGitmodules, gmErr := src.gitmodules(ctx, p.ID)
	if gmErr != nil {
		repo.HasSubmodules = schema.Unknown()
	} else {
		repo.HasSubmodules = schema.Known(hasGitmodules && strings.Contains(gitmodules, "[submodule"))
	}

	attrs, hasAttrs, attrErr := src.gitattributes(ctx, p.ID)
	switch {
	case attrErr != nil:
		repo.HasLFS = schema.Unknown()
	case !hasAttrs:
		repo.HasLFS = out.Facts.HasLFS
	case strings.Contains(attrs, "filter=lfs"):
		repo.HasLFS = schema.Known(true)
	default:
		repo.HasLFS = schema.Known(false)
	}
	out.Facts.RepoProfile = &repo

	ciProfile := schema.CIProfile{}
	if content, present, err := src.ciContent(ctx, p.ID); err == nil && present {
		ciProfile = ParseCI(content)
	}
	out.Facts.CIProfile = &ciProfile

	enrichment := schema.EnrichmentProfile{}
	enrichment.Permissions.CanReadRepo = true

	if n, err := src.protectedBranchesCount(ctx, p.ID); err == nil {
		enrichment.Integrations.ProtectedBranchesCount = n
		enrichment.Permissions.CanReadProtectedBranches = true
	}
	if has, err := src.hasCodeowners(ctx, p.ID); err == nil {
		enrichment.Integrations.HasCodeowners = has
	}
	if n, err := src.projectVariablesCount(ctx, p.ID); err == nil {
		enrichment.Integrations.ProjectVariablesCount = n
		enrichment.Permissions.CanReadVariables = true
	}
	if n, err := src.groupVariablesCount(ctx, p.GroupID); err == nil {
		enrichment.Integrations.GroupVariablesCount = n
	}
	if n, err := src.webhooksCount(ctx, p.ID); err == nil {
		enrichment.Integrations.WebhooksCount = n
		enrichment.Permissions.CanReadWebhooks = true
	}
	if n, err := src.releasesCount(ctx, p.ID); err == nil {
		enrichment.Integrations.ReleasesCount = n
	}
	if !repo.TagsCount.IsUnknown() {
		enrichment.Integrations.TagsCount = repo.TagsCount.Value()
	}
	if feats, err := src.projectFeatures(ctx, p.ID); err == nil {
		enrichment.Integrations.RegistryEnabled = feats.RegistryEnabled
		enrichment.Integrations.PackagesEnabled = feats.PackagesEnabled
		enrichment.Integrations.WikiEnabled = feats.WikiEnabled
		enrichment.Integrations.PagesEnabled = feats.PagesAccess != "" && feats.PagesAccess != "disabled"
	}
	if dockerfile, compose, err := src.containerHints(ctx, p.ID); err == nil {
		enrichment.Integrations.HasDockerfile = dockerfile
		enrichment.Integrations.HasCompose = compose
	}
	if hasK8s, err := src.hasK8sManifests(ctx, p.ID); err == nil {
		enrichment.Integrations.HasK8sManifests = hasK8s
	}

	enrichment.RiskFlags = computeRiskFlags(&out, ciProfile, enrichment)
	out.Facts.Enrichment = &enrichment

	estimate := Estimate(&out)
	if llm != nil {
		if resp, err := llm.Analyze(ctx, buildAnalysisPrompt(&out)); err == nil {
			estimate = applyLLMResult(estimate, resp)
		}
	}
	out.Estimate = estimate

	return &out, nil
}

// computeRiskFlags derives the risk_flags set: complex_ci,
// self_hosted_runner_hints, big_mr_backlog, big_issue_backlog,
// exceeded_limits, missing_default_branch.
func computeRiskFlags(p *schema.Project, ci schema.CIProfile, e schema.EnrichmentProfile) schema.RiskFlags {
	ciScore, _ := ScoreCI(ci)
	flags := schema.RiskFlags{
		ComplexCI:             ciScore >= 30,
		SelfHostedRunnerHints: ci.RunnerHints.UsesTags || ci.RunnerHints.PossibleSelfHosted,
		MissingDefaultBranch:  p.DefaultBranch == "",
	}
	if total := p.Facts.MRCounts.Total; !total.IsUnknown() && (total.IsCeiling() || total.Value() > 100) {
		flags.BigMRBacklog = true
	}
	if total := p.Facts.IssueCounts.Total; !total.IsUnknown() && (total.IsCeiling() || total.Value() > 500) {
		flags.BigIssueBacklog = true
	}
	if p.Facts.MRCounts.Total.IsCeiling() || p.Facts.IssueCounts.Total.IsCeiling() ||
		(p.Facts.RepoProfile != nil && (p.Facts.RepoProfile.BranchesCount.IsCeiling() || p.Facts.RepoProfile.TagsCount.IsCeiling())) {
		flags.ExceededLimits = true
	}
	return flags
}

// buildAnalysisPrompt renders the project's gathered facts into the prompt
// text fed to LLMClient.Analyze, as distinct sections (project overview /
// repository / MRs / issues / integrations / CI content).
func buildAnalysisPrompt(p *schema.Project) string {
	var b strings.Builder
	b.WriteString("## PROJECT OVERVIEW\n")
	b.WriteString("Name: " + p.PathWithNamespace + "\n")
	b.WriteString("Archived: " + boolStr(p.Archived) + "\n")
	b.WriteString("Default Branch: " + strOrDefault(p.DefaultBranch, "unknown") + "\n")

	b.WriteString("\n## REPOSITORY\n")
	if rp := p.Facts.RepoProfile; rp != nil {
		b.WriteString("- Branches: " + countStr(rp.BranchesCount) + "\n")
		b.WriteString("- Tags: " + countStr(rp.TagsCount) + "\n")
		b.WriteString("- Has Submodules: " + triStr(rp.HasSubmodules) + "\n")
	}
	b.WriteString("- Has LFS: " + triStr(p.Facts.HasLFS) + "\n")

	b.WriteString("\n## MERGE REQUESTS\n")
	b.WriteString("- Open: " + countStr(p.Facts.MRCounts.Open) + "\n")
	b.WriteString("- Merged: " + countStr(p.Facts.MRCounts.Merged) + "\n")
	b.WriteString("- Closed: " + countStr(p.Facts.MRCounts.Closed) + "\n")

	b.WriteString("\n## ISSUES\n")
	b.WriteString("- Open: " + countStr(p.Facts.IssueCounts.Open) + "\n")
	b.WriteString("- Closed: " + countStr(p.Facts.IssueCounts.Closed) + "\n")

	if e := p.Facts.Enrichment; e != nil {
		b.WriteString("\n## INTEGRATIONS\n")
		b.WriteString("- Container Registry: " + boolStr(e.Integrations.RegistryEnabled) + "\n")
		b.WriteString("- Protected Branches: " + strconv.Itoa(e.Integrations.ProtectedBranchesCount) + "\n")
		b.WriteString("- Releases: " + strconv.Itoa(e.Integrations.ReleasesCount) + "\n")
	}

	b.WriteString("\n## CI/CD PIPELINE\n")
	if ci := p.Facts.CIProfile; ci != nil && ci.Present {
		b.WriteString("- Jobs: " + strconv.Itoa(ci.JobCount) + "\n")
	} else {
		b.WriteString("- No CI/CD pipeline detected\n")
	}

	b.WriteString("\n## TASK\nProvide a detailed breakdown of migration hours for each component. Be realistic.\n")
	return b.String()
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func triStr(t schema.TriBool) string {
	if t.IsUnknown() {
		return "unknown"
	}
	return boolStr(t.Value())
}

func countStr(c schema.Count) string {
	if c.IsUnknown() {
		return "unknown"
	}
	if c.IsCeiling() {
		return ">" + strconv.Itoa(c.Value())
	}
	return strconv.Itoa(c.Value())
}

func strOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func countFrom(n int, ceiling bool) schema.Count {
	if ceiling {
		return schema.CeilingCount(n)
	}
	return schema.ExactCount(n)
}
