package analyzer

import (
	"math"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// ComputeWorkScore folds the CI complexity score together with backlog and
// integration signals into a single work_score∈[0,100], extending the CI
// parser's weighted-additive style to the repo/backlog/integration
// dimensions the CI parser doesn't see.
func ComputeWorkScore(p *schema.Project) (score int, ciScore int, ciFactors []string) {
	if p.Facts.CIProfile != nil {
		ciScore, ciFactors = ScoreCI(*p.Facts.CIProfile)
	}
	score = ciScore // 0-50

	if total := p.Facts.MRCounts.Total; !total.IsUnknown() {
		switch {
		case total.IsCeiling() || total.Value() > 100:
			score += 15
		case total.Value() > 20:
			score += 8
		}
	}
	if total := p.Facts.IssueCounts.Total; !total.IsUnknown() {
		switch {
		case total.IsCeiling() || total.Value() > 500:
			score += 15
		case total.Value() > 100:
			score += 8
		}
	}

	if e := p.Facts.Enrichment; e != nil {
		if e.Integrations.ProtectedBranchesCount > 1 {
			score += 5
		}
		if e.RiskFlags.SelfHostedRunnerHints {
			score += 5
		}
		if p.Facts.RepoProfile != nil && !p.Facts.RepoProfile.HasSubmodules.IsUnknown() && p.Facts.RepoProfile.HasSubmodules.Value() {
			score += 5
		}
		if !p.Facts.HasLFS.IsUnknown() && p.Facts.HasLFS.Value() {
			score += 5
		}
	}

	if score > 100 {
		score = 100
	}
	return score, ciScore, ciFactors
}

// Bucket maps a work_score onto a coarse S/M/L/XL sizing at thresholds
// 20/45/70.
func Bucket(workScore int) string {
	switch {
	case workScore < 20:
		return "S"
	case workScore < 45:
		return "M"
	case workScore < 70:
		return "L"
	default:
		return "XL"
	}
}

// Estimate computes the rule-based Estimate for a project, used both as
// the baseline and as the fallback when LLM augmentation is unavailable or
// fails. Generalizes a per-pipeline job-count banding scheme to work
// project-wide over the work_score.
func Estimate(p *schema.Project) *schema.Estimate {
	workScore, _, ciFactors := ComputeWorkScore(p)

	low, high := baseBand(workScore)

	var drivers []string
	drivers = append(drivers, ciFactors...)

	if p.Facts.RepoProfile != nil && !p.Facts.RepoProfile.HasSubmodules.IsUnknown() && p.Facts.RepoProfile.HasSubmodules.Value() {
		low += 1
		high += 2
		drivers = append(drivers, "Uses git submodules")
	}
	if !p.Facts.HasLFS.IsUnknown() && p.Facts.HasLFS.Value() {
		low += 1
		high += 3
		drivers = append(drivers, "Uses Git LFS")
	}
	if p.Facts.Enrichment != nil && p.Facts.Enrichment.RiskFlags.SelfHostedRunnerHints {
		low += 2
		high += 4
		drivers = append(drivers, "Self-hosted runner hints")
	}
	if p.Facts.Enrichment != nil && p.Facts.Enrichment.Integrations.ProtectedBranchesCount > 1 {
		low += 1
		high += 2
		drivers = append(drivers, "Multiple protected branches")
	}
	bigMR := !p.Facts.MRCounts.Total.IsUnknown() && (p.Facts.MRCounts.Total.IsCeiling() || p.Facts.MRCounts.Total.Value() > 100)
	if bigMR {
		low += 2
		high += 4
		drivers = append(drivers, "Large merge request backlog")
	}
	bigIssues := !p.Facts.IssueCounts.Total.IsUnknown() && (p.Facts.IssueCounts.Total.IsCeiling() || p.Facts.IssueCounts.Total.Value() > 500)
	if bigIssues {
		low += 2
		high += 4
		drivers = append(drivers, "Large issue backlog")
	}

	if p.Archived {
		low *= 0.4
		high *= 0.4
		if low < 0.5 {
			low = 0.5
		}
		if high < 0.5 {
			high = 0.5
		}
	}

	if high > low*2 {
		high = low * 2
	}
	low = round1(low)
	high = round1(high)

	unknowns, unknownCount := collectUnknowns(p)
	confidence := schema.ConfidenceHigh
	switch {
	case p.Archived:
		confidence = schema.ConfidenceHigh
	case unknownCount >= 2 || (p.Facts.Enrichment != nil && p.Facts.Enrichment.RiskFlags.ExceededLimits):
		confidence = schema.ConfidenceLow
	case unknownCount == 1:
		confidence = schema.ConfidenceMedium
	}

	blockers := identifyBlockers(p)

	// Breakdown by code/mrs/issues/ci is only populated from the LLM path
	// (analyzer.applyLLMResult), which receives it directly from the
	// model's structured response; the rule-based fallback has no
	// principled way to decompose a single work_score back into four
	// independent bands that still sum exactly, so it leaves Breakdown
	// nil rather than fabricate one schema.Validate would reject.
	return &schema.Estimate{
		HoursLow:   low,
		HoursHigh:  high,
		Confidence: confidence,
		Drivers:    drivers,
		Blockers:   blockers,
		Unknowns:   unknowns,
		WorkScore:  workScore,
		Bucket:     Bucket(workScore),
	}
}

func baseBand(workScore int) (low, high float64) {
	switch {
	case workScore <= 20:
		return 1, 2
	case workScore <= 45:
		return 3, 8
	case workScore <= 70:
		return 8, 20
	default:
		return 20, 40
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func collectUnknowns(p *schema.Project) (notes []string, count int) {
	if p.Facts.HasCI.IsUnknown() {
		notes = append(notes, "has_ci unknown")
		count++
	}
	if p.Facts.HasLFS.IsUnknown() {
		notes = append(notes, "has_lfs unknown")
		count++
	}
	if p.Facts.MRCounts.Total.IsUnknown() {
		notes = append(notes, "mr_counts unknown")
		count++
	} else if p.Facts.MRCounts.Total.IsCeiling() {
		notes = append(notes, "mr_counts truncated at cap")
		count++
	}
	if p.Facts.IssueCounts.Total.IsUnknown() {
		notes = append(notes, "issue_counts unknown")
		count++
	} else if p.Facts.IssueCounts.Total.IsCeiling() {
		notes = append(notes, "issue_counts truncated at cap")
		count++
	}
	return notes, count
}

func identifyBlockers(p *schema.Project) []string {
	var blockers []string
	for _, e := range p.Errors {
		if e.Status == 403 {
			blockers = append(blockers, "Permission denied for "+e.Step)
		}
	}
	return blockers
}
