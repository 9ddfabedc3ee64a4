package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Gap is one migration limitation or unsupported-feature note, aggregated
// from every other transformer's conversion_gaps.
type Gap struct {
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Action   string         `json:"action,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

var knownFeatureGaps = map[string]struct {
	message  string
	severity string
	action   string
}{
	"epic": {
		"GitLab Epics are not directly supported in GitHub (use Projects or mega issues)",
		"medium", "Convert epics to GitHub issues with epic label and link child issues",
	},
	"roadmap": {
		"GitLab Roadmaps are not directly supported in GitHub",
		"low", "Use GitHub Projects (beta) or create roadmap documentation",
	},
	"time_tracking": {
		"GitLab time tracking is not natively supported in GitHub",
		"low", "Use third-party integrations or track in issue comments",
	},
	"requirements": {
		"GitLab Requirements Management not available in GitHub",
		"medium", "Convert to issues with requirements label",
	},
	"compliance": {
		"GitLab Compliance features differ from GitHub",
		"high", "Review compliance requirements and configure GitHub equivalents",
	},
	"vulnerabilities": {
		"GitLab Vulnerability tracking differs from GitHub Security",
		"medium", "Enable GitHub Security features and review vulnerability reports",
	},
}

var severityOrder = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// GapAnalysisInput bundles every other sub-transformer's raw gap/warning
// output for aggregation.
type GapAnalysisInput struct {
	CICDGaps       []map[string]any
	UserMappings   map[string]any // the "data" map a TransformUsers Result produced
	GitLabFeatures []string
}

// AnalyzeGaps aggregates conversion gaps across all transformers,
// classifies them by severity, derives a prioritized action list, and
// renders a Markdown report.
func AnalyzeGaps(in GapAnalysisInput, now time.Time) (*Result, string) {
	res := NewResult(now)

	var gaps []Gap
	for _, g := range in.CICDGaps {
		gapType := stringField(g, "type", "cicd")
		severity := "medium"
		switch gapType {
		case "runner_tags", "custom_executor":
			severity = "high"
		case "schedule", "trigger":
			severity = "medium"
		}
		gaps = append(gaps, Gap{
			Type:     "cicd_" + gapType,
			Message:  stringField(g, "message", "CI/CD conversion gap"),
			Severity: severity,
			Action:   stringField(g, "action", ""),
			Context:  g,
		})
	}

	if in.UserMappings != nil {
		gaps = append(gaps, analyzeUserMappingGaps(in.UserMappings)...)
	}

	for _, feature := range in.GitLabFeatures {
		if info, ok := knownFeatureGaps[strings.ToLower(feature)]; ok {
			gaps = append(gaps, Gap{
				Type:     "feature_" + feature,
				Message:  info.message,
				Severity: info.severity,
				Action:   info.action,
				Context:  map[string]any{"feature": feature},
			})
		}
	}

	categorized := categorizeGaps(gaps)
	actionItems := generateActionItems(gaps)
	summary := generateGapSummary(gaps, categorized)

	res.Data["gaps"] = gaps
	res.Data["categorized_gaps"] = categorized
	res.Data["action_items"] = actionItems
	res.Data["summary"] = summary
	res.Metadata["total_gaps"] = len(gaps)
	res.Metadata["critical_gaps"] = len(categorized["critical"])
	res.Metadata["action_items_count"] = len(actionItems)

	if len(categorized["critical"]) > 0 {
		messages := make([]string, len(categorized["critical"]))
		for i, g := range categorized["critical"] {
			messages[i] = g.Message
		}
		res.AddWarning(fmt.Sprintf("%d critical gaps require attention", len(categorized["critical"])), map[string]any{"critical_gaps": messages})
	}

	return res, generateGapReport(categorized)
}

func analyzeUserMappingGaps(userMappings map[string]any) []Gap {
	var gaps []Gap
	stats, _ := userMappings["stats"].(map[string]int)
	unmappedCount := stats["unmapped"]
	lowConfidenceCount := stats["low_confidence"]

	unmappedUsers, _ := userMappings["unmapped_users"].([]UserMapping)

	if unmappedCount > 0 {
		severity := "medium"
		if unmappedCount > 5 {
			severity = "high"
		}
		names := make([]string, 0, 10)
		for i, u := range unmappedUsers {
			if i >= 10 {
				break
			}
			names = append(names, u.GitLab.Username)
		}
		gaps = append(gaps, Gap{
			Type:     "user_unmapped",
			Message:  fmt.Sprintf("%d users could not be mapped to GitHub accounts", unmappedCount),
			Severity: severity,
			Action:   "Review unmapped users and manually map them, or configure fallback strategy",
			Context:  map[string]any{"unmapped_count": unmappedCount, "unmapped_users": names},
		})
	}

	if lowConfidenceCount > 0 {
		gaps = append(gaps, Gap{
			Type:     "user_low_confidence",
			Message:  fmt.Sprintf("%d users mapped with low confidence", lowConfidenceCount),
			Severity: "medium",
			Action:   "Review low confidence mappings and confirm or adjust",
			Context:  map[string]any{"low_confidence_count": lowConfidenceCount},
		})
	}
	return gaps
}

func categorizeGaps(gaps []Gap) map[string][]Gap {
	categorized := map[string][]Gap{"critical": {}, "high": {}, "medium": {}, "low": {}}
	for _, g := range gaps {
		sev := g.Severity
		if _, ok := categorized[sev]; !ok {
			sev = "medium"
		}
		categorized[sev] = append(categorized[sev], g)
	}
	return categorized
}

func generateActionItems(gaps []Gap) []map[string]any {
	sorted := make([]Gap, len(gaps))
	copy(sorted, gaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})

	var items []map[string]any
	for i, g := range sorted {
		if g.Action == "" {
			continue
		}
		items = append(items, map[string]any{
			"priority": i + 1,
			"severity": g.Severity,
			"type":     g.Type,
			"action":   g.Action,
			"message":  g.Message,
			"context":  g.Context,
		})
	}
	return items
}

func severityRank(s string) int {
	if r, ok := severityOrder[s]; ok {
		return r
	}
	return 2
}

func generateGapSummary(gaps []Gap, categorized map[string][]Gap) map[string]any {
	bySeverity := map[string]int{}
	for sev, gs := range categorized {
		bySeverity[sev] = len(gs)
	}
	requiresAction := 0
	for _, g := range gaps {
		if g.Action != "" {
			requiresAction++
		}
	}
	return map[string]any{
		"total_gaps":                len(gaps),
		"by_severity":               bySeverity,
		"requires_manual_action":    requiresAction,
		"critical_attention_needed": len(categorized["critical"]) > 0,
	}
}

func generateGapReport(categorized map[string][]Gap) string {
	var b strings.Builder
	b.WriteString("# Migration Conversion Gaps Report\n\n")
	b.WriteString("## Summary\n\n")
	total := 0
	for _, gs := range categorized {
		total += len(gs)
	}
	fmt.Fprintf(&b, "- **Total Gaps**: %d\n", total)
	fmt.Fprintf(&b, "- **Critical**: %d\n", len(categorized["critical"]))
	fmt.Fprintf(&b, "- **High**: %d\n", len(categorized["high"]))
	fmt.Fprintf(&b, "- **Medium**: %d\n", len(categorized["medium"]))
	fmt.Fprintf(&b, "- **Low**: %d\n\n", len(categorized["low"]))

	for _, sev := range []string{"critical", "high", "medium", "low"} {
		gs := categorized[sev]
		if len(gs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s Severity Gaps\n\n", strings.ToUpper(sev))
		for _, g := range gs {
			fmt.Fprintf(&b, "### %s\n\n", g.Type)
			fmt.Fprintf(&b, "**Message**: %s\n\n", g.Message)
			if g.Action != "" {
				fmt.Fprintf(&b, "**Action Required**: %s\n\n", g.Action)
			}
		}
	}
	return b.String()
}

func stringField(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
