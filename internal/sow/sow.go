// Package sow synthesizes a Statement of Work Markdown document from a
// discovery inventory: deterministic metric aggregation over the selected
// projects, plus an optional LLM-generated narrative section, chunked so a
// large project selection doesn't overrun a single completion call. Document
// construction uses the same strings.Builder-plus-YAML-front-matter idiom as
// the release-notes generator this package was adapted from, with sorted map
// keys for reproducible output.
package sow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moti-malka/gl2gh-sub000/internal/analyzer"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Options carries the operator-supplied framing for the document (sow_options
// in the original request).
type Options struct {
	ClientName          string
	EngagementStart      time.Time
	NarrativeChunkSize   int // projects per LLM narrative call; 0 uses DefaultChunkSize
}

const DefaultChunkSize = 20

// Request is one synthesis invocation: a subset of an inventory's projects
// plus the framing options.
type Request struct {
	SelectedProjectIDs []int64
	Inventory          *schema.Inventory
	Options            Options
}

// Metrics is the deterministic aggregation across the selected projects,
// always computed regardless of whether the LLM narrative pass runs.
type Metrics struct {
	TotalProjects     int            `json:"total_projects"`
	ArchivedProjects  int            `json:"archived_projects"`
	HoursLow          float64        `json:"hours_low"`
	HoursHigh         float64        `json:"hours_high"`
	ComplexityCounts  map[string]int `json:"complexity_counts"`
	ConfidenceCounts  map[string]int `json:"confidence_counts"`
	BlockerCounts     map[string]int `json:"blocker_counts"`
	ProjectsMissingEstimate int      `json:"projects_missing_estimate"`
}

// Result is the synthesized document.
type Result struct {
	Markdown string
	Metrics  Metrics
}

// Generate aggregates Metrics deterministically and renders the Markdown
// document. llm may be nil or unconfigured; when present and configured, a
// narrative section is appended per chunk of projects, falling back to a
// templated summary for any chunk whose completion call fails — the
// narrative pass never fails the whole document, the same
// always-have-a-rule-based-fallback discipline the effort estimator uses,
// applied here to prose instead of numbers.
func Generate(ctx context.Context, req Request, llm *analyzer.LLMClient) (*Result, error) {
	projects := selectProjects(req.Inventory, req.SelectedProjectIDs)
	metrics := aggregate(projects)

	chunkSize := req.Options.NarrativeChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var narrative []string
	for _, chunk := range chunkProjects(projects, chunkSize) {
		narrative = append(narrative, narrateChunk(ctx, chunk, llm))
	}

	md := render(req, metrics, projects, narrative)
	return &Result{Markdown: md, Metrics: metrics}, nil
}

func selectProjects(inv *schema.Inventory, ids []int64) []schema.Project {
	if inv == nil {
		return nil
	}
	if len(ids) == 0 {
		return append([]schema.Project{}, inv.Projects...)
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]schema.Project, 0, len(ids))
	for _, p := range inv.Projects {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func chunkProjects(projects []schema.Project, size int) [][]schema.Project {
	if len(projects) == 0 {
		return nil
	}
	var chunks [][]schema.Project
	for i := 0; i < len(projects); i += size {
		end := i + size
		if end > len(projects) {
			end = len(projects)
		}
		chunks = append(chunks, projects[i:end])
	}
	return chunks
}

func aggregate(projects []schema.Project) Metrics {
	m := Metrics{
		ComplexityCounts: map[string]int{},
		ConfidenceCounts: map[string]int{},
		BlockerCounts:    map[string]int{},
	}
	for _, p := range projects {
		m.TotalProjects++
		if p.Archived {
			m.ArchivedProjects++
		}
		m.ComplexityCounts[string(p.Readiness.Complexity)]++
		for _, b := range p.Readiness.Blockers {
			m.BlockerCounts[b]++
		}
		if p.Estimate == nil {
			m.ProjectsMissingEstimate++
			continue
		}
		m.HoursLow += p.Estimate.HoursLow
		m.HoursHigh += p.Estimate.HoursHigh
		m.ConfidenceCounts[string(p.Estimate.Confidence)]++
	}
	return m
}

// narrateChunk asks the LLM for a short paragraph covering this batch of
// projects and defensively falls back to a templated sentence on any error
// or disabled configuration.
func narrateChunk(ctx context.Context, chunk []schema.Project, llm *analyzer.LLMClient) string {
	if llm == nil {
		return templatedNarrative(chunk)
	}
	prompt := buildNarrativePrompt(chunk)
	text, err := llm.CompleteText(ctx, "You write concise, professional statement-of-work narrative paragraphs for a GitLab-to-GitHub migration engagement. Two to four sentences, no headings, no bullet lists.", prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return templatedNarrative(chunk)
	}
	return strings.TrimSpace(text)
}

func buildNarrativePrompt(chunk []schema.Project) string {
	var b strings.Builder
	b.WriteString("Summarize the migration scope for this batch of projects in prose:\n")
	for _, p := range chunk {
		hours := "unestimated"
		if p.Estimate != nil {
			hours = fmt.Sprintf("%.0f-%.0f hours, bucket %s", p.Estimate.HoursLow, p.Estimate.HoursHigh, p.Estimate.Bucket)
		}
		b.WriteString(fmt.Sprintf("- %s (complexity=%s, %s)\n", p.PathWithNamespace, p.Readiness.Complexity, hours))
	}
	return b.String()
}

func templatedNarrative(chunk []schema.Project) string {
	if len(chunk) == 0 {
		return ""
	}
	counts := map[string]int{}
	for _, p := range chunk {
		counts[string(p.Readiness.Complexity)]++
	}
	return fmt.Sprintf("This batch covers %d projects spanning %s complexity, migrated using the standard repository, CI/CD, issue, and merge-request transformation pipeline.",
		len(chunk), summarizeCounts(counts))
}

func summarizeCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return strings.Join(parts, ", ")
}

func render(req Request, m Metrics, projects []schema.Project, narrative []string) string {
	var b strings.Builder

	client := strings.TrimSpace(req.Options.ClientName)
	if client == "" {
		client = "Client"
	}
	start := req.Options.EngagementStart
	if start.IsZero() {
		start = time.Now().UTC()
	}

	b.WriteString(buildFrontMatter(map[string]any{
		"title":    fmt.Sprintf("GitLab to GitHub Migration — %s", client),
		"client":   client,
		"date":     start.UTC().Format(time.RFC3339),
		"projects": m.TotalProjects,
	}))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("# Statement of Work: GitLab → GitHub Migration for %s\n\n", client))

	b.WriteString("## Engagement Summary\n\n")
	b.WriteString(fmt.Sprintf("- Projects in scope: %d (%d archived)\n", m.TotalProjects, m.ArchivedProjects))
	b.WriteString(fmt.Sprintf("- Estimated effort: %.0f–%.0f hours\n", m.HoursLow, m.HoursHigh))
	if m.ProjectsMissingEstimate > 0 {
		b.WriteString(fmt.Sprintf("- %d project(s) have no effort estimate (deep analysis not run); hours above exclude them\n", m.ProjectsMissingEstimate))
	}
	b.WriteString("\n")

	b.WriteString("## Complexity Breakdown\n\n")
	writeCountTable(&b, m.ComplexityCounts, "Complexity")
	b.WriteString("\n")

	if len(m.ConfidenceCounts) > 0 {
		b.WriteString("## Estimate Confidence\n\n")
		writeCountTable(&b, m.ConfidenceCounts, "Confidence")
		b.WriteString("\n")
	}

	if len(m.BlockerCounts) > 0 {
		b.WriteString("## Known Blockers\n\n")
		writeCountTable(&b, m.BlockerCounts, "Blocker")
		b.WriteString("\n")
	}

	if len(narrative) > 0 {
		b.WriteString("## Narrative\n\n")
		for _, p := range narrative {
			b.WriteString(p + "\n\n")
		}
	}

	b.WriteString("## Project List\n\n")
	b.WriteString("| Project | Complexity | Estimate (hrs) | Blockers |\n")
	b.WriteString("|---|---|---|---|\n")
	sorted := append([]schema.Project{}, projects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PathWithNamespace < sorted[j].PathWithNamespace })
	for _, p := range sorted {
		hours := "—"
		if p.Estimate != nil {
			hours = fmt.Sprintf("%.0f–%.0f", p.Estimate.HoursLow, p.Estimate.HoursHigh)
		}
		blockers := strings.Join(p.Readiness.Blockers, "; ")
		if blockers == "" {
			blockers = "—"
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", p.PathWithNamespace, p.Readiness.Complexity, hours, blockers))
	}

	return b.String()
}

func writeCountTable(b *strings.Builder, counts map[string]int, label string) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(fmt.Sprintf("| %s | Count |\n|---|---|\n", label))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", k, counts[k]))
	}
}

func buildFrontMatter(m map[string]any) string {
	var b strings.Builder
	b.WriteString("---\n")
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			b.WriteString(fmt.Sprintf("%s: %q\n", k, v))
		default:
			b.WriteString(fmt.Sprintf("%s: %v\n", k, v))
		}
	}
	b.WriteString("---\n")
	return b.String()
}
