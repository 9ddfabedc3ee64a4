// Package analyzer implements the Deep Analyzer: ranking, CI profile
// parsing and scoring, hour estimation (rule-based with optional LLM
// augmentation), and the bounded worker pool that drives enrichment over
// the top-N ranked projects from a discovery inventory.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// reservedKeys are top-level .gitlab-ci.yml keys that are not job
// definitions.
var reservedKeys = map[string]bool{
	"default": true, "include": true, "stages": true, "variables": true,
	"workflow": true, "before_script": true, "after_script": true,
	"image": true, "services": true, "cache": true, "pages": true,
	".pre": true, ".post": true,
}

var (
	includeLineRe = regexp.MustCompile(`^include\s*:`)
	includeItemRe = regexp.MustCompile(`^\s*-\s*(local|remote|project|template|file):`)
	includeLocalRe = regexp.MustCompile(`^\s*-\s+['"]?/`)
	cacheRe       = regexp.MustCompile(`^\s*cache\s*:`)
	rulesRe       = regexp.MustCompile(`^\s*rules\s*:`)
	onlyExceptRe  = regexp.MustCompile(`^\s*(only|except)\s*:`)
	needsRe       = regexp.MustCompile(`^\s*needs\s*:`)
	parallelRe    = regexp.MustCompile(`^\s*parallel\s*:`)
	triggerRe     = regexp.MustCompile(`^\s*trigger\s*:`)
	environmentRe = regexp.MustCompile(`^\s*environment\s*:`)
	whenManualRe  = regexp.MustCompile(`^\s*when\s*:\s*manual`)
	extendsRe     = regexp.MustCompile(`^\s*extends\s*:`)
	tagsRe        = regexp.MustCompile(`^\s*tags\s*:`)
	stageItemRe   = regexp.MustCompile(`^\s+-\s+(\w+)`)
)

// ParseCI scans raw .gitlab-ci.yml content with tolerant, regex-based line
// matching (never a real YAML parser — malformed or templated files must
// still yield a best-effort profile) and returns the feature/runner-hint
// profile.
func ParseCI(content string) schema.CIProfile {
	profile := schema.CIProfile{Present: true}

	if strings.TrimSpace(content) == "" {
		profile.Present = false
		return profile
	}

	lines := strings.Split(content, "\n")
	jobs := map[string]bool{}
	stages := map[string]bool{}
	sawStages := false

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}

		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") && strings.Contains(line, ":") {
			key := strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
			if key != "" && !strings.HasPrefix(key, ".") {
				if !reservedKeys[key] {
					jobs[key] = true
				}
			}
		}

		lower := strings.ToLower(stripped)

		if strings.HasPrefix(stripped, "include:") || includeLineRe.MatchString(stripped) {
			profile.Features.Include = true
		}
		if includeItemRe.MatchString(stripped) || includeLocalRe.MatchString(stripped) {
			profile.IncludeCount++
		}
		if strings.Contains(stripped, "services:") {
			profile.Features.Services = true
		}
		if strings.Contains(lower, "docker:") && (strings.Contains(lower, "dind") || strings.Contains(lower, "docker")) {
			profile.RunnerHints.DockerInDocker = true
			profile.RunnerHints.PossibleSelfHosted = true
		}
		if strings.Contains(lower, "privileged") && strings.Contains(lower, "true") {
			profile.RunnerHints.Privileged = true
			profile.RunnerHints.PossibleSelfHosted = true
		}
		if strings.Contains(stripped, "artifacts:") {
			profile.Features.Artifacts = true
		}
		if cacheRe.MatchString(stripped) {
			profile.Features.Cache = true
		}
		if rulesRe.MatchString(stripped) || onlyExceptRe.MatchString(stripped) {
			profile.Features.Rules = true
		}
		if needsRe.MatchString(stripped) {
			profile.Features.Needs = true
		}
		if parallelRe.MatchString(stripped) {
			profile.Features.Parallel = true
		}
		if strings.Contains(stripped, "matrix:") {
			profile.Features.Matrix = true
			profile.Features.Parallel = true
		}
		if triggerRe.MatchString(stripped) {
			profile.Features.Trigger = true
		}
		if environmentRe.MatchString(stripped) {
			profile.Features.Environments = true
		}
		if whenManualRe.MatchString(stripped) {
			profile.Features.ManualJobs = true
		}
		if strings.HasPrefix(stripped, "variables:") {
			profile.Features.Variables = true
		}
		if extendsRe.MatchString(stripped) {
			profile.Features.Extends = true
		}
		if tagsRe.MatchString(stripped) {
			profile.RunnerHints.UsesTags = true
			profile.RunnerHints.PossibleSelfHosted = true
		}
		if strings.HasPrefix(stripped, "stages:") {
			sawStages = true
		}
		if sawStages {
			if m := stageItemRe.FindStringSubmatch(stripped); m != nil {
				stages[m[1]] = true
			}
		}
	}

	profile.JobCount = len(jobs)
	if len(stages) > 0 {
		profile.StageCount = len(stages)
	} else if len(jobs) > 0 {
		profile.StageCount = 1
	}
	if profile.Features.Include && profile.IncludeCount == 0 {
		profile.IncludeCount = 1
	}

	return profile
}
