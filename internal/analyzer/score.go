package analyzer

import (
	"fmt"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// ScoreCI computes the CI complexity score (capped at 50) and the list of
// contributing factors, via a weighted-additive rule table over detected
// CI features and runner hints.
func ScoreCI(profile schema.CIProfile) (score int, factors []string) {
	if !profile.Present {
		return 0, nil
	}

	score += 5
	factors = append(factors, "Has GitLab CI configuration")

	f, rh := profile.Features, profile.RunnerHints

	if f.Include {
		score += 8
		factors = append(factors, fmt.Sprintf("Uses includes (%d includes)", profile.IncludeCount))
	}
	if f.Services {
		score += 5
		factors = append(factors, "Uses services")
	}
	if f.Artifacts {
		score += 3
		factors = append(factors, "Uses artifacts")
	}
	if f.Cache {
		score += 2
		factors = append(factors, "Uses cache")
	}
	if f.Rules {
		score += 5
		factors = append(factors, "Uses rules/only/except")
	}
	if f.Needs {
		score += 7
		factors = append(factors, "Uses DAG (needs)")
	}
	if f.Parallel {
		score += 5
		factors = append(factors, "Uses parallel/matrix")
	}
	if f.Trigger {
		score += 10
		factors = append(factors, "Uses multi-project triggers")
	}
	if f.Environments {
		score += 5
		factors = append(factors, "Uses environments")
	}
	if f.ManualJobs {
		score += 3
		factors = append(factors, "Has manual jobs")
	}
	if f.Extends {
		score += 4
		factors = append(factors, "Uses extends (templates)")
	}
	if rh.UsesTags {
		score += 8
		factors = append(factors, "Uses custom runner tags")
	}
	if rh.DockerInDocker {
		score += 10
		factors = append(factors, "Uses Docker-in-Docker")
	}
	if rh.Privileged {
		score += 8
		factors = append(factors, "Requires privileged mode")
	}

	switch {
	case profile.JobCount > 20:
		score += 10
		factors = append(factors, fmt.Sprintf("Large pipeline (%d jobs)", profile.JobCount))
	case profile.JobCount > 10:
		score += 5
		factors = append(factors, fmt.Sprintf("Medium pipeline (%d jobs)", profile.JobCount))
	case profile.JobCount > 5:
		score += 2
		factors = append(factors, fmt.Sprintf("Small pipeline (%d jobs)", profile.JobCount))
	}

	if score > 50 {
		score = 50
	}
	return score, factors
}
