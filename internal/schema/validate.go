package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// draftSchema is the Draft-07 JSON Schema for an Inventory document. It is
// intentionally permissive on the enrichment-only fields (repo_profile,
// ci_profile, enrichment, estimate) since those are only populated in deep
// mode, and strict on the always-present fields.
const draftSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "gl2gh discovery inventory",
  "type": "object",
  "required": ["run", "groups", "projects"],
  "properties": {
    "run": {
      "type": "object",
      "required": ["started_at", "finished_at", "base_url", "stats"],
      "properties": {
        "started_at": {"type": "string"},
        "finished_at": {"type": "string"},
        "base_url": {"type": "string"},
        "root_group": {"type": "string"},
        "stats": {
          "type": "object",
          "required": ["groups", "projects", "errors", "api_calls"],
          "properties": {
            "groups": {"type": "integer"},
            "projects": {"type": "integer"},
            "errors": {"type": "integer"},
            "api_calls": {"type": "integer"}
          }
        }
      }
    },
    "groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "full_path", "projects"],
        "properties": {
          "id": {"type": "integer"},
          "full_path": {"type": "string"},
          "projects": {"type": "array", "items": {"type": "integer"}}
        }
      }
    },
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "path_with_namespace", "archived", "visibility", "facts", "readiness", "errors"],
        "properties": {
          "id": {"type": "integer"},
          "path_with_namespace": {"type": "string"},
          "default_branch": {"type": "string"},
          "archived": {"type": "boolean"},
          "visibility": {"enum": ["private", "internal", "public"]},
          "facts": {
            "type": "object",
            "required": ["has_ci", "has_lfs", "mr_counts", "issue_counts"],
            "properties": {
              "has_ci": {"oneOf": [{"type": "boolean"}, {"const": "unknown"}]},
              "has_lfs": {"oneOf": [{"type": "boolean"}, {"const": "unknown"}]}
            }
          },
          "readiness": {
            "type": "object",
            "required": ["complexity", "blockers", "notes"],
            "properties": {
              "complexity": {"enum": ["low", "medium", "high"]},
              "blockers": {"type": "array", "items": {"type": "string"}},
              "notes": {"type": "array", "items": {"type": "string"}}
            }
          },
          "errors": {"type": "array"}
        }
      }
    }
  }
}`

// ValidationError aggregates every problem found while validating an
// Inventory, both Draft-07 schema violations and the structural invariants
// a generic JSON Schema cannot express (group membership, sort order,
// estimate hour bands).
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("schema: invalid inventory: %s", e.Problems[0])
	}
	return fmt.Sprintf("schema: invalid inventory (%d problems): %s (+%d more)", len(e.Problems), e.Problems[0], len(e.Problems)-1)
}

// Validate checks inv against the Draft-07 schema and these cross-field
// invariants:
//  1. facts.has_ci / has_lfs are always a known tri-state.
//  2. run.stats.api_calls <= max_api_calls+1 is checked by the caller (the
//     budget ceiling isn't known to this package); Validate only checks that
//     api_calls is non-negative.
//  3. every group's projects are a subset of projects whose GroupID matches.
//  4. groups are sorted by full_path.
func Validate(inv *Inventory) error {
	var problems []string

	raw, err := json.Marshal(inv)
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("marshal: %v", err)}}
	}
	schemaLoader := gojsonschema.NewStringLoader(draftSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("schema validator: %v", err)}}
	}
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}

	if inv.Run.Stats.APICalls < 0 {
		problems = append(problems, "run.stats.api_calls is negative")
	}

	if !sort.SliceIsSorted(inv.Groups, func(i, j int) bool { return inv.Groups[i].FullPath < inv.Groups[j].FullPath }) {
		problems = append(problems, "groups are not sorted by full_path")
	}

	projectGroup := make(map[int64]int64, len(inv.Projects))
	for _, p := range inv.Projects {
		projectGroup[p.ID] = p.GroupID
	}
	for _, g := range inv.Groups {
		for _, pid := range g.Projects {
			gid, ok := projectGroup[pid]
			if !ok {
				problems = append(problems, fmt.Sprintf("group %s references unknown project id %d", g.FullPath, pid))
				continue
			}
			if gid != g.ID {
				problems = append(problems, fmt.Sprintf("group %s lists project %d which belongs to group %d", g.FullPath, pid, gid))
			}
		}
	}

	for _, p := range inv.Projects {
		if p.Estimate != nil && p.Estimate.HoursLow > p.Estimate.HoursHigh {
			problems = append(problems, fmt.Sprintf("project %s: estimate.hours_low > hours_high", p.PathWithNamespace))
		}
		if p.Estimate != nil && p.Estimate.Breakdown != nil {
			b := p.Estimate.Breakdown
			sumLow := b.Code.HoursLow + b.MRs.HoursLow + b.Issues.HoursLow + b.CI.HoursLow
			sumHigh := b.Code.HoursHigh + b.MRs.HoursHigh + b.Issues.HoursHigh + b.CI.HoursHigh
			if !approxEqual(sumLow, p.Estimate.HoursLow) || !approxEqual(sumHigh, p.Estimate.HoursHigh) {
				problems = append(problems, fmt.Sprintf("project %s: breakdown hours do not sum to top-level estimate", p.PathWithNamespace))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 0.05
}
