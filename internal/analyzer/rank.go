package analyzer

import (
	"sort"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Rank scores every project by migration-risk heuristic (CI present, large
// backlogs, missing default branch, non-archived) and returns IDs ordered
// highest-risk first.
func Rank(projects []schema.Project) []int64 {
	type scored struct {
		id    int64
		score int
	}
	scores := make([]scored, 0, len(projects))
	for _, p := range projects {
		scores = append(scores, scored{id: p.ID, score: rankScore(p)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	out := make([]int64, len(scores))
	for i, s := range scores {
		out[i] = s.id
	}
	return out
}

func rankScore(p schema.Project) int {
	score := 0
	if !p.Facts.HasCI.IsUnknown() && p.Facts.HasCI.Value() {
		score += 3
	}
	if total := p.Facts.MRCounts.Total; !total.IsUnknown() && (total.IsCeiling() || total.Value() > 20) {
		score += 2
	}
	if total := p.Facts.IssueCounts.Total; !total.IsUnknown() && (total.IsCeiling() || total.Value() > 100) {
		score += 2
	}
	if p.DefaultBranch == "" {
		score += 2
	}
	if !p.Archived {
		score += 1
	}
	return score
}

// TopN returns the first n IDs of a ranked slice, or all of them if n<=0
// or n exceeds the slice length.
func TopN(ranked []int64, n int) []int64 {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
