package transform

import (
	"strings"
	"time"
)

// GitLabUser is the subset of a GitLab user record the mapper consults.
type GitLabUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// GitHubUser is the subset of a GitHub user/org-member record the mapper
// matches against.
type GitHubUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Confidence levels for a user mapping.
const (
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
	ConfidenceUnmapped = "unmapped"
)

// usernameFuzzyThreshold / nameFuzzyThreshold are the 0.75/0.85 fuzzy-match
// thresholds, chosen to minimize false positives at the cost of unmapped
// users — the unmapped list is the primary operator surface.
const (
	usernameFuzzyThreshold = 0.75
	nameFuzzyThreshold     = 0.85
)

// UserMapping is one GitLab→GitHub user resolution.
type UserMapping struct {
	GitLab     GitLabUser  `json:"gitlab"`
	GitHub     *GitHubUser `json:"github"`
	Confidence string      `json:"confidence"`
	Method     string      `json:"method"`
}

// TransformUsers maps a list of GitLab users to a combined pool of GitHub
// users and org members by (1) exact email, (2) username exact then fuzzy
// ratio >= 0.75, (3) display name exact then fuzzy ratio >= 0.85.
func TransformUsers(gitlabUsers []GitLabUser, githubUsers, githubOrgMembers []GitHubUser, now time.Time) *Result {
	res := NewResult(now)
	if len(gitlabUsers) == 0 {
		res.AddError("missing gitlab_users", nil)
		return res
	}

	all := combineGitHubUsers(githubUsers, githubOrgMembers)

	mappings := make([]UserMapping, 0, len(gitlabUsers))
	var unmapped []UserMapping
	stats := map[string]int{"total": len(gitlabUsers), "high_confidence": 0, "medium_confidence": 0, "low_confidence": 0, "unmapped": 0}

	for _, gu := range gitlabUsers {
		m := mapUser(gu, all)
		mappings = append(mappings, m)
		switch m.Confidence {
		case ConfidenceHigh:
			stats["high_confidence"]++
		case ConfidenceMedium:
			stats["medium_confidence"]++
		case ConfidenceLow:
			stats["low_confidence"]++
		default:
			stats["unmapped"]++
			unmapped = append(unmapped, m)
		}
	}

	res.Data["mappings"] = mappings
	res.Data["unmapped_users"] = unmapped
	res.Data["stats"] = stats
	for k, v := range stats {
		res.Metadata[k] = v
	}
	if len(unmapped) > 0 {
		names := make([]string, len(unmapped))
		for i, u := range unmapped {
			names[i] = u.GitLab.Username
		}
		res.AddWarning("users could not be mapped", map[string]any{"unmapped_users": names})
	}
	return res
}

func combineGitHubUsers(users, orgMembers []GitHubUser) []GitHubUser {
	seen := map[string]bool{}
	var combined []GitHubUser
	for _, u := range append(append([]GitHubUser{}, users...), orgMembers...) {
		if u.Login == "" || seen[u.Login] {
			continue
		}
		seen[u.Login] = true
		combined = append(combined, u)
	}
	return combined
}

func mapUser(gu GitLabUser, pool []GitHubUser) UserMapping {
	m := UserMapping{GitLab: gu, Confidence: ConfidenceUnmapped, Method: "none"}

	if match := matchByEmail(gu, pool); match != nil {
		m.GitHub = match
		m.Confidence = ConfidenceHigh
		m.Method = "email"
		return m
	}
	if match := matchByUsername(gu, pool); match != nil {
		m.GitHub = match
		m.Confidence = ConfidenceMedium
		m.Method = "username"
		return m
	}
	if match := matchByName(gu, pool); match != nil {
		m.GitHub = match
		m.Confidence = ConfidenceLow
		m.Method = "name"
		return m
	}
	return m
}

func matchByEmail(gu GitLabUser, pool []GitHubUser) *GitHubUser {
	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" {
		return nil
	}
	for i := range pool {
		if strings.ToLower(strings.TrimSpace(pool[i].Email)) == email {
			return &pool[i]
		}
	}
	return nil
}

func matchByUsername(gu GitLabUser, pool []GitHubUser) *GitHubUser {
	username := strings.ToLower(strings.TrimSpace(gu.Username))
	if username == "" {
		return nil
	}
	for i := range pool {
		if strings.ToLower(strings.TrimSpace(pool[i].Login)) == username {
			return &pool[i]
		}
	}
	best, score := fuzzyMatch(normalizeUsername(gu.Username), pool, func(u GitHubUser) string { return normalizeUsername(u.Login) })
	if best != nil && score >= usernameFuzzyThreshold {
		return best
	}
	return nil
}

func matchByName(gu GitLabUser, pool []GitHubUser) *GitHubUser {
	name := strings.ToLower(strings.TrimSpace(gu.Name))
	if name == "" {
		return nil
	}
	for i := range pool {
		if strings.ToLower(strings.TrimSpace(pool[i].Name)) == name {
			return &pool[i]
		}
	}
	best, score := fuzzyMatch(normalizeName(gu.Name), pool, func(u GitHubUser) string { return normalizeName(u.Name) })
	if best != nil && score >= nameFuzzyThreshold {
		return best
	}
	return nil
}

func fuzzyMatch(needle string, pool []GitHubUser, key func(GitHubUser) string) (*GitHubUser, float64) {
	if needle == "" {
		return nil, 0
	}
	var best *GitHubUser
	bestScore := 0.0
	for i := range pool {
		candidate := key(pool[i])
		if candidate == "" {
			continue
		}
		if score := similarityRatio(needle, candidate); score > bestScore {
			bestScore = score
			best = &pool[i]
		}
	}
	return best, bestScore
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, c := range []string{".", "-", "_", ","} {
		n = strings.ReplaceAll(n, c, " ")
	}
	return strings.Join(strings.Fields(n), " ")
}

func normalizeUsername(username string) string {
	n := strings.ToLower(strings.TrimSpace(username))
	for _, c := range []string{".", "-", "_"} {
		n = strings.ReplaceAll(n, c, "")
	}
	return n
}

// similarityRatio computes the Ratcliff/Obershelp similarity ratio:
// 2*M / T where M is the total length of matching blocks found by
// recursively locating the longest common substring, and T is the
// combined length of both strings.
func similarityRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	matches := matchingBlockLength([]rune(a), []rune(b))
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0
	}
	return 2 * float64(matches) / float64(total)
}

func matchingBlockLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	left := matchingBlockLength(a[:ai], b[:bi])
	right := matchingBlockLength(a[ai+size:], b[bi+size:])
	return left + size + right
}

func longestCommonSubstring(a, b []rune) (aStart, bStart, length int) {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
				if dp[i][j] > best {
					best = dp[i][j]
					aStart, bStart, length = i-best, j-best, best
				}
			}
		}
	}
	return aStart, bStart, length
}
