package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	submoduleHeaderPattern = regexp.MustCompile(`\[submodule\s+"([^"]+)"\]`)
	protocolPattern        = regexp.MustCompile(`^https?://`)
	sshProtoPattern        = regexp.MustCompile(`^ssh://`)
	gitAtPattern           = regexp.MustCompile(`^git@`)
	sshColonPattern        = regexp.MustCompile(`:([^/])`)
	dotGitSuffixPattern    = regexp.MustCompile(`\.git$`)
)

// Submodule is one parsed [submodule "name"] section of a .gitmodules file,
// plus the rewrite bookkeeping TransformSubmodules attaches.
type Submodule struct {
	Name        string            `json:"name"`
	Path        string            `json:"path,omitempty"`
	URL         string            `json:"url,omitempty"`
	Extra       map[string]string `json:"-"`
	Rewritten   bool              `json:"rewritten"`
	OriginalURL string            `json:"original_url,omitempty"`
	Warning     string            `json:"warning,omitempty"`
}

// TransformSubmodules parses .gitmodules content and rewrites each
// submodule's URL using urlMappings ({gitlab pattern: github pattern}),
// preserving the original SSH/HTTPS/relative style. It is idempotent on
// already-rewritten .gitmodules content: re-running against output whose
// URLs already equal their mapped targets leaves them unchanged, since
// normalize(rewrite(normalize(u))) == normalize(rewrite(u)).
func TransformSubmodules(gitmodulesContent string, urlMappings map[string]string, now time.Time) *Result {
	res := NewResult(now)
	if gitmodulesContent == "" {
		res.AddError("missing gitmodules_content", nil)
		return res
	}

	submodules := parseGitmodules(gitmodulesContent)
	if len(submodules) == 0 {
		res.AddWarning("No submodules found in .gitmodules", nil)
		res.Data["submodules"] = []Submodule{}
		res.Data["gitmodules_content"] = gitmodulesContent
		res.Data["rewrite_count"] = 0
		return res
	}

	rewritten := rewriteSubmoduleURLs(submodules, urlMappings)
	updated := generateGitmodules(rewritten)

	rewriteCount := 0
	for _, s := range rewritten {
		if s.Rewritten {
			rewriteCount++
		}
	}
	externalCount := len(rewritten) - rewriteCount

	for _, s := range rewritten {
		if !s.Rewritten {
			res.AddWarning(
				fmt.Sprintf("Submodule '%s' URL not rewritten - repository not being migrated", s.Name),
				map[string]any{"url": s.URL, "path": s.Path},
			)
		}
	}

	res.Data["submodules"] = rewritten
	res.Data["gitmodules_content"] = updated
	res.Data["rewrite_count"] = rewriteCount
	res.Data["external_count"] = externalCount
	res.Data["total_count"] = len(rewritten)
	return res
}

func parseGitmodules(content string) []Submodule {
	var submodules []Submodule
	var current *Submodule

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[submodule"):
			if current != nil {
				submodules = append(submodules, *current)
			}
			name := "unnamed"
			if m := submoduleHeaderPattern.FindStringSubmatch(line); m != nil {
				name = m[1]
			}
			current = &Submodule{Name: name, Extra: map[string]string{}}
		case strings.Contains(line, "=") && current != nil:
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			switch key {
			case "path":
				current.Path = value
			case "url":
				current.URL = value
			default:
				current.Extra[key] = value
			}
		}
	}
	if current != nil {
		submodules = append(submodules, *current)
	}
	return submodules
}

func rewriteSubmoduleURLs(submodules []Submodule, urlMappings map[string]string) []Submodule {
	patterns := make([]string, 0, len(urlMappings))
	for p := range urlMappings {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	out := make([]Submodule, len(submodules))
	for i, sub := range submodules {
		copyOf := sub
		if sub.URL == "" {
			copyOf.Rewritten = false
			copyOf.Warning = "No URL specified"
			out[i] = copyOf
			continue
		}

		normalizedOld := normalizeSubmoduleURL(sub.URL)
		rewritten := false
		for _, gitlabPattern := range patterns {
			githubPattern := urlMappings[gitlabPattern]
			normalizedGitlab := normalizeSubmoduleURL(gitlabPattern)
			if normalizedGitlab != "" && strings.Contains(normalizedOld, normalizedGitlab) {
				copyOf.URL = rewriteSubmoduleURL(sub.URL, gitlabPattern, githubPattern)
				copyOf.Rewritten = true
				copyOf.OriginalURL = sub.URL
				rewritten = true
				break
			}
		}
		if !rewritten {
			copyOf.Rewritten = false
			copyOf.Warning = "Submodule repository not being migrated"
		}
		out[i] = copyOf
	}
	return out
}

// normalizeSubmoduleURL strips protocol/auth prefixes, converts SSH
// `host:path` to `host/path`, and drops a trailing `.git`/`/`.
func normalizeSubmoduleURL(u string) string {
	n := strings.ToLower(u)
	n = protocolPattern.ReplaceAllString(n, "")
	n = sshProtoPattern.ReplaceAllString(n, "")
	if at := strings.Index(n, "@"); at >= 0 && !strings.Contains(n[:at], "/") {
		n = n[at+1:]
	}
	n = gitAtPattern.ReplaceAllString(n, "")
	n = sshColonPattern.ReplaceAllString(n, "/$1")
	n = dotGitSuffixPattern.ReplaceAllString(n, "")
	n = strings.TrimRight(n, "/")
	return n
}

func rewriteSubmoduleURL(original, gitlabPattern, githubPattern string) string {
	isSSH := strings.HasPrefix(original, "git@") || (strings.Contains(original, ":") && !strings.Contains(original, "://"))
	isHTTPS := strings.HasPrefix(original, "http://") || strings.HasPrefix(original, "https://")
	hasGitExt := strings.HasSuffix(original, ".git")

	gitlabNorm := normalizeSubmoduleURL(gitlabPattern)
	githubNorm := normalizeSubmoduleURL(githubPattern)
	originalNorm := normalizeSubmoduleURL(original)

	newNorm := strings.ReplaceAll(originalNorm, gitlabNorm, githubNorm)

	var newURL string
	switch {
	case isSSH:
		parts := strings.SplitN(newNorm, "/", 2)
		if len(parts) == 2 {
			newURL = fmt.Sprintf("git@%s:%s", parts[0], parts[1])
		} else {
			newURL = fmt.Sprintf("git@%s", newNorm)
		}
	case isHTTPS:
		newURL = "https://" + newNorm
	default:
		newURL = newNorm
	}

	if hasGitExt && !strings.HasSuffix(newURL, ".git") {
		newURL += ".git"
	}
	return newURL
}

func generateGitmodules(submodules []Submodule) string {
	var lines []string
	for _, sub := range submodules {
		lines = append(lines, fmt.Sprintf(`[submodule "%s"]`, sub.Name))
		if sub.Path != "" {
			lines = append(lines, fmt.Sprintf("\tpath = %s", sub.Path))
		}
		if sub.URL != "" {
			lines = append(lines, fmt.Sprintf("\turl = %s", sub.URL))
		}
		keys := make([]string, 0, len(sub.Extra))
		for key := range sub.Extra {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			lines = append(lines, fmt.Sprintf("\t%s = %s", key, sub.Extra[key]))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
