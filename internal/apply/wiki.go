package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func init() {
	Register("push_wiki", newPushWikiAction)
}

// pushWikiAction clones the destination repository's wiki (a separate git
// repository GitHub exposes at <repo>.wiki.git), copies over the exported
// markdown pages, and pushes if anything changed.
type pushWikiAction struct {
	id, key                     string
	wikiContentPath, targetRepo string
}

func newPushWikiAction(id, key string, p Params) (Action, error) {
	wikiContentPath, err := paramString(p, "wiki_content_path")
	if err != nil {
		return nil, err
	}
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	return &pushWikiAction{id: id, key: key, wikiContentPath: wikiContentPath, targetRepo: targetRepo}, nil
}

func (a *pushWikiAction) ID() string            { return a.id }
func (a *pushWikiAction) Type() string           { return "push_wiki" }
func (a *pushWikiAction) IdempotencyKey() string { return a.key }

func (a *pushWikiAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	entries, err := os.ReadDir(a.wikiContentPath)
	if err != nil {
		return newResult(a.id, a.Type(), true, map[string]any{"skipped": true, "reason": "No wiki content found"}, ""), nil
	}

	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	wikiNote := ""
	if githubRepo, _, getErr := ac.GitHub.Repositories.Get(ctx, owner, repo); getErr == nil && !githubRepo.GetHasWiki() {
		// Repo API does not support enabling wiki through this client path;
		// logged as a gap for the operator rather than failing the run.
		wikiNote = "wiki is disabled on the destination repository; enable it manually"
	}

	wikiURL := fmt.Sprintf("https://github.com/%s.wiki.git", a.targetRepo)
	authURL := strings.Replace(wikiURL, "https://", "https://x-access-token:"+ac.GitHubToken+"@", 1)

	tmpDir, err := os.MkdirTemp("", "gl2gh_wiki_")
	if err != nil {
		return failResult(a, err), nil
	}
	defer os.RemoveAll(tmpDir)

	if err := runGit(ctx, "", "clone", authURL, tmpDir); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}

	pages := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(a.wikiContentPath, e.Name()))
		if err != nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(tmpDir, e.Name()), src, 0o644); err != nil {
			continue
		}
		pages++
	}

	status, err := runGitOutput(ctx, tmpDir, "status", "--porcelain")
	if err != nil {
		return failResult(a, err), nil
	}

	pushed := false
	if strings.TrimSpace(status) != "" {
		if err := runGit(ctx, tmpDir, "add", "."); err != nil {
			return failResult(a, err), nil
		}
		if err := runGit(ctx, tmpDir, "commit", "-m", "Migrate wiki content from GitLab"); err != nil {
			return failResult(a, err), nil
		}
		if err := runGit(ctx, tmpDir, "push"); err != nil {
			return failResult(a, redactToken(err, ac.GitHubToken)), nil
		}
		pushed = true
	}

	outputs := map[string]any{
		"wiki_pushed": pushed,
		"target_repo": a.targetRepo,
		"pages":       pages,
	}
	if wikiNote != "" {
		outputs["note"] = wikiNote
	}
	return newResult(a.id, a.Type(), true, outputs, ""), nil
}

func (a *pushWikiAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	if _, err := os.Stat(a.wikiContentPath); err != nil {
		return simulationResult(a.id, a.Type(), "would_skip", "No wiki content found", nil, true), nil
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would push wiki content to %s", a.targetRepo), nil, true), nil
}
