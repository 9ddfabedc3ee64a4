package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/moti-malka/gl2gh-sub000/internal/githubops"
)

func init() {
	Register("create_repository", newCreateRepositoryAction)
	Register("push_code", newPushCodeAction)
	Register("push_lfs", newPushLFSAction)
	Register("update_gitmodules", newUpdateGitmodulesAction)
}

// createRepositoryAction creates the destination GitHub repository,
// falling back to a user-owned repo when the configured org doesn't
// exist.
type createRepositoryAction struct {
	id, key                        string
	org, name, description         string
	private, hasIssues, hasWiki    bool
}

func newCreateRepositoryAction(id, key string, p Params) (Action, error) {
	name, err := paramString(p, "name")
	if err != nil {
		return nil, err
	}
	org := paramStringDefault(p, "org", paramStringDefault(p, "owner", ""))
	return &createRepositoryAction{
		id: id, key: key, org: org, name: name,
		description: paramStringDefault(p, "description", ""),
		private:     paramBoolDefault(p, "private", true),
		hasIssues:   paramBoolDefault(p, "has_issues", true),
		hasWiki:     paramBoolDefault(p, "has_wiki", true),
	}, nil
}

func (a *createRepositoryAction) ID() string            { return a.id }
func (a *createRepositoryAction) Type() string           { return "create_repository" }
func (a *createRepositoryAction) IdempotencyKey() string { return a.key }

func (a *createRepositoryAction) fullName() string {
	if a.org == "" {
		return a.name
	}
	return a.org + "/" + a.name
}

func (a *createRepositoryAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	repo := &github.Repository{
		Name:        github.String(a.name),
		Description: github.String(a.description),
		Private:     github.Bool(a.private),
		HasIssues:   github.Bool(a.hasIssues),
		HasWiki:     github.Bool(a.hasWiki),
	}

	created, resp, err := ac.GitHub.Repositories.Create(ctx, a.org, repo)
	if err != nil && resp != nil && resp.StatusCode == 404 && a.org != "" {
		// Org not found; fall back to a user-owned repository.
		created, _, err = ac.GitHub.Repositories.Create(ctx, "", repo)
	}
	if err != nil {
		if resp != nil && resp.StatusCode == 422 {
			return newResult(a.id, a.Type(), true, map[string]any{
				"repo_full_name": a.fullName(),
				"exists":         true,
			}, ""), nil
		}
		return failResult(a, fmt.Errorf("failed to create repository: %w", err)), nil
	}

	res := newResult(a.id, a.Type(), true, map[string]any{
		"repo_full_name": created.GetFullName(),
		"repo_url":       created.GetHTMLURL(),
		"repo_id":        created.GetID(),
	}, "")
	res.RollbackData = rollbackPayload(map[string]any{
		"repo_full_name": created.GetFullName(),
		"repo_id":        created.GetID(),
	})
	ac.SetIDMapping("repository", a.fullName(), created.GetFullName())
	return res, nil
}

func (a *createRepositoryAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.fullName())
	if err != nil {
		owner, repo = a.org, a.name
	}
	_, resp, err := ac.GitHub.Repositories.Get(ctx, owner, repo)
	if err == nil {
		return simulationResult(a.id, a.Type(), "would_skip", fmt.Sprintf("Repository %q already exists, would skip creation", a.fullName()), map[string]any{"repo_full_name": a.fullName(), "exists": true}, true), nil
	}
	if resp != nil && resp.StatusCode == 404 {
		return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create repository %q", a.fullName()), map[string]any{"repo_full_name": a.fullName()}, true), nil
	}
	return simulationResult(a.id, a.Type(), "would_fail", err.Error(), nil, false), nil
}

func (a *createRepositoryAction) Rollback(ctx context.Context, ac *Context, data json.RawMessage) error {
	payload, err := unmarshalPayload(data)
	if err != nil {
		return err
	}
	fullName, _ := payload["repo_full_name"].(string)
	if fullName == "" {
		return fmt.Errorf("no repo_full_name in rollback data")
	}
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return err
	}
	_, err = ac.GitHub.Repositories.Delete(ctx, owner, repo)
	return err
}

// pushCodeAction pushes the git bundle file at bundle_path to the destination
// repository via the system git binary. It does not implement Reversible:
// a code push is permanent history.
type pushCodeAction struct {
	id, key               string
	bundlePath, targetRepo string
}

func newPushCodeAction(id, key string, p Params) (Action, error) {
	bundlePath, err := paramString(p, "bundle_path")
	if err != nil {
		return nil, err
	}
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	return &pushCodeAction{id: id, key: key, bundlePath: bundlePath, targetRepo: targetRepo}, nil
}

func (a *pushCodeAction) ID() string            { return a.id }
func (a *pushCodeAction) Type() string           { return "push_code" }
func (a *pushCodeAction) IdempotencyKey() string { return a.key }

func (a *pushCodeAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	if _, err := os.Stat(a.bundlePath); err != nil {
		return failResult(a, fmt.Errorf("bundle file not found: %s", a.bundlePath)), nil
	}
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	githubRepo, _, err := ac.GitHub.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return failResult(a, err), nil
	}

	tmpDir, err := os.MkdirTemp("", "gl2gh_repo_")
	if err != nil {
		return failResult(a, err), nil
	}
	defer os.RemoveAll(tmpDir)

	if err := runGit(ctx, "", "clone", a.bundlePath, tmpDir); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}

	authURL := strings.Replace(githubRepo.GetCloneURL(), "https://", "https://x-access-token:"+ac.GitHubToken+"@", 1)
	if err := runGit(ctx, tmpDir, "remote", "add", "github", authURL); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}
	if err := runGit(ctx, tmpDir, "push", "github", "--all"); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}
	if err := runGit(ctx, tmpDir, "push", "github", "--tags"); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"pushed":      true,
		"target_repo": a.targetRepo,
	}, ""), nil
}

func (a *pushCodeAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would push bundle %s to %s", a.bundlePath, a.targetRepo), nil, true), nil
}

// pushLFSAction uploads Git LFS objects from the export's LFS manifest.
type pushLFSAction struct {
	id, key                       string
	lfsObjectsPath, targetRepo    string
}

func newPushLFSAction(id, key string, p Params) (Action, error) {
	lfsObjectsPath, err := paramString(p, "lfs_objects_path")
	if err != nil {
		return nil, err
	}
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	return &pushLFSAction{id: id, key: key, lfsObjectsPath: lfsObjectsPath, targetRepo: targetRepo}, nil
}

func (a *pushLFSAction) ID() string            { return a.id }
func (a *pushLFSAction) Type() string           { return "push_lfs" }
func (a *pushLFSAction) IdempotencyKey() string { return a.key }

func (a *pushLFSAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	if _, err := os.Stat(a.lfsObjectsPath); err != nil {
		return newResult(a.id, a.Type(), true, map[string]any{"skipped": true, "reason": "No LFS objects found"}, ""), nil
	}

	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	githubRepo, _, err := ac.GitHub.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return failResult(a, err), nil
	}

	tmpDir, err := os.MkdirTemp("", "gl2gh_lfs_")
	if err != nil {
		return failResult(a, err), nil
	}
	defer os.RemoveAll(tmpDir)

	authURL := strings.Replace(githubRepo.GetCloneURL(), "https://", "https://x-access-token:"+ac.GitHubToken+"@", 1)
	if err := runGit(ctx, "", "clone", authURL, tmpDir); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}
	if err := runGit(ctx, tmpDir, "lfs", "install"); err != nil {
		return failResult(a, err), nil
	}
	if err := runGit(ctx, tmpDir, "lfs", "push", "--all", "origin"); err != nil {
		return failResult(a, redactToken(err, ac.GitHubToken)), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"lfs_configured": true,
		"target_repo":    a.targetRepo,
	}, ""), nil
}

func (a *pushLFSAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would push LFS objects to %s", a.targetRepo), nil, true), nil
}

// updateGitmodulesAction commits the rewritten .gitmodules content.
type updateGitmodulesAction struct {
	id, key                         string
	targetRepo, gitmodulesContent   string
}

func newUpdateGitmodulesAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	content, err := paramString(p, "gitmodules_content")
	if err != nil {
		return nil, err
	}
	return &updateGitmodulesAction{id: id, key: key, targetRepo: targetRepo, gitmodulesContent: content}, nil
}

func (a *updateGitmodulesAction) ID() string            { return a.id }
func (a *updateGitmodulesAction) Type() string           { return "update_gitmodules" }
func (a *updateGitmodulesAction) IdempotencyKey() string { return a.key }

func (a *updateGitmodulesAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	action := "updated"
	if _, _, resp, getErr := ac.GitHub.Repositories.GetContents(ctx, owner, repo, ".gitmodules", nil); getErr != nil {
		if resp != nil && resp.StatusCode == 404 {
			action = "created"
		} else {
			return failResult(a, getErr), nil
		}
	}

	if err := githubops.UpsertFile(ctx, ac.GitHub, owner, repo, "main", ".gitmodules", a.gitmodulesContent, "Update submodule URLs for GitHub migration"); err != nil {
		return failResult(a, err), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"gitmodules_updated": true,
		"target_repo":        a.targetRepo,
		"action":             action,
	}, ""), nil
}

func (a *updateGitmodulesAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", "Would update .gitmodules", nil, true), nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func runGitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func redactToken(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***REDACTED***"))
}
