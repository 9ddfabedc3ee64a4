package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/go-github/v66/github"
)

func init() {
	Register("create_pull_request", newCreatePullRequestAction)
	Register("add_pr_comment", newAddPRCommentAction)
}

// createPullRequestAction creates a GitHub PR when the source head branch
// exists, falling back to an issue (prefixed "[MR] ") otherwise.
type createPullRequestAction struct {
	id, key                        string
	targetRepo, title, body        string
	head, base                     string
	labels, assignees              []string
	milestoneNumber                int
	gitlabMRID, originalAuthor     string
}

func newCreatePullRequestAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	title, err := paramString(p, "title")
	if err != nil {
		return nil, err
	}
	milestoneNumber := 0
	if v, ok := p["milestone"]; ok {
		if f, ok := v.(float64); ok {
			milestoneNumber = int(f)
		}
	}
	return &createPullRequestAction{
		id: id, key: key, targetRepo: targetRepo, title: title,
		body:            paramStringDefault(p, "body", ""),
		head:            paramStringDefault(p, "head", ""),
		base:            paramStringDefault(p, "base", "main"),
		labels:          paramStringSlice(p, "labels"),
		assignees:       paramStringSlice(p, "assignees"),
		milestoneNumber: milestoneNumber,
		gitlabMRID:      paramStringDefault(p, "gitlab_mr_id", ""),
		originalAuthor:  paramStringDefault(p, "original_author", ""),
	}, nil
}

func (a *createPullRequestAction) ID() string            { return a.id }
func (a *createPullRequestAction) Type() string           { return "create_pull_request" }
func (a *createPullRequestAction) IdempotencyKey() string { return a.key }

func (a *createPullRequestAction) attributedBody() string {
	if a.originalAuthor == "" {
		return a.body
	}
	return a.body + fmt.Sprintf("\n\n---\n*Originally created by @%s on GitLab*", a.originalAuthor)
}

func (a *createPullRequestAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	body := a.attributedBody()

	if a.head != "" {
		pr, _, err := ac.GitHub.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
			Title: github.String(a.title),
			Head:  github.String(a.head),
			Base:  github.String(a.base),
			Body:  github.String(body),
		})
		if err == nil {
			if a.gitlabMRID != "" {
				ac.SetIDMapping("merge_request", a.gitlabMRID, strconv.Itoa(pr.GetNumber()))
			}
			res := newResult(a.id, a.Type(), true, map[string]any{
				"pr_number":    pr.GetNumber(),
				"pr_url":       pr.GetHTMLURL(),
				"gitlab_mr_id": a.gitlabMRID,
				"created_as":   "pull_request",
			}, "")
			res.RollbackData = rollbackPayload(map[string]any{
				"target_repo": a.targetRepo,
				"pr_number":   pr.GetNumber(),
				"created_as":  "pull_request",
			})
			return res, nil
		}
	}

	issue, _, err := ac.GitHub.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title:     github.String("[MR] " + a.title),
		Body:      github.String(fmt.Sprintf("*This was a merge request on GitLab*\n\n%s", body)),
		Labels:    &a.labels,
		Assignees: &a.assignees,
	})
	if err != nil {
		return failResult(a, err), nil
	}
	if a.gitlabMRID != "" {
		ac.SetIDMapping("merge_request", a.gitlabMRID, strconv.Itoa(issue.GetNumber()))
	}
	res := newResult(a.id, a.Type(), true, map[string]any{
		"issue_number": issue.GetNumber(),
		"issue_url":    issue.GetHTMLURL(),
		"gitlab_mr_id": a.gitlabMRID,
		"created_as":   "issue",
		"note":         "Created as issue because branches do not exist",
	}, "")
	res.RollbackData = rollbackPayload(map[string]any{
		"target_repo":  a.targetRepo,
		"issue_number": issue.GetNumber(),
		"created_as":   "issue",
	})
	return res, nil
}

func (a *createPullRequestAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	if a.head != "" {
		return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create pull request %q", a.title), map[string]any{"gitlab_mr_id": a.gitlabMRID}, true), nil
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create issue for MR %q (no head branch)", a.title), map[string]any{"gitlab_mr_id": a.gitlabMRID}, true), nil
}

func (a *createPullRequestAction) Rollback(ctx context.Context, ac *Context, data json.RawMessage) error {
	payload, err := unmarshalPayload(data)
	if err != nil {
		return err
	}
	targetRepo, _ := payload["target_repo"].(string)
	createdAs, _ := payload["created_as"].(string)
	if targetRepo == "" || createdAs == "" {
		return fmt.Errorf("missing target_repo or created_as in rollback data")
	}
	owner, repo, err := splitRepo(targetRepo)
	if err != nil {
		return err
	}

	if createdAs == "pull_request" {
		number := intFromPayload(payload, "pr_number")
		if number == 0 {
			return fmt.Errorf("missing pr_number in rollback data")
		}
		_, _, err := ac.GitHub.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{State: github.String("closed")})
		if err != nil {
			return err
		}
		_, _, err = ac.GitHub.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
			Body: github.String("This pull request was closed as part of a migration rollback."),
		})
		return err
	}

	number := intFromPayload(payload, "issue_number")
	if number == 0 {
		return fmt.Errorf("missing issue_number in rollback data")
	}
	_, _, err = ac.GitHub.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: github.String("closed")})
	if err != nil {
		return err
	}
	_, _, err = ac.GitHub.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.String("This issue was closed as part of a migration rollback."),
	})
	return err
}

func intFromPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}

// addPRCommentAction posts a comment on a pull request (PRs share the
// issues comment endpoint in the GitHub API). Not Reversible: comments
// cannot be meaningfully un-posted through the API.
type addPRCommentAction struct {
	id, key                       string
	targetRepo, body              string
	prNumber                      int
	gitlabMRID, originalAuthor    string
}

func newAddPRCommentAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	body, err := paramString(p, "body")
	if err != nil {
		return nil, err
	}
	prNumber := 0
	if v, ok := p["pr_number"]; ok {
		if f, ok := v.(float64); ok {
			prNumber = int(f)
		}
	}
	return &addPRCommentAction{
		id: id, key: key, targetRepo: targetRepo, body: body, prNumber: prNumber,
		gitlabMRID:     paramStringDefault(p, "gitlab_mr_id", ""),
		originalAuthor: paramStringDefault(p, "original_author", ""),
	}, nil
}

func (a *addPRCommentAction) ID() string            { return a.id }
func (a *addPRCommentAction) Type() string           { return "add_pr_comment" }
func (a *addPRCommentAction) IdempotencyKey() string { return a.key }

func (a *addPRCommentAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	prNumber := a.prNumber
	if prNumber == 0 && a.gitlabMRID != "" {
		if mapped, ok := ac.GetIDMapping("merge_request", a.gitlabMRID); ok {
			if n, err := strconv.Atoi(mapped); err == nil {
				prNumber = n
			}
		}
	}
	if prNumber == 0 {
		return failResult(a, fmt.Errorf("could not resolve PR number for GitLab MR %s", a.gitlabMRID)), nil
	}

	body := a.body
	if a.originalAuthor != "" {
		body += fmt.Sprintf("\n\n*Originally posted by @%s on GitLab*", a.originalAuthor)
	}

	comment, _, err := ac.GitHub.Issues.CreateComment(ctx, owner, repo, prNumber, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return failResult(a, err), nil
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"comment_id": comment.GetID(),
		"pr_number":  prNumber,
	}, ""), nil
}

func (a *addPRCommentAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", "Would add comment to pull request", nil, true), nil
}
