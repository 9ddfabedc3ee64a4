package apply

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v66/github"
)

func init() {
	Register("create_label", newCreateLabelAction)
	Register("create_milestone", newCreateMilestoneAction)
	Register("create_issue", newCreateIssueAction)
	Register("add_issue_comment", newAddIssueCommentAction)
}

// createLabelAction creates a label without checking for it first: a 422
// from GitHub (label already exists) is reported as success with
// exists=true, and any other error fails the action.
type createLabelAction struct {
	id, key                         string
	targetRepo, name, color, desc   string
}

func newCreateLabelAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	name, err := paramString(p, "name")
	if err != nil {
		return nil, err
	}
	return &createLabelAction{
		id: id, key: key, targetRepo: targetRepo, name: name,
		color: paramStringDefault(p, "color", "000000"),
		desc:  paramStringDefault(p, "description", ""),
	}, nil
}

func (a *createLabelAction) ID() string            { return a.id }
func (a *createLabelAction) Type() string           { return "create_label" }
func (a *createLabelAction) IdempotencyKey() string { return a.key }

func (a *createLabelAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	_, _, err = ac.GitHub.Issues.CreateLabel(ctx, owner, repo, &github.Label{
		Name:        github.String(a.name),
		Color:       github.String(a.color),
		Description: github.String(a.desc),
	})
	if err != nil {
		if ghErr, ok := err.(*github.ErrorResponse); ok && ghErr.Response != nil && ghErr.Response.StatusCode == 422 {
			return newResult(a.id, a.Type(), true, map[string]any{"label_name": a.name, "exists": true}, ""), nil
		}
		return failResult(a, err), nil
	}
	return newResult(a.id, a.Type(), true, map[string]any{"label_name": a.name}, ""), nil
}

func (a *createLabelAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err == nil {
		if _, _, getErr := ac.GitHub.Issues.GetLabel(ctx, owner, repo, a.name); getErr == nil {
			return simulationResult(a.id, a.Type(), "would_skip", fmt.Sprintf("Label %q already exists, would skip", a.name), map[string]any{"label_name": a.name, "exists": true}, true), nil
		}
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create label: %q", a.name), map[string]any{"label_name": a.name}, true), nil
}

// createMilestoneAction matches by title before creating, to avoid
// duplicates across resumed runs.
type createMilestoneAction struct {
	id, key, targetRepo, title string
	gitlabMilestoneID          string
}

func newCreateMilestoneAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	title, err := paramString(p, "title")
	if err != nil {
		return nil, err
	}
	return &createMilestoneAction{id: id, key: key, targetRepo: targetRepo, title: title, gitlabMilestoneID: paramStringDefault(p, "gitlab_milestone_id", "")}, nil
}

func (a *createMilestoneAction) ID() string            { return a.id }
func (a *createMilestoneAction) Type() string           { return "create_milestone" }
func (a *createMilestoneAction) IdempotencyKey() string { return a.key }

func (a *createMilestoneAction) findExisting(ctx context.Context, ac *Context, owner, repo string) (*github.Milestone, error) {
	milestones, _, err := ac.GitHub.Issues.ListMilestones(ctx, owner, repo, &github.MilestoneListOptions{State: "all"})
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if m.GetTitle() == a.title {
			return m, nil
		}
	}
	return nil, nil
}

func (a *createMilestoneAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	if existing, _ := a.findExisting(ctx, ac, owner, repo); existing != nil {
		if a.gitlabMilestoneID != "" {
			ac.SetIDMapping("milestone", a.gitlabMilestoneID, strconv.Itoa(existing.GetNumber()))
		}
		return newResult(a.id, a.Type(), true, map[string]any{"milestone_title": a.title, "exists": true, "milestone_number": existing.GetNumber()}, ""), nil
	}

	created, _, err := ac.GitHub.Issues.CreateMilestone(ctx, owner, repo, &github.Milestone{Title: github.String(a.title)})
	if err != nil {
		return newResult(a.id, a.Type(), true, map[string]any{
			"milestone_title": a.title,
			"gitlab_id":       a.gitlabMilestoneID,
			"note":            "milestone creation failed, needs manual setup: " + err.Error(),
		}, ""), nil
	}
	if a.gitlabMilestoneID != "" {
		ac.SetIDMapping("milestone", a.gitlabMilestoneID, strconv.Itoa(created.GetNumber()))
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"milestone_title":  a.title,
		"milestone_number": created.GetNumber(),
		"gitlab_id":        a.gitlabMilestoneID,
	}, ""), nil
}

func (a *createMilestoneAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err == nil {
		if existing, _ := a.findExisting(ctx, ac, owner, repo); existing != nil {
			return simulationResult(a.id, a.Type(), "would_skip", fmt.Sprintf("Milestone %q already exists, would skip", a.title), map[string]any{"milestone_title": a.title, "exists": true, "milestone_number": existing.GetNumber()}, true), nil
		}
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create milestone: %q", a.title), map[string]any{"milestone_title": a.title, "gitlab_id": a.gitlabMilestoneID}, true), nil
}

// createIssueAction recreates a source issue as a destination issue.
// Body/labels/assignees/milestone are expected to already be
// transform-package output.
type createIssueAction struct {
	id, key                          string
	targetRepo, title, body          string
	labels, assignees                []string
	milestoneNumber                  int
	gitlabIssueID, originalAuthor    string
}

func newCreateIssueAction(id, key string, p Params) (Action, error) {
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
	return &createIssueAction{
		id: id, key: key, targetRepo: targetRepo, title: title,
		body:            paramStringDefault(p, "body", ""),
		labels:          paramStringSlice(p, "labels"),
		assignees:       paramStringSlice(p, "assignees"),
		milestoneNumber: milestoneNumber,
		gitlabIssueID:   paramStringDefault(p, "gitlab_issue_id", ""),
		originalAuthor:  paramStringDefault(p, "original_author", ""),
	}, nil
}

func (a *createIssueAction) ID() string            { return a.id }
func (a *createIssueAction) Type() string           { return "create_issue" }
func (a *createIssueAction) IdempotencyKey() string { return a.key }

func (a *createIssueAction) fullBody() string {
	if a.originalAuthor == "" {
		return a.body
	}
	return a.body + fmt.Sprintf("\n\n---\n*Originally created by @%s on GitLab*", a.originalAuthor)
}

func (a *createIssueAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	req := &github.IssueRequest{
		Title:     github.String(a.title),
		Body:      github.String(a.fullBody()),
		Labels:    &a.labels,
		Assignees: &a.assignees,
	}
	if a.milestoneNumber > 0 {
		req.Milestone = github.Int(a.milestoneNumber)
	}
	issue, _, err := ac.GitHub.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return failResult(a, err), nil
	}
	if a.gitlabIssueID != "" {
		ac.SetIDMapping("issue", a.gitlabIssueID, strconv.Itoa(issue.GetNumber()))
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"issue_number":    issue.GetNumber(),
		"issue_url":       issue.GetHTMLURL(),
		"gitlab_issue_id": a.gitlabIssueID,
	}, ""), nil
}

func (a *createIssueAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err == nil {
		issues, _, listErr := ac.GitHub.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{State: "all"})
		if listErr == nil {
			for _, issue := range issues {
				if issue.GetTitle() == a.title {
					return simulationResult(a.id, a.Type(), "would_skip", fmt.Sprintf("Issue with title %q already exists as #%d, would skip", a.title, issue.GetNumber()), map[string]any{
						"title": a.title, "gitlab_issue_id": a.gitlabIssueID, "existing_issue_number": issue.GetNumber(),
					}, true), nil
				}
			}
		}
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create issue: %q in %s", a.title, a.targetRepo), map[string]any{
		"title": a.title, "gitlab_issue_id": a.gitlabIssueID,
	}, true), nil
}

// addIssueCommentAction resolves an issue number (directly or via the
// id-mapping table) and posts a comment.
type addIssueCommentAction struct {
	id, key                        string
	targetRepo, body               string
	issueNumber                    int
	gitlabIssueID, originalAuthor  string
}

func newAddIssueCommentAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	body, err := paramString(p, "body")
	if err != nil {
		return nil, err
	}
	issueNumber := 0
	if v, ok := p["issue_number"]; ok {
		if f, ok := v.(float64); ok {
			issueNumber = int(f)
		}
	}
	return &addIssueCommentAction{
		id: id, key: key, targetRepo: targetRepo, body: body, issueNumber: issueNumber,
		gitlabIssueID:  paramStringDefault(p, "gitlab_issue_id", ""),
		originalAuthor: paramStringDefault(p, "original_author", ""),
	}, nil
}

func (a *addIssueCommentAction) ID() string            { return a.id }
func (a *addIssueCommentAction) Type() string           { return "add_issue_comment" }
func (a *addIssueCommentAction) IdempotencyKey() string { return a.key }

func (a *addIssueCommentAction) resolveIssueNumber(ac *Context) (int, error) {
	if a.issueNumber > 0 {
		return a.issueNumber, nil
	}
	if a.gitlabIssueID != "" {
		if mapped, ok := ac.GetIDMapping("issue", a.gitlabIssueID); ok {
			if n, err := strconv.Atoi(mapped); err == nil {
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("could not resolve issue number for GitLab issue %s", a.gitlabIssueID)
}

func (a *addIssueCommentAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	issueNumber, err := a.resolveIssueNumber(ac)
	if err != nil {
		return failResult(a, err), nil
	}

	body := a.body
	if a.originalAuthor != "" {
		body += fmt.Sprintf("\n\n*Originally posted by @%s on GitLab*", a.originalAuthor)
	}

	comment, _, err := ac.GitHub.Issues.CreateComment(ctx, owner, repo, issueNumber, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return failResult(a, err), nil
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"comment_id":   comment.GetID(),
		"issue_number": issueNumber,
	}, ""), nil
}

func (a *addIssueCommentAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", "Would add comment to issue", nil, true), nil
}
