package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v66/github"
)

func init() {
	Register("set_branch_protection", newSetBranchProtectionAction)
	Register("add_collaborator", newAddCollaboratorAction)
	Register("create_webhook", newCreateWebhookAction)
}

// setBranchProtectionAction applies a branch protection ruleset to a
// destination repository branch.
type setBranchProtectionAction struct {
	id, key                                        string
	targetRepo, branch                             string
	requireCodeOwnerReviews, dismissStaleReviews    bool
	requiredApprovingReviewCount                    int
	requireStatusChecks, strictStatusChecks, enforceAdmins bool
	contexts                                        []string
}

func newSetBranchProtectionAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	branch, err := paramString(p, "branch")
	if err != nil {
		return nil, err
	}
	reviewCount := 1
	if v, ok := p["required_approving_review_count"]; ok {
		if f, ok := v.(float64); ok {
			reviewCount = int(f)
		}
	}
	return &setBranchProtectionAction{
		id: id, key: key, targetRepo: targetRepo, branch: branch,
		requireCodeOwnerReviews:       paramBoolDefault(p, "require_code_owner_reviews", false),
		requiredApprovingReviewCount:  reviewCount,
		dismissStaleReviews:           paramBoolDefault(p, "dismiss_stale_reviews", false),
		requireStatusChecks:          paramBoolDefault(p, "require_status_checks", false),
		strictStatusChecks:           paramBoolDefault(p, "strict", false),
		contexts:                     paramStringSlice(p, "contexts"),
		enforceAdmins:                paramBoolDefault(p, "enforce_admins", false),
	}, nil
}

func (a *setBranchProtectionAction) ID() string            { return a.id }
func (a *setBranchProtectionAction) Type() string           { return "set_branch_protection" }
func (a *setBranchProtectionAction) IdempotencyKey() string { return a.key }

func (a *setBranchProtectionAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	req := &github.ProtectionRequest{
		EnforceAdmins: a.enforceAdmins,
		RequiredPullRequestReviews: &github.PullRequestReviewsEnforcementRequest{
			DismissStaleReviews:          a.dismissStaleReviews,
			RequireCodeOwnerReviews:      a.requireCodeOwnerReviews,
			RequiredApprovingReviewCount: a.requiredApprovingReviewCount,
		},
	}
	if a.requireStatusChecks {
		req.RequiredStatusChecks = &github.RequiredStatusChecks{
			Strict:   a.strictStatusChecks,
			Contexts: a.contexts,
		}
	}

	_, _, err = ac.GitHub.Repositories.UpdateBranchProtection(ctx, owner, repo, a.branch, req)
	if err != nil {
		return failResult(a, fmt.Errorf("failed to set branch protection: %w", err)), nil
	}

	res := newResult(a.id, a.Type(), true, map[string]any{
		"branch":      a.branch,
		"target_repo": a.targetRepo,
		"protected":   true,
	}, "")
	res.RollbackData = rollbackPayload(map[string]any{
		"target_repo": a.targetRepo,
		"branch":      a.branch,
	})
	return res, nil
}

func (a *setBranchProtectionAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would protect branch %s in %s", a.branch, a.targetRepo), nil, true), nil
}

func (a *setBranchProtectionAction) Rollback(ctx context.Context, ac *Context, data json.RawMessage) error {
	payload, err := unmarshalPayload(data)
	if err != nil {
		return err
	}
	targetRepo, _ := payload["target_repo"].(string)
	branch, _ := payload["branch"].(string)
	if targetRepo == "" || branch == "" {
		return fmt.Errorf("missing target_repo or branch in rollback data")
	}
	owner, repo, err := splitRepo(targetRepo)
	if err != nil {
		return err
	}
	_, err = ac.GitHub.Repositories.RemoveBranchProtection(ctx, owner, repo, branch)
	if resp, ok := err.(*github.ErrorResponse); ok && resp.Response != nil && resp.Response.StatusCode == 404 {
		return nil
	}
	return err
}

// addCollaboratorAction invites a user onto the destination repository.
type addCollaboratorAction struct {
	id, key                       string
	targetRepo, username, permission string
}

func newAddCollaboratorAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	username, err := paramString(p, "username")
	if err != nil {
		return nil, err
	}
	return &addCollaboratorAction{
		id: id, key: key, targetRepo: targetRepo, username: username,
		permission: paramStringDefault(p, "permission", "push"),
	}, nil
}

func (a *addCollaboratorAction) ID() string            { return a.id }
func (a *addCollaboratorAction) Type() string           { return "add_collaborator" }
func (a *addCollaboratorAction) IdempotencyKey() string { return a.key }

func (a *addCollaboratorAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	_, _, err = ac.GitHub.Repositories.AddCollaborator(ctx, owner, repo, a.username, &github.RepositoryAddCollaboratorOptions{
		Permission: a.permission,
	})
	if err != nil {
		return failResult(a, fmt.Errorf("failed to add collaborator: %w", err)), nil
	}
	res := newResult(a.id, a.Type(), true, map[string]any{
		"username":    a.username,
		"permission":  a.permission,
		"target_repo": a.targetRepo,
	}, "")
	res.RollbackData = rollbackPayload(map[string]any{
		"target_repo": a.targetRepo,
		"username":    a.username,
	})
	return res, nil
}

func (a *addCollaboratorAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would add collaborator %s to %s", a.username, a.targetRepo), nil, true), nil
}

func (a *addCollaboratorAction) Rollback(ctx context.Context, ac *Context, data json.RawMessage) error {
	payload, err := unmarshalPayload(data)
	if err != nil {
		return err
	}
	targetRepo, _ := payload["target_repo"].(string)
	username, _ := payload["username"].(string)
	if targetRepo == "" || username == "" {
		return fmt.Errorf("missing target_repo or username in rollback data")
	}
	owner, repo, err := splitRepo(targetRepo)
	if err != nil {
		return err
	}
	_, err = ac.GitHub.Repositories.RemoveCollaborator(ctx, owner, repo, username)
	if resp, ok := err.(*github.ErrorResponse); ok && resp.Response != nil && resp.Response.StatusCode == 404 {
		return nil
	}
	return err
}

// createWebhookAction registers a push-event webhook on the destination
// repository. A missing secret is a hard failure requiring operator input
// — webhook secrets are never forwarded from the source forge.
type createWebhookAction struct {
	id, key                       string
	targetRepo, url, secret       string
	events                        []string
	contentType                   string
	active                        bool
}

func newCreateWebhookAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	url, err := paramString(p, "url")
	if err != nil {
		return nil, err
	}
	events := paramStringSlice(p, "events")
	if len(events) == 0 {
		events = []string{"push"}
	}
	return &createWebhookAction{
		id: id, key: key, targetRepo: targetRepo, url: url, events: events,
		secret:      paramStringDefault(p, "secret", ""),
		contentType: paramStringDefault(p, "content_type", "json"),
		active:      paramBoolDefault(p, "active", true),
	}, nil
}

func (a *createWebhookAction) ID() string            { return a.id }
func (a *createWebhookAction) Type() string           { return "create_webhook" }
func (a *createWebhookAction) IdempotencyKey() string { return a.key }

func (a *createWebhookAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	if a.secret == "" {
		return failResult(a, fmt.Errorf("webhook secret not provided. user input required")), nil
	}
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	hook, _, err := ac.GitHub.Repositories.CreateHook(ctx, owner, repo, &github.Hook{
		Events: a.events,
		Active: github.Bool(a.active),
		Config: &github.HookConfig{
			URL:         github.String(a.url),
			ContentType: github.String(a.contentType),
			Secret:      github.String(a.secret),
		},
	})
	if err != nil {
		return failResult(a, err), nil
	}

	res := newResult(a.id, a.Type(), true, map[string]any{
		"webhook_id":  hook.GetID(),
		"webhook_url": a.url,
		"events":      a.events,
		"target_repo": a.targetRepo,
	}, "")
	res.RollbackData = rollbackPayload(map[string]any{
		"target_repo": a.targetRepo,
		"webhook_id":  hook.GetID(),
	})
	return res, nil
}

func (a *createWebhookAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	if a.secret == "" {
		return simulationResult(a.id, a.Type(), "would_skip", "Webhook secret not provided", nil, false), nil
	}
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create webhook at %s", a.url), nil, true), nil
}

func (a *createWebhookAction) Rollback(ctx context.Context, ac *Context, data json.RawMessage) error {
	payload, err := unmarshalPayload(data)
	if err != nil {
		return err
	}
	targetRepo, _ := payload["target_repo"].(string)
	webhookID := intFromPayload(payload, "webhook_id")
	if targetRepo == "" || webhookID == 0 {
		return fmt.Errorf("missing target_repo or webhook_id in rollback data")
	}
	owner, repo, err := splitRepo(targetRepo)
	if err != nil {
		return err
	}
	_, err = ac.GitHub.Repositories.DeleteHook(ctx, owner, repo, int64(webhookID))
	if resp, ok := err.(*github.ErrorResponse); ok && resp.Response != nil && resp.Response.StatusCode == 404 {
		return nil
	}
	return err
}
