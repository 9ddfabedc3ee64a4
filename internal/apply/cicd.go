package apply

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"

	"github.com/moti-malka/gl2gh-sub000/internal/githubops"
)

func init() {
	Register("commit_workflow", newCommitWorkflowAction)
	Register("create_environment", newCreateEnvironmentAction)
	Register("set_secret", newSetSecretPlaceholderAction)
	Register("set_variable", newSetVariablePlaceholderAction)
}

// commitWorkflowAction commits the translated GitHub Actions workflow YAML
// to .github/workflows/.
type commitWorkflowAction struct {
	id, key                 string
	targetRepo, targetPath  string
	branch, commitMessage   string
	content                 string
}

func newCommitWorkflowAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	targetPath, err := paramString(p, "target_path")
	if err != nil {
		return nil, err
	}
	content, err := paramString(p, "content")
	if err != nil {
		return nil, err
	}
	return &commitWorkflowAction{
		id: id, key: key,
		targetRepo: targetRepo, targetPath: targetPath,
		branch:        paramStringDefault(p, "branch", "main"),
		commitMessage: paramStringDefault(p, "commit_message", "Add workflow file"),
		content:       content,
	}, nil
}

func (a *commitWorkflowAction) ID() string             { return a.id }
func (a *commitWorkflowAction) Type() string            { return "commit_workflow" }
func (a *commitWorkflowAction) IdempotencyKey() string  { return a.key }

func (a *commitWorkflowAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	action := "created"
	if _, _, resp, err := ac.GitHub.Repositories.GetContents(ctx, owner, repo, a.targetPath, &github.RepositoryContentGetOptions{Ref: a.branch}); err == nil {
		action = "updated"
	} else if resp != nil && resp.StatusCode != 404 {
		return failResult(a, err), nil
	}

	if err := githubops.UpsertFile(ctx, ac.GitHub, owner, repo, a.branch, a.targetPath, a.content, a.commitMessage); err != nil {
		return failResult(a, err), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"action":      action,
		"path":        a.targetPath,
		"target_repo": a.targetRepo,
	}, ""), nil
}

func (a *commitWorkflowAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would commit workflow to %s", a.targetPath), nil, true), nil
}

// createEnvironmentAction creates a deployment environment.
type createEnvironmentAction struct {
	id, key               string
	targetRepo, envName   string
}

func newCreateEnvironmentAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	name, err := paramString(p, "name")
	if err != nil {
		return nil, err
	}
	return &createEnvironmentAction{id: id, key: key, targetRepo: targetRepo, envName: name}, nil
}

func (a *createEnvironmentAction) ID() string            { return a.id }
func (a *createEnvironmentAction) Type() string           { return "create_environment" }
func (a *createEnvironmentAction) IdempotencyKey() string { return a.key }

func (a *createEnvironmentAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	_, _, err = ac.GitHub.Repositories.CreateUpdateEnvironment(ctx, owner, repo, a.envName, &github.CreateUpdateEnvironment{})
	if err != nil {
		return failResult(a, err), nil
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"environment_name": a.envName,
		"target_repo":      a.targetRepo,
	}, ""), nil
}

func (a *createEnvironmentAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create environment %s", a.envName), nil, true), nil
}

// setSecretPlaceholderAction records the intent to set a repository or
// environment secret without attempting sealed-box encryption, since
// secret values are never exported in cleartext — this is a known gap,
// reported as success with a manual-follow-up note rather than a failure.
type setSecretPlaceholderAction struct {
	id, key, targetRepo, secretName, scope string
}

func newSetSecretPlaceholderAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	name, err := paramString(p, "name")
	if err != nil {
		return nil, err
	}
	return &setSecretPlaceholderAction{id: id, key: key, targetRepo: targetRepo, secretName: name, scope: paramStringDefault(p, "scope", "repository")}, nil
}

func (a *setSecretPlaceholderAction) ID() string            { return a.id }
func (a *setSecretPlaceholderAction) Type() string           { return "set_secret" }
func (a *setSecretPlaceholderAction) IdempotencyKey() string { return a.key }

func (a *setSecretPlaceholderAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	return newResult(a.id, a.Type(), true, map[string]any{
		"secret_name": a.secretName,
		"scope":       a.scope,
		"target_repo": a.targetRepo,
		"note":        "secret value not exported; create manually via GitHub settings",
	}, ""), nil
}

func (a *setSecretPlaceholderAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_skip", fmt.Sprintf("Secret %s requires manual entry", a.secretName), nil, true), nil
}

// setVariablePlaceholderAction creates a repository Actions variable with
// the given value (the scope parameter is only echoed in the outputs; no
// environment variable is created). A failed API call is reported as
// success with a manual-follow-up note rather than a failure.
type setVariablePlaceholderAction struct {
	id, key, targetRepo, varName, varValue, scope string
}

func newSetVariablePlaceholderAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	name, err := paramString(p, "name")
	if err != nil {
		return nil, err
	}
	value, err := paramString(p, "value")
	if err != nil {
		return nil, err
	}
	return &setVariablePlaceholderAction{id: id, key: key, targetRepo: targetRepo, varName: name, varValue: value, scope: paramStringDefault(p, "scope", "repository")}, nil
}

func (a *setVariablePlaceholderAction) ID() string            { return a.id }
func (a *setVariablePlaceholderAction) Type() string           { return "set_variable" }
func (a *setVariablePlaceholderAction) IdempotencyKey() string { return a.key }

func (a *setVariablePlaceholderAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	_, err = ac.GitHub.Actions.CreateRepoVariable(ctx, owner, repo, &github.ActionsVariable{
		Name:  a.varName,
		Value: a.varValue,
	})
	if err != nil {
		return newResult(a.id, a.Type(), true, map[string]any{
			"variable_name": a.varName,
			"scope":         a.scope,
			"target_repo":   a.targetRepo,
			"note":          "variable API call failed, needs manual creation: " + err.Error(),
		}, ""), nil
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"variable_name": a.varName,
		"scope":         a.scope,
		"target_repo":   a.targetRepo,
	}, ""), nil
}

func (a *setVariablePlaceholderAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would set variable %s", a.varName), nil, true), nil
}
