// Package githubops holds small GitHub REST helpers shared by multiple
// Apply actions: go-github's contents endpoint wrapped with
// create-vs-update resolution.
package githubops

import (
	"context"

	"github.com/google/go-github/v66/github"
)

// UpsertFile creates path on branch if it does not exist, or updates it in
// place (matching sha) if it does. Used by Apply actions that write a single
// file to the destination repository: the submodule rewrite, CI workflow
// commit, attachment copy, and migration-metadata preservation actions.
func UpsertFile(ctx context.Context, client *github.Client, owner, repo, branch, path, content, message string) error {
	var sha *string
	file, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err == nil && file != nil {
		s := file.GetSHA()
		sha = &s
	} else if resp != nil && resp.StatusCode != 404 {
		return err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
		SHA:     sha,
	}
	if sha == nil {
		_, _, err = client.Repositories.CreateFile(ctx, owner, repo, path, opts)
		return err
	}
	_, _, err = client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	return err
}
