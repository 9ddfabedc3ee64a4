package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/go-github/v66/github"
)

func init() {
	Register("create_release", newCreateReleaseAction)
	Register("upload_release_asset", newUploadReleaseAssetAction)
}

// createReleaseAction recreates a source release as a destination release.
type createReleaseAction struct {
	id, key                              string
	targetRepo, tag, name, body          string
	draft, prerelease                    bool
	targetCommitish, gitlabReleaseID     string
}

func newCreateReleaseAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	tag, err := paramString(p, "tag")
	if err != nil {
		return nil, err
	}
	return &createReleaseAction{
		id: id, key: key, targetRepo: targetRepo, tag: tag,
		name:            paramStringDefault(p, "name", tag),
		body:            paramStringDefault(p, "body", ""),
		draft:           paramBoolDefault(p, "draft", false),
		prerelease:      paramBoolDefault(p, "prerelease", false),
		targetCommitish: paramStringDefault(p, "target_commitish", "main"),
		gitlabReleaseID: paramStringDefault(p, "gitlab_release_id", ""),
	}, nil
}

func (a *createReleaseAction) ID() string            { return a.id }
func (a *createReleaseAction) Type() string           { return "create_release" }
func (a *createReleaseAction) IdempotencyKey() string { return a.key }

func (a *createReleaseAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	release, _, err := ac.GitHub.Repositories.CreateRelease(ctx, owner, repo, &github.RepositoryRelease{
		TagName:         github.String(a.tag),
		Name:            github.String(a.name),
		Body:            github.String(a.body),
		Draft:           github.Bool(a.draft),
		Prerelease:      github.Bool(a.prerelease),
		TargetCommitish: github.String(a.targetCommitish),
	})
	if err != nil {
		return failResult(a, err), nil
	}
	if a.gitlabReleaseID != "" {
		ac.SetIDMapping("release", a.gitlabReleaseID, strconv.FormatInt(release.GetID(), 10))
	}
	return newResult(a.id, a.Type(), true, map[string]any{
		"release_id":        release.GetID(),
		"release_url":       release.GetHTMLURL(),
		"tag_name":          a.tag,
		"gitlab_release_id": a.gitlabReleaseID,
	}, ""), nil
}

func (a *createReleaseAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would create release %s", a.tag), map[string]any{"tag_name": a.tag}, true), nil
}

// uploadReleaseAssetAction attaches a build artifact to a release located
// either by tag or by the id-mapping table.
type uploadReleaseAssetAction struct {
	id, key                                      string
	targetRepo, releaseTag, gitlabReleaseID      string
	assetPath, assetName, contentType            string
}

func newUploadReleaseAssetAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	assetPath, err := paramString(p, "asset_path")
	if err != nil {
		return nil, err
	}
	return &uploadReleaseAssetAction{
		id: id, key: key, targetRepo: targetRepo, assetPath: assetPath,
		releaseTag:      paramStringDefault(p, "release_tag", ""),
		gitlabReleaseID: paramStringDefault(p, "gitlab_release_id", ""),
		assetName:       paramStringDefault(p, "asset_name", ""),
		contentType:     paramStringDefault(p, "content_type", "application/octet-stream"),
	}, nil
}

func (a *uploadReleaseAssetAction) ID() string            { return a.id }
func (a *uploadReleaseAssetAction) Type() string           { return "upload_release_asset" }
func (a *uploadReleaseAssetAction) IdempotencyKey() string { return a.key }

func (a *uploadReleaseAssetAction) resolveRelease(ctx context.Context, ac *Context, owner, repo string) (*github.RepositoryRelease, error) {
	if a.releaseTag != "" {
		releases, _, err := ac.GitHub.Repositories.ListReleases(ctx, owner, repo, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range releases {
			if r.GetTagName() == a.releaseTag {
				return r, nil
			}
		}
		return nil, fmt.Errorf("could not find GitHub release with tag: %s", a.releaseTag)
	}
	if a.gitlabReleaseID != "" {
		mapped, ok := ac.GetIDMapping("release", a.gitlabReleaseID)
		if !ok {
			return nil, fmt.Errorf("could not find GitHub release for GitLab release %s", a.gitlabReleaseID)
		}
		id, err := strconv.ParseInt(mapped, 10, 64)
		if err != nil {
			return nil, err
		}
		release, _, err := ac.GitHub.Repositories.GetRelease(ctx, owner, repo, id)
		return release, err
	}
	return nil, fmt.Errorf("either release_tag or gitlab_release_id must be provided")
}

func (a *uploadReleaseAssetAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}
	f, err := os.Open(a.assetPath)
	if err != nil {
		return failResult(a, fmt.Errorf("asset file not found: %s", a.assetPath)), nil
	}
	defer f.Close()

	release, err := a.resolveRelease(ctx, ac, owner, repo)
	if err != nil {
		return failResult(a, err), nil
	}

	assetName := a.assetName
	if assetName == "" {
		assetName = filepath.Base(a.assetPath)
	}

	asset, _, err := ac.GitHub.Repositories.UploadReleaseAsset(ctx, owner, repo, release.GetID(), &github.UploadOptions{
		Name:      assetName,
		MediaType: a.contentType,
	}, f)
	if err != nil {
		return failResult(a, err), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"asset_id":   asset.GetID(),
		"asset_name": assetName,
		"release_tag": a.releaseTag,
	}, ""), nil
}

func (a *uploadReleaseAssetAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would upload asset %s", a.assetPath), nil, true), nil
}
