package export

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// ReleasesComponent exports release metadata, links, sources, and evidence.
// Asset *binaries* are not downloaded here. Apply's upload_release_asset
// action uploads an asset from a local file path given in its parameters;
// it does not fetch assets from the source forge.
type ReleasesComponent struct{}

func (ReleasesComponent) Name() string { return ComponentReleases }

type gitlabRelease struct {
	TagName     string      `json:"tag_name"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CreatedAt   string      `json:"created_at"`
	ReleasedAt  string      `json:"released_at"`
	Author      *gitlabUser `json:"author"`
	Commit      struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"commit"`
	UpcomingRelease bool `json:"upcoming_release"`
	Assets          struct {
		Links []struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			URL      string `json:"url"`
			External bool   `json:"external"`
			LinkType string `json:"link_type"`
		} `json:"links"`
		Sources []struct {
			Format string `json:"format"`
			URL    string `json:"url"`
		} `json:"sources"`
	} `json:"assets"`
	Evidences []struct {
		SHA         string `json:"sha"`
		Filepath    string `json:"filepath"`
		CollectedAt string `json:"collected_at"`
	} `json:"evidences"`
}

func (ReleasesComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	releasesDir := filepath.Join(dir, "releases")
	summary := map[string]any{"project_id": project.ID}

	releases, err := listAll[gitlabRelease](ctx, client, ComponentReleases, projectPath(project.ID, "/releases"), nil)
	if err != nil {
		summary["releases_error"] = err.Error()
		if serr := saveJSON(releasesDir, "releases_metadata.json", summary); serr != nil {
			return Result{Status: "failed", Error: serr.Error()}, serr
		}
		return Result{Status: "completed", Summary: summary}, nil
	}

	if err := saveJSON(releasesDir, "releases.json", releases); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}

	if len(releases) == 0 {
		summary["releases"] = map[string]any{"total": 0, "note": "No releases found"}
	} else {
		summary["releases"] = map[string]any{"total": len(releases), "file": "releases.json"}
	}

	if err := saveJSON(releasesDir, "releases_metadata.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
