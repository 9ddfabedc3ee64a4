package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// RepositoryComponent exports branch/tag listings plus LFS and submodule
// detection. It never shells out to `git` and does not create a bundle of
// the repository content. Apply's push_code action pushes an existing
// bundle file named by its bundle_path parameter and does not create one
// either.
type RepositoryComponent struct{}

func (RepositoryComponent) Name() string { return ComponentRepository }

type repoProjectInfo struct {
	HTTPURL       string `json:"http_url_to_repo"`
	SSHURL        string `json:"ssh_url_to_repo"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
	EmptyRepo     bool   `json:"empty_repo"`
}

type gitlabBranch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Merged    bool   `json:"merged"`
	Default   bool   `json:"default"`
	Commit    struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"commit"`
}

type gitlabTag struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Protected bool `json:"protected"`
	Release *struct{} `json:"release"`
	Commit  struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"commit"`
}

func (RepositoryComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	repoDir := filepath.Join(dir, "repository")

	var info repoProjectInfo
	if _, err := client.Get(ctx, ComponentRepository, projectPath(project.ID, ""), nil, &info); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}

	summary := map[string]any{
		"project_id":     project.ID,
		"http_url":       info.HTTPURL,
		"ssh_url":        info.SSHURL,
		"default_branch": info.DefaultBranch,
		"archived":       info.Archived,
		"empty_repo":     info.EmptyRepo,
	}

	if info.EmptyRepo {
		summary["status"] = "skipped"
		summary["reason"] = "empty_repository"
		return Result{Status: "skipped", Summary: summary}, nil
	}

	branches, berr := listAll[gitlabBranch](ctx, client, ComponentRepository, projectPath(project.ID, "/repository/branches"), nil)
	if berr != nil {
		summary["branches_error"] = berr.Error()
	} else {
		protected := 0
		for _, b := range branches {
			if b.Protected {
				protected++
			}
		}
		if err := saveJSON(repoDir, "branches.json", branches); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["branches"] = map[string]any{"total": len(branches), "protected": protected, "file": "branches.json"}
	}

	tags, terr := listAll[gitlabTag](ctx, client, ComponentRepository, projectPath(project.ID, "/repository/tags"), nil)
	if terr != nil {
		summary["tags_error"] = terr.Error()
	} else {
		protected := 0
		for _, t := range tags {
			if t.Protected {
				protected++
			}
		}
		if err := saveJSON(repoDir, "tags.json", tags); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["tags"] = map[string]any{"total": len(tags), "protected": protected, "file": "tags.json"}
	}

	attrs, hasAttrs, aerr := fileContent(ctx, client, ComponentRepository, project.ID, ".gitattributes")
	if aerr != nil {
		summary["lfs_error"] = aerr.Error()
	} else {
		lfsEnabled := false
		var patterns []string
		if hasAttrs {
			for _, line := range strings.Split(attrs, "\n") {
				if strings.Contains(line, "filter=lfs") {
					lfsEnabled = true
					patterns = append(patterns, strings.TrimSpace(line))
				}
			}
		}
		summary["lfs"] = map[string]any{"enabled": lfsEnabled, "patterns": patterns}
	}

	submodules, hasSubmodules, merr := gitmodulesSummary(ctx, client, project.ID)
	if merr != nil {
		summary["submodules_error"] = merr.Error()
	} else {
		summary["submodules"] = map[string]any{
			"has_submodules": hasSubmodules,
			"count":          len(submodules),
			"submodules":     submodules,
		}
	}

	if err := saveJSON(repoDir, "repository.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}

// gitmodulesSummary parses .gitmodules into one map per [submodule ...]
// section via a line-by-line INI-style parse.
func gitmodulesSummary(ctx context.Context, client *forgeclient.Client, projectID int64) ([]map[string]string, bool, error) {
	content, present, err := fileContent(ctx, client, ComponentRepository, projectID, ".gitmodules")
	if err != nil || !present {
		return nil, present, err
	}
	var subs []map[string]string
	var current map[string]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[submodule"):
			if current != nil {
				subs = append(subs, current)
			}
			current = map[string]string{}
		case strings.Contains(line, "=") && current != nil:
			parts := strings.SplitN(line, "=", 2)
			current[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	if current != nil {
		subs = append(subs, current)
	}
	return subs, true, nil
}
