package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
)

// deepSource is the enrichment-phase counterpart to discovery's source: the
// thin GitLab-endpoint surface enrichOne calls through forgeclient.Client
// to gather protected-branch/variable/webhook counts, CODEOWNERS presence,
// project feature flags, and container-file hints.
type deepSource struct {
	c *forgeclient.Client
}

type gitlabFileContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (s *deepSource) rawFile(ctx context.Context, projectID int64, path string) (string, bool, error) {
	enc := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/repository/files/" + url.PathEscape(path)
	var out gitlabFileContent
	_, err := s.c.Get(ctx, "sample_ci", enc, nil, &out)
	if err != nil {
		if fe, ok := err.(*forgeclient.Error); ok && fe.Kind == forgeclient.KindNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	if out.Encoding == "base64" {
		decoded, derr := base64.StdEncoding.DecodeString(out.Content)
		if derr != nil {
			return "", true, derr
		}
		return string(decoded), true, nil
	}
	return out.Content, true, nil
}

func (s *deepSource) ciContent(ctx context.Context, projectID int64) (string, bool, error) {
	return s.rawFile(ctx, projectID, ".gitlab-ci.yml")
}

func (s *deepSource) gitattributes(ctx context.Context, projectID int64) (string, bool, error) {
	return s.rawFile(ctx, projectID, ".gitattributes")
}

func (s *deepSource) gitmodules(ctx context.Context, projectID int64) (string, bool, error) {
	return s.rawFile(ctx, projectID, ".gitmodules")
}

func (s *deepSource) branchesCount(ctx context.Context, projectID int64) (int, bool, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/repository/branches"
	return s.c.PaginatedCount(ctx, "repo_profile", path, nil)
}

func (s *deepSource) tagsCount(ctx context.Context, projectID int64) (int, bool, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/repository/tags"
	return s.c.PaginatedCount(ctx, "repo_profile", path, nil)
}

func (s *deepSource) protectedBranchesCount(ctx context.Context, projectID int64) (int, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/protected_branches"
	n, _, err := s.c.PaginatedCount(ctx, "enrichment", path, nil)
	return n, err
}

func (s *deepSource) projectVariablesCount(ctx context.Context, projectID int64) (int, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/variables"
	n, _, err := s.c.PaginatedCount(ctx, "enrichment", path, nil)
	return n, err
}

func (s *deepSource) groupVariablesCount(ctx context.Context, groupID int64) (int, error) {
	if groupID == 0 {
		return 0, nil
	}
	path := "/api/v4/groups/" + strconv.FormatInt(groupID, 10) + "/variables"
	n, _, err := s.c.PaginatedCount(ctx, "enrichment", path, nil)
	return n, err
}

func (s *deepSource) webhooksCount(ctx context.Context, projectID int64) (int, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/hooks"
	n, _, err := s.c.PaginatedCount(ctx, "enrichment", path, nil)
	return n, err
}

func (s *deepSource) releasesCount(ctx context.Context, projectID int64) (int, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/releases"
	n, _, err := s.c.PaginatedCount(ctx, "enrichment", path, nil)
	return n, err
}

type gitlabProjectFeatures struct {
	RegistryEnabled bool   `json:"container_registry_enabled"`
	PackagesEnabled bool   `json:"packages_enabled"`
	WikiEnabled     bool   `json:"wiki_enabled"`
	PagesAccess     string `json:"pages_access_level"`
}

func (s *deepSource) projectFeatures(ctx context.Context, projectID int64) (gitlabProjectFeatures, error) {
	var out gitlabProjectFeatures
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10)
	_, err := s.c.Get(ctx, "enrichment", path, nil, &out)
	return out, err
}

// codeownersPaths are the locations GitLab and GitHub both recognize for a
// CODEOWNERS file.
var codeownersPaths = []string{"CODEOWNERS", ".gitlab/CODEOWNERS", "docs/CODEOWNERS"}

func (s *deepSource) hasCodeowners(ctx context.Context, projectID int64) (bool, error) {
	for _, p := range codeownersPaths {
		_, present, err := s.rawFile(ctx, projectID, p)
		if err != nil {
			return false, err
		}
		if present {
			return true, nil
		}
	}
	return false, nil
}

// containerFileHints are the filenames checked to flag a containerized project.
var containerFileHints = []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml"}

func (s *deepSource) containerHints(ctx context.Context, projectID int64) (hasDockerfile, hasCompose bool, err error) {
	for _, p := range containerFileHints {
		_, present, ferr := s.rawFile(ctx, projectID, p)
		if ferr != nil {
			return hasDockerfile, hasCompose, ferr
		}
		if !present {
			continue
		}
		switch {
		case p == "Dockerfile":
			hasDockerfile = true
		default:
			hasCompose = true
		}
	}
	return hasDockerfile, hasCompose, nil
}

type gitlabTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// hasK8sManifests probes the repository tree for a "k8s"/"kubernetes"
// directory, a lighter heuristic than fetching every manifest file.
func (s *deepSource) hasK8sManifests(ctx context.Context, projectID int64) (bool, error) {
	var entries []gitlabTreeEntry
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/repository/tree"
	err := s.c.Paginate(ctx, "enrichment", path, url.Values{"recursive": []string{"false"}}, 100, 100, func(raw json.RawMessage) (int, error) {
		var page []gitlabTreeEntry
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		entries = append(entries, page...)
		return len(page), nil
	})
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type != "tree" {
			continue
		}
		name := strings.ToLower(e.Path)
		if name == "k8s" || name == "kubernetes" || strings.HasSuffix(name, "/k8s") || strings.HasSuffix(name, "/kubernetes") {
			return true, nil
		}
	}
	return false, nil
}
