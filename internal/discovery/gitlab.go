package discovery

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
)

// gitlabGroup/gitlabProject mirror just the fields the walk needs out of
// GitLab's group/project list payloads.
type gitlabGroup struct {
	ID       int64  `json:"id"`
	FullPath string `json:"full_path"`
}

type gitlabProject struct {
	ID                int64  `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	Archived          bool   `json:"archived"`
	Visibility        string `json:"visibility"`
}

// source is the thin GitLab-endpoint surface the executor calls through
// forgeclient.Client: group/project listings plus the per-state MR/issue
// count calls.
type source struct {
	c *forgeclient.Client
}

func (s *source) healthCheck(ctx context.Context) error {
	_, err := s.c.Get(ctx, "health_check", "/api/v4/version", nil, nil)
	return err
}

func (s *source) resolveGroup(ctx context.Context, groupPath string) (int64, error) {
	var out gitlabGroup
	_, err := s.c.Get(ctx, "resolve_group", "/api/v4/groups/"+url.PathEscape(groupPath), nil, &out)
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (s *source) resolveProject(ctx context.Context, projectPath string) (*gitlabProject, error) {
	var out gitlabProject
	_, err := s.c.Get(ctx, "resolve_project", "/api/v4/projects/"+url.PathEscape(projectPath), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *source) listSubgroups(ctx context.Context, groupID int64) ([]gitlabGroup, error) {
	var groups []gitlabGroup
	path := "/api/v4/groups/" + strconv.FormatInt(groupID, 10) + "/subgroups"
	err := s.c.Paginate(ctx, "list_subgroups", path, nil, 100, 0, func(raw json.RawMessage) (int, error) {
		return decodeAppend(raw, &groups)
	})
	return groups, err
}

func (s *source) listAllGroups(ctx context.Context) ([]gitlabGroup, error) {
	var groups []gitlabGroup
	params := url.Values{"top_level_only": []string{"true"}}
	err := s.c.Paginate(ctx, "list_all_groups", "/api/v4/groups", params, 100, 0, func(raw json.RawMessage) (int, error) {
		return decodeAppend(raw, &groups)
	})
	return groups, err
}

func (s *source) listProjects(ctx context.Context, groupID int64) ([]gitlabProject, error) {
	var projects []gitlabProject
	path := "/api/v4/groups/" + strconv.FormatInt(groupID, 10) + "/projects"
	params := url.Values{"include_subgroups": []string{"false"}}
	err := s.c.Paginate(ctx, "list_projects", path, params, 100, 0, func(raw json.RawMessage) (int, error) {
		return decodeAppend(raw, &projects)
	})
	return projects, err
}

// detectCI fetches .gitlab-ci.yml and reports tri-state presence:
// 200 -> true, 404 -> false, 403 -> unknown (access denied), anything
// else -> unknown with the step error recorded.
func (s *source) detectCI(ctx context.Context, projectID int64) (present string, err error) {
	return s.detectFilePresence(ctx, projectID, ".gitlab-ci.yml", "detect_ci")
}

// detectLFS checks .gitattributes for an LFS filter marker first, falling
// back to the project's lfs_enabled flag.
func (s *source) detectLFS(ctx context.Context, projectID int64) (present string, err error) {
	return s.detectFilePresence(ctx, projectID, ".gitattributes", "detect_lfs")
}

func (s *source) detectFilePresence(ctx context.Context, projectID int64, file, step string) (string, error) {
	path := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/repository/files/" + url.PathEscape(file) + "/raw"
	_, err := s.c.Get(ctx, step, path, nil, nil)
	if err == nil {
		return "true", nil
	}
	if fe, ok := err.(*forgeclient.Error); ok {
		switch fe.Kind {
		case forgeclient.KindNotFound:
			return "false", nil
		case forgeclient.KindPermissionDenied:
			return "unknown", nil
		}
		return "unknown", err
	}
	return "unknown", err
}

type stateCounts struct {
	Open, Closed, Merged int
	OpenCeiling, ClosedCeiling, MergedCeiling bool
}

func (s *source) mrCounts(ctx context.Context, projectID int64) (stateCounts, error) {
	base := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/merge_requests"
	var counts stateCounts
	for _, st := range []string{"opened", "closed", "merged"} {
		n, ceiling, err := s.c.PaginatedCount(ctx, "get_mr_counts", base, url.Values{"state": []string{st}})
		if err != nil {
			return counts, err
		}
		switch st {
		case "opened":
			counts.Open, counts.OpenCeiling = n, ceiling
		case "closed":
			counts.Closed, counts.ClosedCeiling = n, ceiling
		case "merged":
			counts.Merged, counts.MergedCeiling = n, ceiling
		}
	}
	return counts, nil
}

func (s *source) issueCounts(ctx context.Context, projectID int64) (stateCounts, error) {
	base := "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + "/issues"
	var counts stateCounts
	for _, st := range []string{"opened", "closed"} {
		n, ceiling, err := s.c.PaginatedCount(ctx, "get_issue_counts", base, url.Values{"state": []string{st}})
		if err != nil {
			return counts, err
		}
		switch st {
		case "opened":
			counts.Open, counts.OpenCeiling = n, ceiling
		case "closed":
			counts.Closed, counts.ClosedCeiling = n, ceiling
		}
	}
	return counts, nil
}
