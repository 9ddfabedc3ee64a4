package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// SettingsComponent exports protected branches/tags, members, webhooks,
// deploy keys, deploy tokens, and core project settings.
type SettingsComponent struct{}

func (SettingsComponent) Name() string { return ComponentSettings }

type gitlabProjectSettings struct {
	Name                                        string   `json:"name"`
	Path                                        string   `json:"path"`
	Description                                 string   `json:"description"`
	Visibility                                  string   `json:"visibility"`
	DefaultBranch                               string   `json:"default_branch"`
	Topics                                       []string `json:"topics"`
	Archived                                    bool     `json:"archived"`
	IssuesEnabled                               bool     `json:"issues_enabled"`
	MergeRequestsEnabled                        bool     `json:"merge_requests_enabled"`
	WikiEnabled                                 bool     `json:"wiki_enabled"`
	SnippetsEnabled                             bool     `json:"snippets_enabled"`
	ContainerRegistryEnabled                    bool     `json:"container_registry_enabled"`
	PackagesEnabled                             bool     `json:"packages_enabled"`
	OnlyAllowMergeIfPipelineSucceeds            bool     `json:"only_allow_merge_if_pipeline_succeeds"`
	OnlyAllowMergeIfAllDiscussionsAreResolved   bool     `json:"only_allow_merge_if_all_discussions_are_resolved"`
	AutocloseReferencedIssues                   bool     `json:"autoclose_referenced_issues"`
	RemoveSourceBranchAfterMerge                bool     `json:"remove_source_branch_after_merge"`
	RequestAccessEnabled                        bool     `json:"request_access_enabled"`
	MergeMethod                                 string   `json:"merge_method"`
	CIConfigPath                                string   `json:"ci_config_path"`
	BuildGitStrategy                            string   `json:"build_git_strategy"`
	BuildTimeout                                int      `json:"build_timeout"`
	CIDefaultGitDepth                           int      `json:"ci_default_git_depth"`
	PublicJobs                                  bool     `json:"public_jobs"`
	EmailsDisabled                               bool     `json:"emails_disabled"`
}

type gitlabAccessLevel struct {
	AccessLevel            int    `json:"access_level"`
	AccessLevelDescription string `json:"access_level_description"`
}

type gitlabProtectedBranch struct {
	Name                     string              `json:"name"`
	PushAccessLevels         []gitlabAccessLevel `json:"push_access_levels"`
	MergeAccessLevels        []gitlabAccessLevel `json:"merge_access_levels"`
	AllowForcePush           bool                `json:"allow_force_push"`
	CodeOwnerApprovalRequired bool               `json:"code_owner_approval_required"`
}

type gitlabProtectedTag struct {
	Name               string              `json:"name"`
	CreateAccessLevels []gitlabAccessLevel `json:"create_access_levels"`
}

type gitlabMember struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	AccessLevel int    `json:"access_level"`
	ExpiresAt   string `json:"expires_at"`
}

type gitlabWebhook struct {
	ID                    int64  `json:"id"`
	URL                   string `json:"url"`
	PushEvents            bool   `json:"push_events"`
	IssuesEvents          bool   `json:"issues_events"`
	MergeRequestsEvents   bool   `json:"merge_requests_events"`
	WikiPageEvents        bool   `json:"wiki_page_events"`
	TagPushEvents         bool   `json:"tag_push_events"`
	NoteEvents            bool   `json:"note_events"`
	JobEvents             bool   `json:"job_events"`
	PipelineEvents        bool   `json:"pipeline_events"`
	DeploymentEvents      bool   `json:"deployment_events"`
	ReleasesEvents        bool   `json:"releases_events"`
	EnableSSLVerification bool   `json:"enable_ssl_verification"`
	CreatedAt             string `json:"created_at"`
}

type gitlabDeployKey struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Key       string `json:"key"`
	CanPush   bool   `json:"can_push"`
	CreatedAt string `json:"created_at"`
}

type gitlabDeployToken struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Username  string   `json:"username"`
	ExpiresAt string   `json:"expires_at"`
	Scopes    []string `json:"scopes"`
	Revoked   bool     `json:"revoked"`
}

var accessLevelNames = map[int]string{10: "Guest", 20: "Reporter", 30: "Developer", 40: "Maintainer", 50: "Owner"}

func (SettingsComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	settingsDir := filepath.Join(dir, "settings")
	summary := map[string]any{"project_id": project.ID}

	var projectSettings gitlabProjectSettings
	if _, err := client.Get(ctx, ComponentSettings, projectPath(project.ID, ""), nil, &projectSettings); err != nil {
		summary["project_settings_error"] = err.Error()
	} else {
		if err := saveJSON(settingsDir, "project_settings.json", projectSettings); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["project_settings"] = projectSettings
	}

	branchProtections, bperr := listAll[gitlabProtectedBranch](ctx, client, ComponentSettings, projectPath(project.ID, "/protected_branches"), nil)
	if bperr != nil {
		summary["branch_protections_error"] = bperr.Error()
	} else {
		if err := saveJSON(settingsDir, "protected_branches.json", branchProtections); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["branch_protections"] = map[string]any{"total": len(branchProtections), "file": "protected_branches.json"}
	}

	tagProtections, tperr := listAll[gitlabProtectedTag](ctx, client, ComponentSettings, projectPath(project.ID, "/protected_tags"), nil)
	if tperr != nil {
		summary["tag_protections_error"] = tperr.Error()
	} else {
		if err := saveJSON(settingsDir, "protected_tags.json", tagProtections); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["tag_protections"] = map[string]any{"total": len(tagProtections), "file": "protected_tags.json"}
	}

	members, merr := listAll[gitlabMember](ctx, client, ComponentSettings, projectPath(project.ID, "/members/all"), nil)
	if merr != nil {
		summary["members_error"] = merr.Error()
	} else {
		if err := saveJSON(settingsDir, "members.json", members); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		counts := map[string]int{}
		for _, m := range members {
			name, ok := accessLevelNames[m.AccessLevel]
			if !ok {
				name = "Level_" + strconv.Itoa(m.AccessLevel)
			}
			counts[name]++
		}
		summary["members"] = map[string]any{"total": len(members), "access_levels": counts, "file": "members.json"}
	}

	webhooks, werr := listAll[gitlabWebhook](ctx, client, ComponentSettings, projectPath(project.ID, "/hooks"), nil)
	if werr != nil {
		summary["webhooks_error"] = werr.Error()
	} else {
		redacted := make([]map[string]any, 0, len(webhooks))
		for _, w := range webhooks {
			redacted = append(redacted, map[string]any{
				"id": w.ID, "url": forgeclient.RedactURL(w.URL), "push_events": w.PushEvents,
				"issues_events": w.IssuesEvents, "merge_requests_events": w.MergeRequestsEvents,
				"wiki_page_events": w.WikiPageEvents, "tag_push_events": w.TagPushEvents, "note_events": w.NoteEvents,
				"job_events": w.JobEvents, "pipeline_events": w.PipelineEvents, "deployment_events": w.DeploymentEvents,
				"releases_events": w.ReleasesEvents, "enable_ssl_verification": w.EnableSSLVerification,
				"created_at": w.CreatedAt, "note": "Token/secret not exported for security",
			})
		}
		if err := saveJSON(settingsDir, "webhooks.json", redacted); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["webhooks"] = map[string]any{"total": len(webhooks), "file": "webhooks.json"}
	}

	deployKeys, dkerr := listAll[gitlabDeployKey](ctx, client, ComponentSettings, projectPath(project.ID, "/deploy_keys"), nil)
	if dkerr != nil {
		summary["deploy_keys_error"] = dkerr.Error()
	} else {
		if err := saveJSON(settingsDir, "deploy_keys.json", deployKeys); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["deploy_keys"] = map[string]any{"total": len(deployKeys), "file": "deploy_keys.json"}
	}

	var deployTokens []gitlabDeployToken
	if _, dterr := client.Get(ctx, ComponentSettings, projectPath(project.ID, "/deploy_tokens"), nil, &deployTokens); dterr != nil {
		summary["deploy_tokens"] = map[string]any{"total": 0, "note": "Deploy tokens API not accessible or not available"}
	} else {
		redacted := make([]map[string]any, 0, len(deployTokens))
		for _, t := range deployTokens {
			redacted = append(redacted, map[string]any{
				"id": t.ID, "name": t.Name, "username": t.Username, "expires_at": t.ExpiresAt,
				"scopes": t.Scopes, "revoked": t.Revoked, "note": "Token value not exported for security",
			})
		}
		if err := saveJSON(settingsDir, "deploy_tokens.json", redacted); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["deploy_tokens"] = map[string]any{"total": len(deployTokens), "file": "deploy_tokens.json"}
	}

	if err := saveJSON(settingsDir, "settings_metadata.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
