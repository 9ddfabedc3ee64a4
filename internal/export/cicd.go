package export

import (
	"context"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// CICDComponent exports .gitlab-ci.yml, variable metadata, environments,
// pipeline schedules, and recent pipeline history.
type CICDComponent struct{}

func (CICDComponent) Name() string { return ComponentCICD }

type gitlabVariable struct {
	Key              string `json:"key"`
	VariableType     string `json:"variable_type"`
	Protected        bool   `json:"protected"`
	Masked           bool   `json:"masked"`
	EnvironmentScope string `json:"environment_scope"`
}

type gitlabEnvironment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	ExternalURL string `json:"external_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type gitlabSchedule struct {
	ID           int64  `json:"id"`
	Description  string `json:"description"`
	Ref          string `json:"ref"`
	Cron         string `json:"cron"`
	CronTimezone string `json:"cron_timezone"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	Owner        struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"owner"`
}

type gitlabPipeline struct {
	ID        int64  `json:"id"`
	IID       int64  `json:"iid"`
	Ref       string `json:"ref"`
	SHA       string `json:"sha"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	WebURL    string `json:"web_url"`
}

const maxPipelineHistory = 100

func (CICDComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	cicdDir := filepath.Join(dir, "cicd")
	summary := map[string]any{"project_id": project.ID}

	content, present, err := fileContent(ctx, client, ComponentCICD, project.ID, ".gitlab-ci.yml")
	switch {
	case err != nil:
		summary["ci_config_error"] = err.Error()
	case !present:
		summary["ci_config"] = map[string]any{"found": false, "reason": "file_not_found"}
	default:
		if werr := writeTextFile(cicdDir, ".gitlab-ci.yml", content); werr != nil {
			return Result{Status: "failed", Error: werr.Error()}, werr
		}
		var includes []string
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "include:") || strings.Contains(trimmed, "include:") {
				includes = append(includes, trimmed)
			}
		}
		summary["ci_config"] = map[string]any{
			"found":         true,
			"file":          ".gitlab-ci.yml",
			"size_bytes":    len(content),
			"has_includes":  len(includes) > 0,
			"include_lines": includes,
		}
	}

	variables, verr := listAll[gitlabVariable](ctx, client, ComponentCICD, projectPath(project.ID, "/variables"), nil)
	if verr != nil {
		summary["variables_error"] = verr.Error()
	} else {
		protected, masked := 0, 0
		redacted := make([]map[string]any, 0, len(variables))
		for _, v := range variables {
			if v.Protected {
				protected++
			}
			if v.Masked {
				masked++
			}
			redacted = append(redacted, map[string]any{
				"key":               v.Key,
				"variable_type":     v.VariableType,
				"protected":         v.Protected,
				"masked":            v.Masked,
				"environment_scope": v.EnvironmentScope,
				"note":              "Value not exported for security",
			})
		}
		if err := saveJSON(cicdDir, "variables.json", redacted); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["variables"] = map[string]any{"total": len(variables), "protected": protected, "masked": masked, "file": "variables.json"}
	}

	environments, eerr := listAll[gitlabEnvironment](ctx, client, ComponentCICD, projectPath(project.ID, "/environments"), nil)
	if eerr != nil {
		summary["environments_error"] = eerr.Error()
	} else {
		if err := saveJSON(cicdDir, "environments.json", environments); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["environments"] = map[string]any{"total": len(environments), "file": "environments.json"}
	}

	schedules, serr := listAll[gitlabSchedule](ctx, client, ComponentCICD, projectPath(project.ID, "/pipeline_schedules"), nil)
	if serr != nil {
		summary["schedules_error"] = serr.Error()
	} else {
		active := 0
		for _, s := range schedules {
			if s.Active {
				active++
			}
		}
		if err := saveJSON(cicdDir, "schedules.json", schedules); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["schedules"] = map[string]any{"total": len(schedules), "active": active, "file": "schedules.json"}
	}

	pipelines, perr := listAll[gitlabPipeline](ctx, client, ComponentCICD, projectPath(project.ID, "/pipelines"),
		url.Values{"order_by": []string{"id"}, "sort": []string{"desc"}})
	if perr != nil {
		summary["pipelines_error"] = perr.Error()
	} else {
		if len(pipelines) > maxPipelineHistory {
			pipelines = pipelines[:maxPipelineHistory]
		}
		statusCounts := map[string]int{}
		for _, p := range pipelines {
			statusCounts[p.Status]++
		}
		if err := saveJSON(cicdDir, "pipelines.json", pipelines); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["pipelines"] = map[string]any{
			"total": len(pipelines), "status_counts": statusCounts, "file": "pipelines.json",
			"note": "Limited to 100 most recent pipelines",
		}
	}

	if err := saveJSON(cicdDir, "cicd.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
