package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ciReservedKeys are the top-level GitLab CI document keys that are never
// job definitions.
var ciReservedKeys = map[string]bool{
	"stages": true, "variables": true, "workflow": true, "include": true,
	"default": true, "image": true, "services": true, "before_script": true,
	"after_script": true, "cache": true,
}

var ciVarMap = map[string]string{
	"CI_COMMIT_SHA":       "${{ github.sha }}",
	"CI_COMMIT_REF_NAME":  "${{ github.ref_name }}",
	"CI_COMMIT_BRANCH":    "${{ github.ref_name }}",
	"CI_COMMIT_TAG":       "${{ github.ref_name }}",
	"CI_PROJECT_NAME":     "${{ github.event.repository.name }}",
	"CI_PROJECT_PATH":     "${{ github.repository }}",
	"CI_PIPELINE_ID":      "${{ github.run_id }}",
	"CI_PIPELINE_IID":     "${{ github.run_number }}",
	"CI_JOB_ID":           "${{ github.job }}",
	"CI_REPOSITORY_URL":   "${{ github.repositoryUrl }}",
	"CI_DEFAULT_BRANCH":   "${{ github.event.repository.default_branch }}",
	"CI_REGISTRY":         "ghcr.io",
	"CI_REGISTRY_IMAGE":   "ghcr.io/${{ github.repository }}",
}

var registryURLRewrites = []struct{ old, new string }{
	{"registry.gitlab.com", "ghcr.io"},
	{"$CI_REGISTRY_IMAGE", "ghcr.io/${{ github.repository }}"},
	{"${CI_REGISTRY_IMAGE}", "ghcr.io/${{ github.repository }}"},
	{"$CI_REGISTRY", "ghcr.io"},
	{"${CI_REGISTRY}", "ghcr.io"},
}

var runnerTagMap = map[string]string{
	"docker": "ubuntu-latest", "linux": "ubuntu-latest", "ubuntu": "ubuntu-latest",
	"windows": "windows-latest", "macos": "macos-latest", "mac": "macos-latest",
}

var jobNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
var multiHyphen = regexp.MustCompile(`-+`)

// CICDInput is a GitLab CI document, already YAML-decoded into a generic
// map (callers that have the raw YAML text should unmarshal it themselves
// with yaml.v3 — kept explicit here rather than accepting a string so the
// transformer itself never needs its own YAML-error branch for malformed
// input beyond what gitlab CI parsing already guards, per the
// reproducibility rule in the package doc).
type CICDInput struct {
	Document map[string]any
}

// TransformCICD converts a GitLab CI document into a GitHub Actions
// workflow, field by field.
func TransformCICD(in CICDInput, now time.Time) *Result {
	res := NewResult(now)
	if in.Document == nil {
		res.AddError("missing gitlab_ci_yaml", nil)
		return res
	}

	var gaps []map[string]any
	addGap := func(gapType, message, action string, extra map[string]any) {
		g := map[string]any{"type": gapType, "message": message, "action": action}
		for k, v := range extra {
			g[k] = v
		}
		gaps = append(gaps, g)
	}

	stages := toStringSlice(in.Document["stages"])
	jobs := extractJobs(in.Document)
	variables := toStringMap(in.Document["variables"])

	env, envGaps := convertVariables(variables)
	gaps = append(gaps, envGaps...)

	triggers, triggerGaps := convertTriggers(jobs)
	gaps = append(gaps, triggerGaps...)

	workflow := map[string]any{
		"name": "CI",
		"on":   triggers,
		"jobs": map[string]any{},
	}
	if len(env) > 0 {
		workflow["env"] = env
	}

	ghJobs := workflow["jobs"].(map[string]any)
	jobNames := sortedKeys(jobs)
	for _, name := range jobNames {
		cfg := jobs[name]
		ghJob, jobGaps := convertJob(name, cfg, stages)
		gaps = append(gaps, jobGaps...)
		ghJobs[sanitizeJobName(name)] = ghJob
	}

	workflowYAML, err := yaml.Marshal(workflow)
	if err != nil {
		res.AddError(fmt.Sprintf("transformation error: %v", err), nil)
		return res
	}

	res.Data["workflow"] = workflow
	res.Data["workflow_yaml"] = string(workflowYAML)
	res.Metadata["conversion_gaps"] = gaps
	res.Metadata["jobs_converted"] = len(jobs)
	res.Metadata["stages"] = len(stages)
	return res
}

func extractJobs(doc map[string]any) map[string]map[string]any {
	jobs := map[string]map[string]any{}
	for key, value := range doc {
		if strings.HasPrefix(key, ".") {
			continue
		}
		if ciReservedKeys[key] {
			continue
		}
		m, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if _, hasScript := m["script"]; hasScript {
			jobs[key] = m
			continue
		}
		if _, hasTrigger := m["trigger"]; hasTrigger {
			jobs[key] = m
		}
	}
	return jobs
}

func convertJob(name string, cfg map[string]any, stages []string) (map[string]any, []map[string]any) {
	var gaps []map[string]any
	job := map[string]any{}

	runsOn, tagGaps := convertTags(toStringSlice(cfg["tags"]))
	job["runs-on"] = runsOn
	gaps = append(gaps, tagGaps...)

	needs, needGaps := convertNeeds(toStringSlice(cfg["needs"]), toStringOrEmpty(cfg["stage"]), stages)
	gaps = append(gaps, needGaps...)
	if len(needs) > 0 {
		job["needs"] = needs
	}

	if image, ok := cfg["image"]; ok {
		job["container"] = convertImage(image)
	}
	if services, ok := cfg["services"].([]any); ok {
		job["services"] = convertServices(services)
	}
	if jobVars := toStringMap(cfg["variables"]); len(jobVars) > 0 {
		env, envGaps := convertVariables(jobVars)
		gaps = append(gaps, envGaps...)
		job["env"] = env
	}

	if cond := convertRules(cfg); cond != "" {
		job["if"] = cond
	}

	steps, stepGaps := convertSteps(cfg)
	gaps = append(gaps, stepGaps...)
	job["steps"] = steps

	return job, gaps
}

func convertSteps(cfg map[string]any) ([]map[string]any, []map[string]any) {
	var gaps []map[string]any
	steps := []map[string]any{
		{"name": "Checkout code", "uses": "actions/checkout@v4"},
	}

	if before := cfg["before_script"]; before != nil {
		steps = append(steps, map[string]any{"name": "Before script", "run": scriptToRun(before, &gaps)})
	}
	if script := cfg["script"]; script != nil {
		steps = append(steps, map[string]any{"name": "Run script", "run": scriptToRun(script, &gaps)})
	}
	if after := cfg["after_script"]; after != nil {
		steps = append(steps, map[string]any{"name": "After script", "if": "always()", "run": scriptToRun(after, &gaps)})
	}

	if artifacts, ok := cfg["artifacts"].(map[string]any); ok {
		if step := convertArtifacts(artifacts); step != nil {
			steps = append(steps, step)
		}
	}
	if cache, ok := cfg["cache"].(map[string]any); ok {
		if step := convertCache(cache); step != nil {
			steps = append(steps[:1], append([]map[string]any{step}, steps[1:]...)...)
		}
	}

	return steps, gaps
}

func scriptToRun(script any, gaps *[]map[string]any) string {
	var text string
	switch v := script.(type) {
	case []any:
		lines := make([]string, 0, len(v))
		for _, l := range v {
			lines = append(lines, fmt.Sprintf("%v", l))
		}
		text = strings.Join(lines, "\n")
	default:
		text = fmt.Sprintf("%v", v)
	}
	return transformRegistryURLs(text, gaps)
}

func transformRegistryURLs(script string, gaps *[]map[string]any) string {
	transformed := script
	for _, rw := range registryURLRewrites {
		if strings.Contains(transformed, rw.old) {
			transformed = strings.ReplaceAll(transformed, rw.old, rw.new)
			if rw.old != "$CI_REGISTRY" && rw.old != "${CI_REGISTRY}" {
				*gaps = append(*gaps, map[string]any{
					"type":    "registry_url",
					"message": fmt.Sprintf("Transformed registry reference: %s → %s", rw.old, rw.new),
					"action":  "Verify registry URLs are correct for your setup",
				})
			}
		}
	}
	return transformed
}

func convertTriggers(jobs map[string]map[string]any) (map[string]any, []map[string]any) {
	var gaps []map[string]any
	hasPush, hasMR, hasSchedule := false, false, false

	for _, cfg := range jobs {
		if only, ok := cfg["only"].([]any); ok {
			for _, o := range only {
				s := fmt.Sprintf("%v", o)
				if s == "pushes" || s == "branches" {
					hasPush = true
				}
				if s == "merge_requests" {
					hasMR = true
				}
				if s == "schedules" {
					hasSchedule = true
				}
			}
		}
		if rules, ok := cfg["rules"].([]any); ok {
			for _, r := range rules {
				rm, ok := r.(map[string]any)
				if !ok {
					continue
				}
				ifExpr := fmt.Sprintf("%v", rm["if"])
				if strings.Contains(ifExpr, "$CI_PIPELINE_SOURCE") {
					if strings.Contains(ifExpr, "merge_request") {
						hasMR = true
					}
					if strings.Contains(ifExpr, "schedule") {
						hasSchedule = true
					}
					if strings.Contains(ifExpr, "push") {
						hasPush = true
					}
				}
			}
		}
	}

	triggers := map[string]any{}
	if !hasPush && !hasMR && !hasSchedule {
		triggers["push"] = map[string]any{"branches": []string{"main", "master"}}
		triggers["pull_request"] = map[string]any{"branches": []string{"main", "master"}}
		return triggers, gaps
	}
	if hasPush {
		triggers["push"] = map[string]any{"branches": []string{"main", "master"}}
	}
	if hasMR {
		triggers["pull_request"] = map[string]any{"branches": []string{"main", "master"}}
	}
	if hasSchedule {
		triggers["schedule"] = []map[string]any{{"cron": "0 0 * * *"}}
		gaps = append(gaps, map[string]any{
			"type":    "schedule",
			"message": "Schedule trigger detected but no cron expression found. Default daily schedule created.",
			"action":  "Review and update schedule cron expression in workflow file",
		})
	}
	return triggers, gaps
}

func convertVariables(vars map[string]string) (map[string]string, []map[string]any) {
	env := map[string]string{}
	var gaps []map[string]any
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := vars[key]
		if strings.HasPrefix(key, "CI_") {
			if gh, ok := ciVarMap[key]; ok {
				env[key] = gh
			} else {
				gaps = append(gaps, map[string]any{
					"type":     "variable",
					"variable": key,
					"message":  fmt.Sprintf("GitLab CI variable %s has no direct GitHub equivalent", key),
					"action":   "Review and manually set this variable or secret",
				})
			}
		} else {
			env[key] = value
		}
	}
	return env, gaps
}

func convertImage(image any) map[string]any {
	switch v := image.(type) {
	case string:
		return map[string]any{"image": v}
	case map[string]any:
		container := map[string]any{"image": toStringOrEmpty(v["name"])}
		if ep, ok := v["entrypoint"]; ok {
			container["options"] = fmt.Sprintf("--entrypoint %v", ep)
		}
		return container
	default:
		return map[string]any{"image": "ubuntu:latest"}
	}
}

func convertServices(services []any) map[string]any {
	out := map[string]any{}
	for i, svc := range services {
		switch v := svc.(type) {
		case string:
			name := strings.ReplaceAll(strings.SplitN(v, ":", 2)[0], "/", "-")
			out[name] = map[string]any{"image": v}
		case map[string]any:
			nameRaw := toStringOrEmpty(v["name"])
			if nameRaw == "" {
				nameRaw = fmt.Sprintf("service-%d", i)
			}
			name := strings.ReplaceAll(strings.SplitN(nameRaw, ":", 2)[0], "/", "-")
			entry := map[string]any{"image": toStringOrEmpty(v["name"])}
			if alias, ok := v["alias"]; ok {
				entry["options"] = fmt.Sprintf("--network-alias %v", alias)
			}
			out[name] = entry
		}
	}
	return out
}

func convertArtifacts(artifacts map[string]any) map[string]any {
	paths := toStringSlice(artifacts["paths"])
	if len(paths) == 0 {
		return nil
	}
	name := toStringOrEmpty(artifacts["name"])
	if name == "" {
		name = "artifacts"
	}
	return map[string]any{
		"name": "Upload artifacts",
		"uses": "actions/upload-artifact@v4",
		"with": map[string]any{"name": name, "path": strings.Join(paths, "\n")},
	}
}

func convertCache(cache map[string]any) map[string]any {
	paths := toStringSlice(cache["paths"])
	if len(paths) == 0 {
		return nil
	}
	key := toStringOrEmpty(cache["key"])
	if key == "" {
		key = "${{ runner.os }}-cache"
	}
	return map[string]any{
		"name": "Cache dependencies",
		"uses": "actions/cache@v4",
		"with": map[string]any{"path": strings.Join(paths, "\n"), "key": key},
	}
}

func convertRules(cfg map[string]any) string {
	var conditions []string

	if only, ok := cfg["only"].(map[string]any); ok {
		for _, ref := range toStringSlice(only["refs"]) {
			switch ref {
			case "merge_requests":
				conditions = append(conditions, "github.event_name == 'pull_request'")
			case "branches":
				conditions = append(conditions, "github.ref_type == 'branch'")
			case "tags":
				conditions = append(conditions, "github.ref_type == 'tag'")
			}
		}
	}
	if except, ok := cfg["except"].(map[string]any); ok {
		for _, ref := range toStringSlice(except["refs"]) {
			switch ref {
			case "merge_requests":
				conditions = append(conditions, "github.event_name != 'pull_request'")
			case "branches":
				conditions = append(conditions, "github.ref_type != 'branch'")
			}
		}
	}
	if rules, ok := cfg["rules"].([]any); ok {
		for _, r := range rules {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			ifExpr, ok := rm["if"].(string)
			if !ok {
				continue
			}
			conditions = append(conditions, convertIfCondition(ifExpr))
		}
	}
	return strings.Join(conditions, " && ")
}

var ifReplacements = []struct{ old, new string }{
	{"$CI_COMMIT_BRANCH", "github.ref_name"},
	{"$CI_COMMIT_TAG", "github.ref_name"},
	{"$CI_MERGE_REQUEST_ID", "github.event.pull_request.number"},
	{"$CI_PIPELINE_SOURCE", "github.event_name"},
	{"== 'merge_request_event'", "== 'pull_request'"},
}

func convertIfCondition(glIf string) string {
	ghIf := glIf
	for _, r := range ifReplacements {
		ghIf = strings.ReplaceAll(ghIf, r.old, r.new)
	}
	return ghIf
}

func convertNeeds(needs []string, stage string, stages []string) ([]string, []map[string]any) {
	if len(needs) > 0 {
		out := make([]string, len(needs))
		for i, n := range needs {
			out[i] = sanitizeJobName(n)
		}
		return out, nil
	}
	if stage == "" || len(stages) == 0 {
		return nil, nil
	}
	idx := indexOf(stages, stage)
	if idx <= 0 {
		return nil, nil
	}
	return nil, []map[string]any{{
		"type":    "stage_dependency",
		"stage":   stage,
		"message": fmt.Sprintf("Stage-based dependency for '%s' may need manual adjustment", stage),
		"action":  "Review job dependencies in workflow file",
	}}
}

func convertTags(tags []string) (string, []map[string]any) {
	if len(tags) == 0 {
		return "ubuntu-latest", nil
	}
	for _, tag := range tags {
		if runner, ok := runnerTagMap[strings.ToLower(tag)]; ok {
			return runner, nil
		}
	}
	return "ubuntu-latest", []map[string]any{{
		"type":    "runner_tags",
		"tags":    tags,
		"message": fmt.Sprintf("Custom runner tags %v may require self-hosted runner setup", tags),
		"action":  "Configure self-hosted runners or update runs-on value",
	}}
}

func sanitizeJobName(name string) string {
	s := jobNameSanitizer.ReplaceAllString(name, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return strings.ToLower(s)
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

func toStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}

func toStringOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
