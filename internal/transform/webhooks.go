package transform

import (
	"fmt"
	"sort"
	"time"
)

// webhookEventMapping maps a GitLab webhook boolean-flag event key to the
// GitHub event names it implies.
var webhookEventMapping = map[string][]string{
	"push_events":                 {"push"},
	"tag_push_events":              {"create"},
	"issues_events":                {"issues"},
	"confidential_issues_events":   {"issues"},
	"merge_requests_events":        {"pull_request"},
	"note_events":                  {"issue_comment", "pull_request_review_comment"},
	"confidential_note_events":     {"issue_comment", "pull_request_review_comment"},
	"wiki_page_events":             {"gollum"},
	"pipeline_events":              {"workflow_run", "check_suite"},
	"job_events":                   {"workflow_job"},
	"deployment_events":            {"deployment", "deployment_status"},
	"releases_events":              {"release"},
}

// webhookUnmappableEvents are events with no direct GitHub equivalent.
var webhookUnmappableEvents = map[string]string{
	"repository_update_events": "No direct GitHub equivalent",
	"subgroup_events":          "GitHub doesn't have subgroups",
	"feature_flag_events":      "No direct GitHub equivalent",
	"alert_events":             "No direct GitHub equivalent",
}

// GitLabWebhook is a GitLab project hook record. EventFlags carries every
// `*_events` boolean key (push_events, issues_events, ...) so new event
// types GitLab adds don't require a struct change.
type GitLabWebhook struct {
	ID                     int64           `json:"id"`
	URL                    string          `json:"url"`
	Disabled               bool            `json:"disabled"`
	EnableSSLVerification  bool            `json:"enable_ssl_verification"`
	Token                  string          `json:"token,omitempty"`
	EventFlags             map[string]bool `json:"-"`
}

// TransformWebhooks converts GitLab project webhooks to GitHub webhook
// payloads, event-by-event. Secrets are never forwarded from source: the
// transformed webhook always carries a nil Secret even if GitLab
// unexpectedly returned a token value.
func TransformWebhooks(webhooks []GitLabWebhook, now time.Time) *Result {
	res := NewResult(now)
	res.Data["webhooks"] = []map[string]any{}
	if len(webhooks) == 0 {
		res.Metadata["webhook_count"] = 0
		return res
	}

	transformed := make([]map[string]any, 0, len(webhooks))
	for _, wh := range webhooks {
		if wh.URL == "" {
			res.AddError("Webhook missing URL", map[string]any{"webhook_id": wh.ID})
			continue
		}
		t := transformWebhook(wh, res)
		transformed = append(transformed, t)
	}

	res.Data["webhooks"] = transformed
	res.Metadata["webhook_count"] = len(webhooks)
	res.Metadata["transformed_count"] = len(transformed)
	res.Metadata["skipped_count"] = len(webhooks) - len(transformed)
	return res
}

func transformWebhook(wh GitLabWebhook, res *Result) map[string]any {
	var githubEvents []string
	var unmapped []map[string]any
	var sourceEvents []string

	eventKeys := make([]string, 0, len(wh.EventFlags))
	for k := range wh.EventFlags {
		eventKeys = append(eventKeys, k)
	}
	sort.Strings(eventKeys)

	for _, event := range eventKeys {
		if !wh.EventFlags[event] {
			continue
		}
		sourceEvents = append(sourceEvents, event)
		if mapped, ok := webhookEventMapping[event]; ok {
			githubEvents = append(githubEvents, mapped...)
		} else if reason, ok := webhookUnmappableEvents[event]; ok {
			unmapped = append(unmapped, map[string]any{"gitlab_event": event, "reason": reason})
		} else {
			res.AddWarning(fmt.Sprintf("Unknown GitLab webhook event type: %s", event), map[string]any{"webhook_url": wh.URL})
		}
	}

	githubEvents = dedupeSortedStrings(githubEvents)
	if len(githubEvents) == 0 {
		githubEvents = []string{"push"}
		res.AddWarning("No events mapped from GitLab, defaulting to 'push'", map[string]any{"webhook_url": wh.URL})
	}

	for _, u := range unmapped {
		res.AddWarning(fmt.Sprintf("GitLab event '%s' cannot be mapped: %s", u["gitlab_event"], u["reason"]), map[string]any{"webhook_url": wh.URL})
	}

	transformed := map[string]any{
		"id":              wh.ID,
		"url":             wh.URL,
		"events":          githubEvents,
		"active":          !wh.Disabled,
		"content_type":    "json",
		"insecure_ssl":    !wh.EnableSSLVerification,
		"gitlab_id":       wh.ID,
		"gitlab_url":      wh.URL,
		"gitlab_events":   sourceEvents,
		"unmapped_events": unmapped,
		"secret":          nil,
	}

	if wh.Token != "" && wh.Token != "***MASKED***" {
		res.AddWarning("Webhook secret found in export (unexpected). Secrets should be regenerated.", map[string]any{"webhook_url": wh.URL})
	}

	return transformed
}

func dedupeSortedStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
