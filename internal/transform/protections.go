package transform

import (
	"fmt"
	"strings"
	"time"
)

// AccessLevel is one entry of a GitLab push_access_levels /
// merge_access_levels list.
type AccessLevel struct {
	AccessLevel int    `json:"access_level"`
	UserID      *int64 `json:"user_id,omitempty"`
	GroupID     *int64 `json:"group_id,omitempty"`
}

// ProtectedBranch is a GitLab protected-branch record.
type ProtectedBranch struct {
	Name                     string        `json:"name"`
	PushAccessLevels         []AccessLevel `json:"push_access_levels"`
	MergeAccessLevels        []AccessLevel `json:"merge_access_levels"`
	AllowForcePush           bool          `json:"allow_force_push"`
	CodeOwnerApprovalRequired bool         `json:"code_owner_approval_required"`
	ApprovalsBeforeMerge     int           `json:"approvals_before_merge"`
	UnprotectAccessLevel     *int          `json:"unprotect_access_level,omitempty"`
}

// ProtectedTag is a GitLab protected-tag record.
type ProtectedTag struct {
	Name string `json:"name"`
}

// ProjectMember is the subset needed to resolve CODEOWNERS usernames.
type ProjectMember struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ApprovalRule is a GitLab merge-request approval rule, used to synthesize
// a CODEOWNERS file.
type ApprovalRule struct {
	Name               string          `json:"name"`
	EligibleApprovers  []ApprovalUser  `json:"eligible_approvers"`
	Groups             []ApprovalGroup `json:"groups"`
	ProtectedBranches  []string        `json:"protected_branches"`
	FilePattern        string          `json:"file_pattern"`
}

type ApprovalUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type ApprovalGroup struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ProtectionsInput bundles everything TransformProtections needs.
type ProtectionsInput struct {
	ProtectedBranches []ProtectedBranch
	ProtectedTags     []ProtectedTag
	ProjectMembers    []ProjectMember
	CIJobs            []string
	ApprovalRules     []ApprovalRule
	SynthesizeCodeowners bool // true when the caller supplied approval rules to synthesize from
}

// TransformProtections maps GitLab protected branches/tags to GitHub
// branch-protection settings, optionally synthesizing a CODEOWNERS file
// from approval rules.
func TransformProtections(in ProtectionsInput, now time.Time) *Result {
	res := NewResult(now)
	if in.ProtectedBranches == nil {
		res.AddError("missing protected_branches", nil)
		return res
	}

	var gaps []map[string]any
	protections := make([]map[string]any, 0, len(in.ProtectedBranches))
	for _, b := range in.ProtectedBranches {
		p, branchGaps := transformBranchProtection(b, in.CIJobs)
		protections = append(protections, p)
		gaps = append(gaps, branchGaps...)
	}

	var codeowners *string
	if in.SynthesizeCodeowners {
		content, genGaps := generateCodeowners(in.ApprovalRules)
		codeowners = &content
		gaps = append(gaps, genGaps...)
	}

	tagProtections := make([]map[string]any, 0, len(in.ProtectedTags))
	for _, tag := range in.ProtectedTags {
		tagProtections = append(tagProtections, map[string]any{
			"pattern": tag.Name,
			"note":    fmt.Sprintf("Migrated from GitLab protected tag: %s", tag.Name),
		})
		gaps = append(gaps, map[string]any{
			"type":     "protection_tag_protection",
			"message":  fmt.Sprintf("GitLab protected tag '%s' requires GitHub Pro/Enterprise for tag protection rules", tag.Name),
			"severity": "medium",
			"context":  map[string]any{"tag": tag.Name, "action": "Upgrade to GitHub Pro/Enterprise or manually protect tags"},
		})
	}

	res.Data["branch_protections"] = protections
	if codeowners != nil {
		res.Data["codeowners_content"] = *codeowners
	} else {
		res.Data["codeowners_content"] = nil
	}
	res.Data["protected_tags"] = tagProtections
	res.Data["gaps"] = gaps
	res.Metadata["branches_protected"] = len(protections)
	res.Metadata["tags_protected"] = len(in.ProtectedTags)
	res.Metadata["conversion_gaps"] = len(gaps)
	res.Metadata["has_codeowners"] = codeowners != nil

	for _, g := range gaps {
		res.AddWarning(fmt.Sprintf("%v", g["message"]), toMap(g["context"]))
	}
	return res
}

func transformBranchProtection(b ProtectedBranch, ciJobs []string) (map[string]any, []map[string]any) {
	var gaps []map[string]any

	protection := map[string]any{
		"branch":                            b.Name,
		"required_status_checks":            nil,
		"enforce_admins":                    false,
		"required_pull_request_reviews":     nil,
		"restrictions":                      nil,
		"allow_force_pushes":                b.AllowForcePush,
		"allow_deletions":                   false,
		"required_linear_history":           false,
		"required_conversation_resolution":  false,
	}

	if len(b.MergeAccessLevels) > 0 {
		reviews := mapMergeAccessToReviews(b)
		if b.CodeOwnerApprovalRequired {
			reviews["require_code_owner_reviews"] = true
		}
		protection["required_pull_request_reviews"] = reviews
	}

	if len(ciJobs) > 0 {
		protection["required_status_checks"] = map[string]any{
			"strict":   true,
			"contexts": ciJobs,
		}
	}

	if b.UnprotectAccessLevel != nil {
		gaps = append(gaps, map[string]any{
			"type":     "protection_unprotect_access_level",
			"message":  fmt.Sprintf("GitLab unprotect_access_level (%d) not directly mappable to GitHub", *b.UnprotectAccessLevel),
			"severity": "medium",
			"context":  map[string]any{"branch": b.Name, "access_level": *b.UnprotectAccessLevel},
		})
	}

	if len(b.PushAccessLevels) > 0 && checkRestrictedPush(b.PushAccessLevels) {
		gaps = append(gaps, map[string]any{
			"type":     "protection_push_restrictions",
			"message":  fmt.Sprintf("GitLab push restrictions for '%s' require manual user/team mapping in GitHub", b.Name),
			"severity": "high",
			"context": map[string]any{
				"branch":             b.Name,
				"push_access_levels": b.PushAccessLevels,
				"action":             "Configure push restrictions in GitHub repository settings",
			},
		})
	}

	return protection, gaps
}

func mapMergeAccessToReviews(b ProtectedBranch) map[string]any {
	reviews := map[string]any{
		"dismiss_stale_reviews":            false,
		"require_code_owner_reviews":       false,
		"required_approving_review_count":  1,
		"dismissal_restrictions":           map[string]any{},
	}
	if b.ApprovalsBeforeMerge > 0 {
		reviews["required_approving_review_count"] = b.ApprovalsBeforeMerge
	}

	hasMaintainerOnly := false
	for _, level := range b.MergeAccessLevels {
		if level.AccessLevel == 40 {
			hasMaintainerOnly = true
			break
		}
	}
	if hasMaintainerOnly && b.ApprovalsBeforeMerge == 0 {
		reviews["required_approving_review_count"] = 1
	}
	return reviews
}

func checkRestrictedPush(levels []AccessLevel) bool {
	for _, level := range levels {
		if level.UserID != nil || level.GroupID != nil {
			return true
		}
		if level.AccessLevel == 0 {
			return true
		}
	}
	return false
}

func generateCodeowners(rules []ApprovalRule) (string, []map[string]any) {
	lines := []string{
		"# CODEOWNERS",
		"# Generated from GitLab approval rules",
		"# https://docs.github.com/en/repositories/managing-your-repositorys-settings-and-features/customizing-your-repository/about-code-owners",
		"",
	}
	var gaps []map[string]any

	for _, rule := range rules {
		var approvers []string
		for _, a := range rule.EligibleApprovers {
			if a.Username != "" {
				approvers = append(approvers, "@"+a.Username)
			}
		}
		for _, g := range rule.Groups {
			path := g.Path
			if path == "" {
				path = g.Name
			}
			if path != "" {
				approvers = append(approvers, "@org/"+path)
			}
		}
		if len(approvers) == 0 {
			continue
		}
		pattern := rule.FilePattern
		if pattern == "" {
			pattern = "*"
		}
		lines = append(lines, fmt.Sprintf("# Rule: %s", rule.Name))
		lines = append(lines, fmt.Sprintf("%s %s", pattern, strings.Join(approvers, " ")))
		lines = append(lines, "")
	}

	if len(lines) == 4 {
		lines = append(lines, "# Default: All files require review", "* @org/maintainers", "")
		gaps = append(gaps, map[string]any{
			"type":     "protection_codeowners_default",
			"message":  "No specific approval rules found, using default CODEOWNERS",
			"severity": "low",
			"context":  map[string]any{"action": "Review and customize CODEOWNERS file"},
		})
	}

	return strings.Join(lines, "\n"), gaps
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
