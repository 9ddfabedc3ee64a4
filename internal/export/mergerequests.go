package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// MergeRequestsComponent exports merge requests, their discussions,
// approvals, and diff stats.
type MergeRequestsComponent struct{}

func (MergeRequestsComponent) Name() string { return ComponentMergeRequests }

type gitlabMR struct {
	ID                        int64        `json:"id"`
	IID                       int64        `json:"iid"`
	Title                     string       `json:"title"`
	Description               string       `json:"description"`
	State                     string       `json:"state"`
	MergedAt                  string       `json:"merged_at"`
	ClosedAt                  string       `json:"closed_at"`
	CreatedAt                 string       `json:"created_at"`
	UpdatedAt                 string       `json:"updated_at"`
	TargetBranch              string       `json:"target_branch"`
	SourceBranch              string       `json:"source_branch"`
	Author                    *gitlabUser  `json:"author"`
	Assignees                 []gitlabUser `json:"assignees"`
	Reviewers                 []gitlabUser `json:"reviewers"`
	Labels                    []string     `json:"labels"`
	Milestone                 *struct {
		Title string `json:"title"`
	} `json:"milestone"`
	WebURL                     string `json:"web_url"`
	Upvotes                    int    `json:"upvotes"`
	Downvotes                  int    `json:"downvotes"`
	MergeStatus                string `json:"merge_status"`
	Draft                      bool   `json:"draft"`
	WorkInProgress             bool   `json:"work_in_progress"`
	DiscussionLocked           bool   `json:"discussion_locked"`
	HasConflicts               bool   `json:"has_conflicts"`
	SHA                        string `json:"sha"`
	MergeCommitSHA             string `json:"merge_commit_sha"`
	Squash                     bool   `json:"squash"`
	SquashCommitSHA            string `json:"squash_commit_sha"`
	UserNotesCount             int    `json:"user_notes_count"`
	ShouldRemoveSourceBranch   bool   `json:"should_remove_source_branch"`
	ForceRemoveSourceBranch    bool   `json:"force_remove_source_branch"`
}

type gitlabDiscussion struct {
	ID              string       `json:"id"`
	IndividualNote  bool         `json:"individual_note"`
	Notes           []gitlabNote `json:"notes"`
}

type gitlabApprovals struct {
	Approved          bool `json:"approved"`
	ApprovalsRequired int  `json:"approvals_required"`
	ApprovalsLeft     int  `json:"approvals_left"`
	ApprovedBy        []struct {
		User *gitlabUser `json:"user"`
	} `json:"approved_by"`
}

type gitlabChange struct {
	Diff     string `json:"diff"`
	NewPath  string `json:"new_path"`
}

type gitlabMRChanges struct {
	Changes []gitlabChange `json:"changes"`
}

func (MergeRequestsComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	mrDir := filepath.Join(dir, "merge_requests")
	summary := map[string]any{"project_id": project.ID}

	mrs, merr := listAll[gitlabMR](ctx, client, ComponentMergeRequests, projectPath(project.ID, "/merge_requests"), nil)
	if merr != nil {
		summary["merge_requests_error"] = merr.Error()
		if err := saveJSON(mrDir, "merge_requests_metadata.json", summary); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		return Result{Status: "completed", Summary: summary}, nil
	}

	stateCounts := map[string]int{}
	exported := make([]map[string]any, 0, len(mrs))
	for _, mr := range mrs {
		stateCounts[mr.State]++
		milestone := ""
		if mr.Milestone != nil {
			milestone = mr.Milestone.Title
		}
		row := map[string]any{
			"id": mr.ID, "iid": mr.IID, "title": mr.Title, "description": mr.Description, "state": mr.State,
			"merged_at": mr.MergedAt, "closed_at": mr.ClosedAt, "created_at": mr.CreatedAt, "updated_at": mr.UpdatedAt,
			"target_branch": mr.TargetBranch, "source_branch": mr.SourceBranch, "author": mr.Author,
			"assignees": mr.Assignees, "reviewers": mr.Reviewers, "labels": mr.Labels, "milestone": milestone,
			"web_url": mr.WebURL, "upvotes": mr.Upvotes, "downvotes": mr.Downvotes, "merge_status": mr.MergeStatus,
			"draft": mr.Draft, "work_in_progress": mr.WorkInProgress, "discussion_locked": mr.DiscussionLocked,
			"has_conflicts": mr.HasConflicts, "sha": mr.SHA, "merge_commit_sha": mr.MergeCommitSHA,
			"squash": mr.Squash, "squash_commit_sha": mr.SquashCommitSHA, "user_notes_count": mr.UserNotesCount,
			"should_remove_source_branch": mr.ShouldRemoveSourceBranch, "force_remove_source_branch": mr.ForceRemoveSourceBranch,
		}

		iid := strconv.FormatInt(mr.IID, 10)

		discussions, derr := mrDiscussions(ctx, client, project.ID, iid)
		if derr != nil {
			row["discussions_error"] = derr.Error()
		} else {
			row["discussions"] = discussions
		}

		approvals, aerr := mrApprovals(ctx, client, project.ID, iid)
		row["approvals"] = approvals
		if aerr != nil {
			row["approvals_error"] = aerr.Error()
		}

		diffStats, serr := mrDiffStats(ctx, client, project.ID, iid)
		row["diff_stats"] = diffStats
		if serr != nil {
			row["diff_stats_error"] = serr.Error()
		}

		exported = append(exported, row)
	}

	if err := saveJSON(mrDir, "merge_requests.json", exported); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	summary["merge_requests"] = map[string]any{"total": len(mrs), "state_counts": stateCounts, "file": "merge_requests.json"}

	if err := saveJSON(mrDir, "merge_requests_metadata.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}

func mrDiscussions(ctx context.Context, client *forgeclient.Client, projectID int64, iid string) ([]map[string]any, error) {
	raw, err := listAll[gitlabDiscussion](ctx, client, ComponentMergeRequests, projectPath(projectID, "/merge_requests/"+iid+"/discussions"), nil)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		notes := make([]gitlabNote, 0, len(d.Notes))
		for _, n := range d.Notes {
			if !n.System {
				notes = append(notes, n)
			}
		}
		if len(notes) == 0 {
			continue
		}
		out = append(out, map[string]any{"id": d.ID, "individual_note": d.IndividualNote, "notes": notes})
	}
	return out, nil
}

func mrApprovals(ctx context.Context, client *forgeclient.Client, projectID int64, iid string) (map[string]any, error) {
	var data gitlabApprovals
	_, err := client.Get(ctx, ComponentMergeRequests, projectPath(projectID, "/merge_requests/"+iid+"/approvals"), nil, &data)
	if err != nil {
		return map[string]any{"available": false, "note": "Approvals API not available or accessible"}, nil
	}
	approvedBy := make([]*gitlabUser, 0, len(data.ApprovedBy))
	for _, a := range data.ApprovedBy {
		if a.User != nil {
			approvedBy = append(approvedBy, a.User)
		}
	}
	return map[string]any{
		"available": true, "approved": data.Approved, "approvals_required": data.ApprovalsRequired,
		"approvals_left": data.ApprovalsLeft, "approved_by": approvedBy,
	}, nil
}

// mrDiffStats summarizes a merge request's change set. Binary file diffs
// report additions/deletions as 0 rather than scanning their diff text for
// '+'/'-' prefixed lines — GitLab's changes API marks a diff's path as
// binary via the absence of textual diff content, and counting prefix
// characters inside binary payloads produces meaningless, occasionally huge
// numbers.
func mrDiffStats(ctx context.Context, client *forgeclient.Client, projectID int64, iid string) (map[string]any, error) {
	var data gitlabMRChanges
	_, err := client.Get(ctx, ComponentMergeRequests, projectPath(projectID, "/merge_requests/"+iid+"/changes"), nil, &data)
	if err != nil {
		return map[string]any{"available": false}, err
	}

	additions, deletions := 0, 0
	for _, c := range data.Changes {
		if isBinaryDiff(c.Diff) {
			continue
		}
		for _, line := range strings.Split(c.Diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				additions++
			case strings.HasPrefix(line, "-"):
				deletions++
			}
		}
	}
	return map[string]any{
		"available":     true,
		"files_changed": len(data.Changes),
		"additions":     additions,
		"deletions":     deletions,
	}, nil
}

// isBinaryDiff reports whether a unified diff body is GitLab's placeholder
// for a binary file change rather than textual content.
func isBinaryDiff(diff string) bool {
	return strings.Contains(diff, "Binary files") || strings.TrimSpace(diff) == ""
}
