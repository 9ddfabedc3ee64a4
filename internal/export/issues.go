package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// IssuesComponent exports labels, milestones, issues, and their non-system
// notes. Attachments referenced from markdown bodies are neither listed
// nor downloaded here.
type IssuesComponent struct{}

func (IssuesComponent) Name() string { return ComponentIssues }

type gitlabLabel struct {
	ID                      int64  `json:"id"`
	Name                    string `json:"name"`
	Description             string `json:"description"`
	Color                   string `json:"color"`
	TextColor               string `json:"text_color"`
	OpenIssuesCount         int    `json:"open_issues_count"`
	ClosedIssuesCount       int    `json:"closed_issues_count"`
	OpenMergeRequestsCount  int    `json:"open_merge_requests_count"`
}

type gitlabMilestone struct {
	ID          int64  `json:"id"`
	IID         int64  `json:"iid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
	DueDate     string `json:"due_date"`
	StartDate   string `json:"start_date"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type gitlabIssue struct {
	ID                int64        `json:"id"`
	IID               int64        `json:"iid"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	State             string       `json:"state"`
	CreatedAt         string       `json:"created_at"`
	UpdatedAt         string       `json:"updated_at"`
	ClosedAt          string       `json:"closed_at"`
	ClosedBy          *gitlabUser  `json:"closed_by"`
	Author            *gitlabUser  `json:"author"`
	Assignees         []gitlabUser `json:"assignees"`
	Labels            []string     `json:"labels"`
	Milestone         *struct {
		Title string `json:"title"`
	} `json:"milestone"`
	WebURL            string         `json:"web_url"`
	Upvotes           int            `json:"upvotes"`
	Downvotes         int            `json:"downvotes"`
	UserNotesCount    int            `json:"user_notes_count"`
	Confidential      bool           `json:"confidential"`
	DiscussionLocked  bool           `json:"discussion_locked"`
	DueDate           string         `json:"due_date"`
	TimeStats         map[string]any `json:"time_stats"`
}

type gitlabNote struct {
	ID         int64       `json:"id"`
	Body       string      `json:"body"`
	Author     *gitlabUser `json:"author"`
	CreatedAt  string      `json:"created_at"`
	UpdatedAt  string      `json:"updated_at"`
	System     bool        `json:"system"`
	Resolvable bool        `json:"resolvable"`
	Resolved   bool        `json:"resolved"`
}

func (IssuesComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	issuesDir := filepath.Join(dir, "issues")
	summary := map[string]any{"project_id": project.ID}

	labels, lerr := listAll[gitlabLabel](ctx, client, ComponentIssues, projectPath(project.ID, "/labels"), nil)
	if lerr != nil {
		summary["labels_error"] = lerr.Error()
	} else {
		if err := saveJSON(issuesDir, "labels.json", labels); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["labels"] = map[string]any{"total": len(labels), "file": "labels.json"}
	}

	milestones, merr := listAll[gitlabMilestone](ctx, client, ComponentIssues, projectPath(project.ID, "/milestones"), nil)
	if merr != nil {
		summary["milestones_error"] = merr.Error()
	} else {
		active := 0
		for _, m := range milestones {
			if m.State == "active" {
				active++
			}
		}
		if err := saveJSON(issuesDir, "milestones.json", milestones); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		summary["milestones"] = map[string]any{"total": len(milestones), "active": active, "file": "milestones.json"}
	}

	issues, ierr := listAll[gitlabIssue](ctx, client, ComponentIssues, projectPath(project.ID, "/issues"), nil)
	if ierr != nil {
		summary["issues_error"] = ierr.Error()
		if err := saveJSON(issuesDir, "issues_metadata.json", summary); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		return Result{Status: "completed", Summary: summary}, nil
	}

	stateCounts := map[string]int{}
	exported := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		stateCounts[issue.State]++
		milestone := ""
		if issue.Milestone != nil {
			milestone = issue.Milestone.Title
		}
		row := map[string]any{
			"id": issue.ID, "iid": issue.IID, "title": issue.Title, "description": issue.Description,
			"state": issue.State, "created_at": issue.CreatedAt, "updated_at": issue.UpdatedAt,
			"closed_at": issue.ClosedAt, "closed_by": issue.ClosedBy, "author": issue.Author,
			"assignees": issue.Assignees, "labels": issue.Labels, "milestone": milestone,
			"web_url": issue.WebURL, "upvotes": issue.Upvotes, "downvotes": issue.Downvotes,
			"user_notes_count": issue.UserNotesCount, "confidential": issue.Confidential,
			"discussion_locked": issue.DiscussionLocked, "due_date": issue.DueDate, "time_stats": issue.TimeStats,
		}

		notes, nerr := listAll[gitlabNote](ctx, client, ComponentIssues, projectPath(project.ID, "/issues/"+strconv.FormatInt(issue.IID, 10)+"/notes"), nil)
		if nerr != nil {
			row["comments_error"] = nerr.Error()
		} else {
			comments := make([]gitlabNote, 0, len(notes))
			for _, n := range notes {
				if !n.System {
					comments = append(comments, n)
				}
			}
			row["comments"] = comments
		}

		exported = append(exported, row)
	}

	if err := saveJSON(issuesDir, "issues.json", exported); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	summary["issues"] = map[string]any{"total": len(issues), "state_counts": stateCounts, "file": "issues.json"}

	if err := saveJSON(issuesDir, "issues_metadata.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
