package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ContentAuthor is the subset of a GitLab author record content rewriting
// needs for its attribution header.
type ContentAuthor struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ContentAssignee mirrors a GitLab assignee/reviewer reference.
type ContentAssignee struct {
	Username string `json:"username"`
}

// Milestone is the subset of a GitLab milestone record needed for the
// destination milestone title.
type Milestone struct {
	Title string `json:"title"`
}

// Issue is the GitLab issue shape content transforms consume.
type Issue struct {
	IID         int64             `json:"iid"`
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	State       string            `json:"state"`
	Labels      []string          `json:"labels"`
	Assignees   []ContentAssignee `json:"assignees"`
	Milestone   *Milestone        `json:"milestone"`
	Author      ContentAuthor     `json:"author"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	WebURL      string            `json:"web_url"`
}

// MergeRequest is the GitLab MR shape content transforms consume.
type MergeRequest struct {
	IID           int64             `json:"iid"`
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	State         string            `json:"state"`
	SourceBranch  string            `json:"source_branch"`
	TargetBranch  string            `json:"target_branch"`
	Labels        []string          `json:"labels"`
	Assignees     []ContentAssignee `json:"assignees"`
	Reviewers     []ContentAssignee `json:"reviewers"`
	Milestone     *Milestone        `json:"milestone"`
	WorkInProgress bool             `json:"work_in_progress"`
	Draft         bool              `json:"draft"`
	MergeStatus   string            `json:"merge_status"`
	Author        ContentAuthor     `json:"author"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	MergedAt      string            `json:"merged_at"`
	WebURL        string            `json:"web_url"`
}

// Comment is a GitLab note/discussion comment.
type Comment struct {
	ID        int64         `json:"id"`
	Body      string        `json:"body"`
	Author    ContentAuthor `json:"author"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

var (
	mentionPattern   = regexp.MustCompile(`@([\w\-.]+)`)
	crossRefPattern  = regexp.MustCompile(`(^|[^/\w])#(\d+)(\W|$)`)
	mrRefPattern     = regexp.MustCompile(`!(\d+)`)
	videoEmbedPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+\.mp4[^)]*)\)`)
	detailsPattern   = regexp.MustCompile(`(?m)<details>\s*<summary>([^<]+)</summary>`)
	labelInvalidChars = regexp.MustCompile(`[^\w\s\-.:]+`)
)

// ContentTransformer rewrites markdown content, attribution, and metadata
// for issues, merge requests and comments, given a user-mapping table and
// attachment path remapping.
type ContentTransformer struct {
	UserMappings       map[string]string // gitlab username -> github username
	AttachmentMappings map[string]string // old path -> new URL
}

// TransformIssue converts a GitLab issue into a GitHub issue payload.
func (t ContentTransformer) TransformIssue(issue Issue, gitlabProject, githubRepo string, now time.Time) *Result {
	res := NewResult(now)

	attribution := t.attributionHeader(issue.Author, issue.CreatedAt, "issue", issue.WebURL)
	body := attribution + "\n\n" + t.transformMarkdown(issue.Description, gitlabProject, githubRepo)

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = sanitizeLabel(l)
	}

	state := "closed"
	if issue.State == "opened" {
		state = "open"
	}

	res.Data["title"] = issue.Title
	res.Data["body"] = body
	res.Data["labels"] = labels
	res.Data["assignees"] = t.transformAssignees(issue.Assignees)
	res.Data["milestone"] = transformMilestone(issue.Milestone)
	res.Data["state"] = state
	res.Metadata["gitlab_iid"] = issue.IID
	res.Metadata["gitlab_id"] = issue.ID
	res.Metadata["gitlab_url"] = issue.WebURL
	res.Metadata["created_at"] = issue.CreatedAt
	res.Metadata["updated_at"] = issue.UpdatedAt
	return res
}

// TransformMergeRequest converts a GitLab MR into a GitHub pull request
// payload.
func (t ContentTransformer) TransformMergeRequest(mr MergeRequest, gitlabProject, githubRepo string, now time.Time) *Result {
	res := NewResult(now)

	attribution := t.attributionHeader(mr.Author, mr.CreatedAt, "merge request", mr.WebURL)
	if len(mr.Reviewers) > 0 {
		names := make([]string, len(mr.Reviewers))
		for i, r := range mr.Reviewers {
			names[i] = "@" + r.Username
		}
		attribution += fmt.Sprintf("\n_Original reviewers: %s_", strings.Join(names, ", "))
	}

	body := attribution + "\n\n" + t.transformMarkdown(mr.Description, gitlabProject, githubRepo)

	labels := make([]string, len(mr.Labels))
	for i, l := range mr.Labels {
		labels[i] = sanitizeLabel(l)
	}

	base := mr.TargetBranch
	if base == "" {
		base = "main"
	}

	res.Data["title"] = mr.Title
	res.Data["body"] = body
	res.Data["head"] = mr.SourceBranch
	res.Data["base"] = base
	res.Data["labels"] = labels
	res.Data["assignees"] = t.transformAssignees(mr.Assignees)
	res.Data["milestone"] = transformMilestone(mr.Milestone)
	res.Data["draft"] = mr.WorkInProgress || mr.Draft
	res.Data["state"] = mapMRState(mr.State)
	res.Metadata["gitlab_iid"] = mr.IID
	res.Metadata["gitlab_id"] = mr.ID
	res.Metadata["gitlab_url"] = mr.WebURL
	res.Metadata["merge_status"] = mr.MergeStatus
	res.Metadata["merged_at"] = mr.MergedAt
	res.Metadata["created_at"] = mr.CreatedAt
	res.Metadata["updated_at"] = mr.UpdatedAt
	return res
}

// TransformComment converts a GitLab note into a GitHub comment payload.
func (t ContentTransformer) TransformComment(c Comment, gitlabProject, githubRepo string, now time.Time) *Result {
	res := NewResult(now)

	username := c.Author.Username
	if username == "" {
		username = "unknown"
	}
	githubUsername := t.mapUsername(username)
	attribution := fmt.Sprintf("_Originally posted by @%s", username)
	if githubUsername != username {
		attribution += fmt.Sprintf(" (now @%s)", githubUsername)
	}
	attribution += fmt.Sprintf(" on %s_\n\n---\n\n", c.CreatedAt)

	res.Data["body"] = attribution + t.transformMarkdown(c.Body, gitlabProject, githubRepo)
	res.Metadata["gitlab_id"] = c.ID
	res.Metadata["created_at"] = c.CreatedAt
	res.Metadata["updated_at"] = c.UpdatedAt
	return res
}

func (t ContentTransformer) mapUsername(gitlabUsername string) string {
	if gh, ok := t.UserMappings[gitlabUsername]; ok && gh != "" {
		return gh
	}
	return gitlabUsername
}

func (t ContentTransformer) attributionHeader(author ContentAuthor, createdAt, contentType, originalURL string) string {
	username := author.Username
	if username == "" {
		username = "unknown"
	}
	githubUsername := t.mapUsername(username)

	date := createdAt
	if date == "" {
		date = "unknown date"
	}

	header := fmt.Sprintf("_Originally created as %s by @%s", contentType, username)
	if githubUsername != username {
		header += fmt.Sprintf(" (now @%s)", githubUsername)
	}
	header += fmt.Sprintf(" on GitLab on %s_", date)
	if originalURL != "" {
		header += fmt.Sprintf("\n_Original URL: %s_", originalURL)
	}
	return header
}

func (t ContentTransformer) transformMarkdown(markdown, gitlabProject, githubRepo string) string {
	if markdown == "" {
		return ""
	}
	md := t.transformMentions(markdown)
	md = t.transformCrossReferences(md, githubRepo)
	md = transformGitLabSyntax(md)
	md = t.rewriteAttachmentLinks(md)
	return md
}

func (t ContentTransformer) transformMentions(text string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		username := mentionPattern.FindStringSubmatch(match)[1]
		return "@" + t.mapUsername(username)
	})
}

func (t ContentTransformer) transformCrossReferences(text, githubRepo string) string {
	if githubRepo != "" {
		text = crossRefPattern.ReplaceAllString(text, "${1}"+githubRepo+"#${2}${3}")
	}
	text = mrRefPattern.ReplaceAllString(text, "#$1")
	return text
}

func transformGitLabSyntax(text string) string {
	text = videoEmbedPattern.ReplaceAllString(text, "[Video: $1]($2)")
	text = detailsPattern.ReplaceAllString(text, "<details><summary>$1</summary>\n")
	return text
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = labelInvalidChars.ReplaceAllString(label, "")
	if len(label) > 50 {
		label = label[:50]
	}
	return label
}

func (t ContentTransformer) transformAssignees(assignees []ContentAssignee) []string {
	out := make([]string, 0, len(assignees))
	for _, a := range assignees {
		if a.Username == "" {
			continue
		}
		out = append(out, t.mapUsername(a.Username))
	}
	return out
}

func transformMilestone(m *Milestone) *string {
	if m == nil {
		return nil
	}
	title := m.Title
	return &title
}

func mapMRState(state string) string {
	switch state {
	case "opened":
		return "open"
	case "closed", "merged", "locked":
		return "closed"
	default:
		return "open"
	}
}

func (t ContentTransformer) rewriteAttachmentLinks(text string) string {
	if text == "" || len(t.AttachmentMappings) == 0 {
		return text
	}
	paths := make([]string, 0, len(t.AttachmentMappings))
	for p := range t.AttachmentMappings {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
	for _, oldPath := range paths {
		text = strings.ReplaceAll(text, oldPath, t.AttachmentMappings[oldPath])
	}
	return text
}
