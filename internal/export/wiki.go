package export

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// WikiComponent exports wiki pages and content. GitLab wikis are their own
// git repository; this component exports rendered page content through the
// REST API rather than cloning that repository, treating the wiki as
// project-scoped pages rather than source code.
type WikiComponent struct{}

func (WikiComponent) Name() string { return ComponentWiki }

type gitlabWikiPage struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Format   string `json:"format"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

var wikiPageExtensions = map[string]string{
	"markdown": "md",
	"rdoc":     "rdoc",
	"asciidoc": "adoc",
	"org":      "org",
}

func (WikiComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	wikiDir := filepath.Join(dir, "wiki")
	summary := map[string]any{"project_id": project.ID}

	if project.Facts.Enrichment == nil || !project.Facts.Enrichment.Integrations.WikiEnabled {
		summary["status"] = "skipped"
		summary["reason"] = "wiki_not_enabled"
		if err := saveJSON(wikiDir, "wiki.json", summary); err != nil {
			return Result{Status: "failed", Error: err.Error()}, err
		}
		return Result{Status: "skipped", Summary: summary}, nil
	}

	pages, err := listAll[gitlabWikiPage](ctx, client, ComponentWiki, projectPath(project.ID, "/wikis"), nil)
	if err != nil {
		summary["wiki_pages_error"] = err.Error()
		if serr := saveJSON(wikiDir, "wiki.json", summary); serr != nil {
			return Result{Status: "failed", Error: serr.Error()}, serr
		}
		return Result{Status: "completed", Summary: summary}, nil
	}

	pagesDir := filepath.Join(wikiDir, "pages")
	full := make([]gitlabWikiPage, 0, len(pages))
	for _, p := range pages {
		var detail gitlabWikiPage
		if _, derr := client.Get(ctx, ComponentWiki, projectPath(project.ID, "/wikis/"+p.Slug), nil, &detail); derr == nil {
			p.Content = detail.Content
			p.Encoding = detail.Encoding
		}
		full = append(full, p)
		if p.Content != "" {
			ext, ok := wikiPageExtensions[p.Format]
			if !ok {
				ext = "txt"
			}
			if werr := writeTextFile(pagesDir, p.Slug+"."+ext, p.Content); werr != nil {
				return Result{Status: "failed", Error: werr.Error()}, werr
			}
		}
	}

	if err := saveJSON(wikiDir, "wiki_pages.json", full); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}

	if len(full) == 0 {
		summary["wiki_pages"] = map[string]any{"total": 0, "note": "No wiki pages found"}
	} else {
		summary["wiki_pages"] = map[string]any{"total": len(full), "file": "wiki_pages.json", "pages_dir": "pages/"}
	}

	if err := saveJSON(wikiDir, "wiki.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
