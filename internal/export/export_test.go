package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

func TestIssuesComponentExportsLabelsMilestonesAndComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/1/labels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabLabel{{ID: 1, Name: "bug"}})
	})
	mux.HandleFunc("/api/v4/projects/1/milestones", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabMilestone{{ID: 1, Title: "v1", State: "active"}})
	})
	mux.HandleFunc("/api/v4/projects/1/issues", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabIssue{{ID: 10, IID: 1, Title: "bug report", State: "opened"}})
	})
	mux.HandleFunc("/api/v4/projects/1/issues/1/notes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabNote{
			{ID: 100, Body: "looks good", System: false},
			{ID: 101, Body: "assigned to @bob", System: true},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := forgeclient.NewGitLabClient(srv.URL, "tok", nil)

	dir := t.TempDir()
	res, err := IssuesComponent{}.Export(context.Background(), client, schema.Project{ID: 1}, dir, nil)
	require.NoError(t, err)
	require.Equal(t, "completed", res.Status)

	raw, err := os.ReadFile(filepath.Join(dir, "issues", "issues.json"))
	require.NoError(t, err)
	var exported []map[string]any
	require.NoError(t, json.Unmarshal(raw, &exported))
	require.Len(t, exported, 1)
	comments := exported[0]["comments"].([]any)
	require.Len(t, comments, 1, "system notes must be filtered out of exported comments")
}

func TestRepositoryComponentSkipsEmptyRepo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(repoProjectInfo{EmptyRepo: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := forgeclient.NewGitLabClient(srv.URL, "tok", nil)

	dir := t.TempDir()
	res, err := RepositoryComponent{}.Export(context.Background(), client, schema.Project{ID: 1}, dir, nil)
	require.NoError(t, err)
	require.Equal(t, "skipped", res.Status)
	require.Equal(t, "empty_repository", res.Summary["reason"])
}

func TestRepositoryComponentDetectsLFSAndSubmodules(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(repoProjectInfo{DefaultBranch: "main"})
	})
	mux.HandleFunc("/api/v4/projects/1/repository/branches", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabBranch{{Name: "main", Protected: true}})
	})
	mux.HandleFunc("/api/v4/projects/1/repository/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]gitlabTag{})
	})
	mux.HandleFunc("/api/v4/projects/1/repository/files/.gitattributes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "*.bin filter=lfs diff=lfs merge=lfs -text", "encoding": "text"})
	})
	mux.HandleFunc("/api/v4/projects/1/repository/files/.gitmodules", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := forgeclient.NewGitLabClient(srv.URL, "tok", nil)

	dir := t.TempDir()
	res, err := RepositoryComponent{}.Export(context.Background(), client, schema.Project{ID: 1}, dir, nil)
	require.NoError(t, err)
	require.Equal(t, "completed", res.Status)
	lfs := res.Summary["lfs"].(map[string]any)
	require.True(t, lfs["enabled"].(bool))
	subs := res.Summary["submodules"].(map[string]any)
	require.False(t, subs["has_submodules"].(bool))
}

// --- Orchestrator (RunProject) ---

// stubGitLabServer answers the project GET with default_branch "main",
// every repository-file GET with 404, and every other request with an
// empty JSON array — enough for all eight components to reach
// "completed"/"skipped" without special-casing any one of them.
func stubGitLabServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v4/projects/1":
			_ = json.NewEncoder(w).Encode(map[string]any{"default_branch": "main"})
		case strings.Contains(r.URL.Path, "/repository/files/"):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			w.Write([]byte("[]"))
		}
	}))
}

func TestRunProjectCompletesAllComponentsAndSavesCheckpoint(t *testing.T) {
	srv := stubGitLabServer(t)
	defer srv.Close()

	outDir := t.TempDir()
	cfg := Config{GitLabURL: srv.URL, GitLabToken: "tok", OutputDir: outDir, RunID: "run-1"}
	project := schema.Project{ID: 1, PathWithNamespace: "acme/widgets"}

	cp, err := RunProject(context.Background(), cfg, project)
	require.NoError(t, err)
	for _, name := range AllComponents {
		require.Truef(t, cp.IsCompleted(name), "expected %q to be completed", name)
	}

	require.FileExists(t, checkpointPath(outDir, 1, "run-1"))
}

func TestRunProjectResumesSkippingCompletedComponents(t *testing.T) {
	srv := stubGitLabServer(t)
	defer srv.Close()

	outDir := t.TempDir()
	pre := NewCheckpoint(1, "run-2")
	pre.MarkCompleted(ComponentRepository)
	require.NoError(t, pre.Save(outDir))

	cfg := Config{GitLabURL: srv.URL, GitLabToken: "tok", OutputDir: outDir, RunID: "run-2"}
	project := schema.Project{ID: 1, PathWithNamespace: "acme/widgets"}

	cp, err := RunProject(context.Background(), cfg, project)
	require.NoError(t, err)
	require.True(t, cp.IsCompleted(ComponentRepository))
	require.True(t, cp.IsCompleted(ComponentIssues))

	repoDir := filepath.Join(outDir, "1", "run-2", "repository")
	require.NoDirExists(t, repoDir, "a component already marked completed must not be re-exported")
}
