package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitLab serves just enough of the GitLab REST surface for a
// root-group walk over one group containing one project with no CI, no
// LFS, and a handful of open merge requests and issues.
func fakeGitLab(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v4/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version": "17.0.0", "revision": "abc123"}`))
	})
	mux.HandleFunc("/api/v4/groups/team-a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "full_path": "team-a"}`))
	})
	mux.HandleFunc("/api/v4/groups/1/subgroups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v4/groups/1/projects", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 10, "path_with_namespace": "team-a/widget", "default_branch": "main", "archived": false, "visibility": "private"}]`))
	})
	mux.HandleFunc("/api/v4/projects/10/repository/files/.gitlab-ci.yml/raw", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/v4/projects/10/repository/files/.gitattributes/raw", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/v4/projects/10/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		w.Header().Set("X-Total", map[string]string{"opened": "3", "closed": "1", "merged": "2"}[state])
		_, _ = w.Write([]byte(`[{}]`))
	})
	mux.HandleFunc("/api/v4/projects/10/issues", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		w.Header().Set("X-Total", map[string]string{"opened": "0", "closed": "5"}[state])
		_, _ = w.Write([]byte(`[{}]`))
	})

	return httptest.NewServer(mux)
}

func TestRun_RootGroupWalkProducesValidInventory(t *testing.T) {
	srv := fakeGitLab(t)
	defer srv.Close()

	inv, err := Run(context.Background(), Config{
		BaseURL:       srv.URL,
		Token:         "tkn",
		Mode:          ModeRootGroup,
		RootGroupPath: "team-a",
		MaxAPICalls:   100,
	})
	require.NoError(t, err)
	require.Len(t, inv.Groups, 1)
	require.Len(t, inv.Projects, 1)

	p := inv.Projects[0]
	assert.Equal(t, "team-a/widget", p.PathWithNamespace)
	assert.False(t, p.Facts.HasCI.Value())
	assert.False(t, p.Facts.HasLFS.Value())
	assert.Equal(t, 3, p.Facts.MRCounts.Open.Value())
	assert.Equal(t, 5, p.Facts.IssueCounts.Closed.Value())
	assert.Equal(t, int64(1), inv.Groups[0].ID)
	assert.Contains(t, inv.Groups[0].Projects, int64(10))
}

func TestRun_BudgetExhaustionStopsBeforeCeiling(t *testing.T) {
	srv := fakeGitLab(t)
	defer srv.Close()

	inv, err := Run(context.Background(), Config{
		BaseURL:       srv.URL,
		Token:         "tkn",
		Mode:          ModeRootGroup,
		RootGroupPath: "team-a",
		MaxAPICalls:   1,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, inv.Run.Stats.APICalls, 2)
}

func TestPlanner_HealthCheckFirst(t *testing.T) {
	s := NewAgentState(ModeRootGroup, "team-a", "")
	p := NewPlanner()
	assert.Equal(t, ActionHealthCheck, p.Next(s).Type)

	s.HealthChecked = true
	assert.Equal(t, ActionResolveGroup, p.Next(s).Type)
}

func TestPlanner_DoneWhenNoPendingWork(t *testing.T) {
	s := NewAgentState(ModeRootGroup, "team-a", "")
	s.HealthChecked = true
	s.RootGroupResolved = true
	assert.Equal(t, ActionDone, NewPlanner().Next(s).Type)
}

func TestRun_RedactsBaseURLCredentials(t *testing.T) {
	srv := fakeGitLab(t)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.User = url.UserPassword("user", "secret")

	inv, err := Run(context.Background(), Config{
		BaseURL:       u.String(),
		Token:         "tkn",
		Mode:          ModeRootGroup,
		RootGroupPath: "team-a",
		MaxAPICalls:   100,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(inv.Run.BaseURL, "REDACTED"))
	assert.False(t, strings.Contains(inv.Run.BaseURL, "secret"))
	assert.Equal(t, forgeclient.RedactURL(u.String()), inv.Run.BaseURL)
}
