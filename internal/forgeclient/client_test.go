package forgeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tkn", r.Header.Get("PRIVATE-TOKEN"))
		_, _ = w.Write([]byte(`{"id": 7, "name": "widget"}`))
	}))
	defer srv.Close()

	c := NewGitLabClient(srv.URL, "tkn", nil)
	c.SetMinInterval(0)

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	_, err := c.Get(context.Background(), "get_project", "/projects/7", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, "widget", out.Name)
}

func TestClient_RetriesOn503ThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewGitLabClient(srv.URL, "tkn", nil)
	c.SetMinInterval(0)

	var out struct {
		OK bool `json:"ok"`
	}
	_, err := c.Get(context.Background(), "flaky", "/flaky", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, c.Stats().Snapshot().RetriedCalls)
}

func TestClient_NotFoundDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "not found"}`))
	}))
	defer srv.Close()

	c := NewGitLabClient(srv.URL, "tkn", nil)
	c.SetMinInterval(0)

	_, err := c.Get(context.Background(), "get_project", "/projects/404", nil, nil)
	require.Error(t, err)
	fe, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, fe.Kind)
	assert.Equal(t, 1, calls)
}

func TestClient_PaginateFollowsNextPageHeader(t *testing.T) {
	pages := [][]int{{1, 2}, {3, 4}, {5}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		idx := page - 1
		if idx+1 < len(pages) {
			w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
		}
		raw, _ := json.Marshal(pages[idx])
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	c := NewGitLabClient(srv.URL, "tkn", nil)
	c.SetMinInterval(0)

	var seen []int
	err := c.Paginate(context.Background(), "list_projects", "/projects", nil, 2, 0, func(raw json.RawMessage) (int, error) {
		var ids []int
		if err := json.Unmarshal(raw, &ids); err != nil {
			return 0, err
		}
		seen = append(seen, ids...)
		return len(ids), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestClient_PaginatedCountUsesXTotalHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total", "42")
		_, _ = w.Write([]byte(`[{}]`))
	}))
	defer srv.Close()

	c := NewGitLabClient(srv.URL, "tkn", nil)
	c.SetMinInterval(0)

	total, ceiling, err := c.PaginatedCount(context.Background(), "count_issues", "/issues", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	assert.False(t, ceiling)
}

func TestClient_BudgetExhaustionStopsCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	budget := NewBudget(2)
	c := NewGitLabClient(srv.URL, "tkn", budget)
	c.SetMinInterval(0)

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "probe", "/x", nil, nil)
		require.NoError(t, err)
	}
	_, err := c.Get(context.Background(), "probe", "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, budget.Exceeded())
	assert.Equal(t, 2, calls)
}

func TestGitHubClient_SetsBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-tkn", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewGitHubClient(srv.URL, "gh-tkn")
	c.SetMinInterval(0)
	_, err := c.Get(context.Background(), "get_repo", "/repos/acme/widget", nil, nil)
	require.NoError(t, err)
}
