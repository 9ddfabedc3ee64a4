package apply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/require"
)

// newTestContext builds a Context whose GitHub client points at a local
// httptest server instead of api.github.com.
func newTestContext(t *testing.T, handler http.HandlerFunc) (*Context, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL
	client.UploadURL = baseURL
	return NewContext(client, "test-token", false), srv
}

func TestSplitRepo(t *testing.T) {
	owner, repo, err := splitRepo("acme/widgets")
	require.NoError(t, err)
	require.Equal(t, "acme", owner)
	require.Equal(t, "widgets", repo)

	_, _, err = splitRepo("no-slash")
	require.Error(t, err)

	_, _, err = splitRepo("/widgets")
	require.Error(t, err)
}

func TestParamHelpers(t *testing.T) {
	p := Params{"name": "foo", "flag": true, "items": []any{"a", "b"}}

	s, err := paramString(p, "name")
	require.NoError(t, err)
	require.Equal(t, "foo", s)

	_, err = paramString(p, "missing")
	require.Error(t, err)

	require.Equal(t, "def", paramStringDefault(p, "missing", "def"))
	require.True(t, paramBoolDefault(p, "flag", false))
	require.False(t, paramBoolDefault(p, "missing", false))
	require.Equal(t, []string{"a", "b"}, paramStringSlice(p, "items"))
	require.Nil(t, paramStringSlice(p, "missing"))
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := Build("not_a_real_action", "a1", "", Params{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown action type")
}

func TestRegistryKnownTypesIncludeCoreActions(t *testing.T) {
	known := KnownTypes()
	set := map[string]bool{}
	for _, k := range known {
		set[k] = true
	}
	for _, want := range []string{"create_issue", "add_issue_comment", "create_pull_request", "create_label", "commit_workflow"} {
		require.Truef(t, set[want], "expected %q to be registered", want)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
	}()
	Register("create_issue", newCreateIssueAction)
}

// --- ExecuteWithRetry contract ---

type countingAction struct {
	calls int
	key   string
	fail  int // number of times Execute should report failure before succeeding
}

func (a *countingAction) ID() string            { return "a1" }
func (a *countingAction) Type() string           { return "counting_action" }
func (a *countingAction) IdempotencyKey() string { return a.key }

func (a *countingAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	a.calls++
	if a.calls <= a.fail {
		return newResult(a.ID(), a.Type(), false, nil, "transient failure"), nil
	}
	return newResult(a.ID(), a.Type(), true, map[string]any{"calls": a.calls}, ""), nil
}

func (a *countingAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.ID(), a.Type(), "would_execute", "would run", nil, true), nil
}

func TestExecuteWithRetryDryRunNeverCallsExecute(t *testing.T) {
	ac := NewContext(nil, "tok", true)
	a := &countingAction{}
	res := ExecuteWithRetry(context.Background(), a, ac, RetryPolicy{MaxRetries: 3, BaseDelay: 0})
	require.True(t, res.Simulated)
	require.Equal(t, "would_execute", res.SimulationOutcome)
	require.Equal(t, 0, a.calls)
}

func TestExecuteWithRetryIdempotencyKeyShortCircuits(t *testing.T) {
	ac := NewContext(nil, "tok", false)
	a := &countingAction{key: "k1"}
	first := ExecuteWithRetry(context.Background(), a, ac, RetryPolicy{MaxRetries: 3, BaseDelay: 0})
	require.True(t, first.Success)
	require.Equal(t, 1, a.calls)

	second := ExecuteWithRetry(context.Background(), a, ac, RetryPolicy{MaxRetries: 3, BaseDelay: 0})
	require.True(t, second.Success)
	require.Equal(t, 1, a.calls, "second call must not re-invoke Execute")
	require.Equal(t, first, second)
}

func TestExecuteWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	ac := NewContext(nil, "tok", false)
	a := &countingAction{key: "k2", fail: 2}
	res := ExecuteWithRetry(context.Background(), a, ac, RetryPolicy{MaxRetries: 5, BaseDelay: 0})
	require.True(t, res.Success)
	require.Equal(t, 3, a.calls)
	require.Equal(t, 2, res.RetryCount)
}

func TestExecuteWithRetryExhaustsAndFails(t *testing.T) {
	ac := NewContext(nil, "tok", false)
	a := &countingAction{key: "k3", fail: 99}
	res := ExecuteWithRetry(context.Background(), a, ac, RetryPolicy{MaxRetries: 3, BaseDelay: 0})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "failed after 3 attempts")
	require.Equal(t, 3, a.calls)
}

// --- Action-level behavior against a stub GitHub server (S5, S6) ---

func TestCreateIssueThenCommentResolvesIDMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", 405)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&github.Issue{Number: github.Int(42), HTMLURL: github.String("https://github.com/acme/widgets/issues/42")})
	})
	mux.HandleFunc("/repos/acme/widgets/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&github.IssueComment{ID: github.Int64(7)})
	})
	ac, srv := newTestContext(t, mux.ServeHTTP)
	defer srv.Close()

	create, err := Build("create_issue", "a1", "", Params{
		"target_repo":     "acme/widgets",
		"title":           "bug",
		"gitlab_issue_id": "123",
	})
	require.NoError(t, err)
	res := ExecuteWithRetry(context.Background(), create, ac, RetryPolicy{MaxRetries: 1, BaseDelay: 0})
	require.True(t, res.Success)

	mapped, ok := ac.GetIDMapping("issue", "123")
	require.True(t, ok)
	require.Equal(t, "42", mapped)

	comment, err := Build("add_issue_comment", "a2", "", Params{
		"target_repo":     "acme/widgets",
		"body":            "thanks",
		"gitlab_issue_id": "123",
	})
	require.NoError(t, err)
	res2 := ExecuteWithRetry(context.Background(), comment, ac, RetryPolicy{MaxRetries: 1, BaseDelay: 0})
	require.True(t, res2.Success)
}

func TestAddIssueCommentMissingMappingFails(t *testing.T) {
	ac, srv := newTestContext(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "should not be called", 500)
	})
	defer srv.Close()

	comment, err := Build("add_issue_comment", "a1", "", Params{
		"target_repo":     "acme/widgets",
		"body":            "thanks",
		"gitlab_issue_id": "does-not-exist",
	})
	require.NoError(t, err)
	res := ExecuteWithRetry(context.Background(), comment, ac, RetryPolicy{MaxRetries: 1, BaseDelay: 0})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "could not resolve issue number")
}

func TestCreateLabelSimulateWouldSkipWhenExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/labels/bug", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&github.Label{Name: github.String("bug")})
	})
	ac, srv := newTestContext(t, mux.ServeHTTP)
	defer srv.Close()
	ac.DryRun = true

	action, err := Build("create_label", "a1", "", Params{"target_repo": "acme/widgets", "name": "bug"})
	require.NoError(t, err)
	res := ExecuteWithRetry(context.Background(), action, ac, RetryPolicy{MaxRetries: 1, BaseDelay: 0})
	require.True(t, res.Simulated)
	require.Equal(t, "would_skip", res.SimulationOutcome)
	require.Equal(t, true, res.Outputs["exists"])
}
