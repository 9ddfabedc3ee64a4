package forgeclient

import "net/http"

// GitHubTokenTransport decorates http.DefaultTransport with the bearer
// auth header go-github expects, for Apply's destination *github.Client.
// Client sets its auth header on each request it builds; this type wraps
// the transport instead, and carries a flat personal-access/OAuth token
// rather than a GitHub App installation JWT.
type GitHubTokenTransport struct {
	Token string
	Base  http.RoundTripper
}

func NewGitHubTokenTransport(token string) *GitHubTokenTransport {
	return &GitHubTokenTransport{Token: token, Base: http.DefaultTransport}
}

func (t *GitHubTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.Token)
	r.Header.Set("Accept", "application/vnd.github+json")
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
