package export

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
)

// listAll walks a GitLab-style paginated listing into a single slice —
// the same pagination loop every export component opens with.
func listAll[T any](ctx context.Context, c *forgeclient.Client, step, path string, params url.Values) ([]T, error) {
	var out []T
	err := c.Paginate(ctx, step, path, params, 100, 0, func(raw json.RawMessage) (int, error) {
		var page []T
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		out = append(out, page...)
		return len(page), nil
	})
	return out, err
}

// gitlabUser is the subset of a GitLab user object every exporter narrows
// down to.
type gitlabUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func projectPath(projectID int64, suffix string) string {
	return "/api/v4/projects/" + strconv.FormatInt(projectID, 10) + suffix
}

// fileContent fetches one repository file at HEAD, decoding it if GitLab
// returned it base64-encoded. ok is false (no error) on a 404.
func fileContent(ctx context.Context, c *forgeclient.Client, step string, projectID int64, path string) (content string, ok bool, err error) {
	var out struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	_, err = c.Get(ctx, step, projectPath(projectID, "/repository/files/"+url.PathEscape(path)), url.Values{"ref": []string{"HEAD"}}, &out)
	if err != nil {
		if fe, isForgeErr := err.(*forgeclient.Error); isForgeErr && fe.Kind == forgeclient.KindNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	if out.Encoding == "base64" {
		decoded, derr := base64.StdEncoding.DecodeString(out.Content)
		if derr != nil {
			return "", true, derr
		}
		return string(decoded), true, nil
	}
	return out.Content, true, nil
}
