package discovery

import "encoding/json"

// decodeAppend unmarshals a JSON array page into a fresh slice and appends
// it to *out, returning the count added. Shared by every Paginate callback
// in gitlab.go regardless of element type.
func decodeAppend[T any](raw json.RawMessage, out *[]T) (int, error) {
	var page []T
	if err := json.Unmarshal(raw, &page); err != nil {
		return 0, err
	}
	*out = append(*out, page...)
	return len(page), nil
}
