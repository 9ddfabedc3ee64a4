package apply

import (
	"encoding/json"
	"fmt"
	"strings"
)

// splitRepo splits "owner/repo" into its parts.
func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo full name %q, expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}

// failResult builds a failed Result from an error, for the common
// "something in Execute went wrong" path every action family shares.
func failResult(a Action, err error) Result {
	return newResult(a.ID(), a.Type(), false, nil, err.Error())
}

// rollbackPayload marshals rollback bookkeeping data for storage in
// Result.RollbackData; a marshal failure here would be a programming
// error (the map is always built from known-serializable values), so it
// panics rather than threading another error return through every action.
func rollbackPayload(data map[string]any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		panic("apply: rollback payload not serializable: " + err.Error())
	}
	return raw
}

func unmarshalPayload(data json.RawMessage) (map[string]any, error) {
	var out map[string]any
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
