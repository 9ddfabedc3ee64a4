package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointMarkCompletedIsIdempotent(t *testing.T) {
	cp := NewCheckpoint(1, "run-a")
	require.False(t, cp.IsCompleted(ComponentIssues))

	cp.MarkCompleted(ComponentIssues)
	cp.MarkCompleted(ComponentIssues)
	require.True(t, cp.IsCompleted(ComponentIssues))
	require.Len(t, cp.CompletedComponents, 1)
}

func TestCheckpointPartialStateRoundTrip(t *testing.T) {
	cp := NewCheckpoint(1, "run-a")
	type partial struct {
		Page int `json:"page"`
	}
	cp.SetPartial(ComponentIssues, partial{Page: 3})

	var out partial
	ok := cp.PartialFor(ComponentIssues, &out)
	require.True(t, ok)
	require.Equal(t, 3, out.Page)

	var missing partial
	require.False(t, cp.PartialFor(ComponentWiki, &missing))
}

func TestCheckpointLoadMissingReturnsFresh(t *testing.T) {
	dir := t.TempDir()
	cp, err := Load(dir, 42, "run-x")
	require.NoError(t, err)
	require.Equal(t, int64(42), cp.ProjectID)
	require.Equal(t, "run-x", cp.RunID)
	require.Empty(t, cp.CompletedComponents)
}

func TestCheckpointSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cp := NewCheckpoint(7, "run-y")
	cp.MarkCompleted(ComponentRepository)
	cp.SetPartial(ComponentIssues, map[string]any{"cursor": "abc"})

	require.NoError(t, cp.Save(dir))

	path := checkpointPath(dir, 7, "run-y")
	require.FileExists(t, path)
	require.NoFileExists(t, filepath.Join(dir, "7", "run-y", "checkpoint.json.tmp"), "Save must not leave the temp file behind")

	loaded, err := Load(dir, 7, "run-y")
	require.NoError(t, err)
	require.True(t, loaded.IsCompleted(ComponentRepository))
	require.False(t, loaded.IsCompleted(ComponentIssues), "partial state is not completion")

	var partial map[string]any
	require.True(t, loaded.PartialFor(ComponentIssues, &partial))
	require.Equal(t, "abc", partial["cursor"])
}

func TestCheckpointLoadCorruptFileReturnsFresh(t *testing.T) {
	dir := t.TempDir()
	path := checkpointPath(dir, 9, "run-z")
	require.NoError(t, writeTextFile(filepath.Dir(path), "checkpoint.json", "{not json"))

	cp, err := Load(dir, 9, "run-z")
	require.NoError(t, err)
	require.Equal(t, int64(9), cp.ProjectID)
	require.Empty(t, cp.CompletedComponents)
}
