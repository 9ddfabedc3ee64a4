package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "runlog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartFinishRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, AgentDiscovery, "run-1", "https://gitlab.example.com/group/a"))
	require.NoError(t, s.Finish(ctx, AgentDiscovery, "run-1", StatusSuccess, "12 projects", nil))

	runs, err := s.Recent(ctx, AgentDiscovery, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSuccess, runs[0].Status)
	assert.Equal(t, "12 projects", runs[0].Summary)
	assert.Empty(t, runs[0].LastError)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestFinishRecordsError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, AgentExport, "run-2", "42"))
	require.NoError(t, s.Finish(ctx, AgentExport, "run-2", StatusFailed, "", errors.New("boom")))

	runs, err := s.Recent(ctx, AgentExport, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].LastError)
}

func TestRecentOrdersNewestFirstAndIsolatesAgents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, AgentApply, "run-a", "plan-a"))
	require.NoError(t, s.Finish(ctx, AgentApply, "run-a", StatusSuccess, "", nil))
	require.NoError(t, s.Start(ctx, AgentApply, "run-b", "plan-b"))
	require.NoError(t, s.Finish(ctx, AgentApply, "run-b", StatusSuccess, "", nil))
	require.NoError(t, s.Start(ctx, AgentDiscovery, "run-c", "group"))

	applyRuns, err := s.Recent(ctx, AgentApply, 10)
	require.NoError(t, err)
	require.Len(t, applyRuns, 2)
	assert.Equal(t, "run-b", applyRuns[0].RunID)
	assert.Equal(t, "run-a", applyRuns[1].RunID)

	discoveryRuns, err := s.Recent(ctx, AgentDiscovery, 10)
	require.NoError(t, err)
	require.Len(t, discoveryRuns, 1)
	assert.Equal(t, StatusRunning, discoveryRuns[0].Status)
}

func TestStartIsIdempotentPerRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, AgentDiscovery, "run-x", "group-1"))
	require.NoError(t, s.Finish(ctx, AgentDiscovery, "run-x", StatusFailed, "", errors.New("transient")))
	require.NoError(t, s.Start(ctx, AgentDiscovery, "run-x", "group-1"))

	runs, err := s.Recent(ctx, AgentDiscovery, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Empty(t, runs[0].LastError)
	assert.Nil(t, runs[0].FinishedAt)
}
