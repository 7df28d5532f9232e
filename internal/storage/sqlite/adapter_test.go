package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "exports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	run := &domain.ExportRun{
		ID:         "run-1",
		Org:        "acme",
		OutputFile: "out.csv",
		Properties: []string{"team", "cost-center"},
		Debug:      true,
		Status:     domain.RunStatusInProgress,
		StartedAt:  started,
	}
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusInProgress, got.Status)
	assert.Equal(t, []string{"team", "cost-center"}, got.Properties)
	assert.True(t, got.Debug)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Summary)

	finished := started.Add(time.Minute)
	run.Status = domain.RunStatusCompleted
	run.RowsWritten = 2
	run.Skipped = 1
	run.FinishedAt = &finished
	run.Summary = &domain.Summary{Org: "acme", TotalRepos: 2, ByVisibility: map[string]int{"private": 2}}
	require.NoError(t, store.FinishRun(ctx, run))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, got.RowsWritten)
	assert.Equal(t, 1, got.Skipped)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.ByVisibility["private"])
}

func TestGetRun_NotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetRun(context.Background(), "missing")

	assert.True(t, apperrors.IsNotFound(err))
}

func TestFinishRun_NotFound(t *testing.T) {
	store := newTestStorage(t)

	err := store.FinishRun(context.Background(), &domain.ExportRun{ID: "missing", Status: domain.RunStatusFailed})

	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetRuns(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, org := range []string{"acme", "acme", "globex"} {
		require.NoError(t, store.CreateRun(ctx, &domain.ExportRun{
			ID:        org + "-" + string(rune('a'+i)),
			Org:       org,
			Status:    domain.RunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	t.Run("filters by org newest first", func(t *testing.T) {
		runs, err := store.GetRuns(ctx, "acme", 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "acme-b", runs[0].ID)
		assert.Equal(t, "acme-a", runs[1].ID)
	})

	t.Run("all orgs with limit", func(t *testing.T) {
		runs, err := store.GetRuns(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "globex-c", runs[0].ID)
	})
}

func TestRepoResults(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, &domain.ExportRun{ID: "run-1", Org: "acme", Status: domain.RunStatusInProgress, StartedAt: now}))

	require.NoError(t, store.SaveRepoResult(ctx, &domain.RepoResult{RunID: "run-1", Repo: "b", Status: domain.RepoStatusExported, CreatedAt: now}))
	require.NoError(t, store.SaveRepoResult(ctx, &domain.RepoResult{RunID: "run-1", Repo: "a", Status: domain.RepoStatusSkipped, ErrorMessage: "forbidden", CreatedAt: now.Add(time.Second)}))

	results, err := store.GetRepoResults(ctx, "run-1")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Repo)
	assert.Equal(t, domain.RepoStatusSkipped, results[1].Status)
	assert.Equal(t, "forbidden", results[1].ErrorMessage)
}
