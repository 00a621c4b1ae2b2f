package storage

import (
	"testing"
	"time"

	"threatharvest/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunStore_Lifecycle(t *testing.T) {
	store := NewRunStore(setupTestDB(t), zap.NewNop().Sugar())

	start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	id, err := store.CreateRun(start, 3)
	require.NoError(t, err)
	assert.Positive(t, id)

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusRunning, run.Status)
	assert.Equal(t, 3, run.SourcesCount)
	assert.True(t, run.StartTime.Equal(start))
	assert.Nil(t, run.EndTime)

	end := start.Add(2 * time.Minute)
	run.EndTime = &end
	run.Status = core.RunStatusCompleted
	run.EntriesFetched = 42
	run.EntriesProcessed = 40
	run.EntriesAddedToKB = 12
	require.NoError(t, store.FinishRun(run))

	finished, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, finished.Status)
	assert.Equal(t, 42, finished.EntriesFetched)
	assert.Equal(t, 40, finished.EntriesProcessed)
	assert.Equal(t, 12, finished.EntriesAddedToKB)
	require.NotNil(t, finished.EndTime)
	assert.True(t, finished.EndTime.Equal(end))
}

func TestRunStore_ErrorStatus(t *testing.T) {
	store := NewRunStore(setupTestDB(t), zap.NewNop().Sugar())

	id, err := store.CreateRun(time.Now(), 1)
	require.NoError(t, err)

	end := time.Now()
	require.NoError(t, store.FinishRun(&core.RunRecord{
		ID:           id,
		EndTime:      &end,
		Status:       core.RunStatusError,
		SourcesCount: 1,
		ErrorMessage: "persistence failed",
	}))

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusError, run.Status)
	assert.Equal(t, "persistence failed", run.ErrorMessage)
}

func TestRunStore_FinishRejectsInvalidStatus(t *testing.T) {
	store := NewRunStore(setupTestDB(t), zap.NewNop().Sugar())

	id, err := store.CreateRun(time.Now(), 1)
	require.NoError(t, err)

	err = store.FinishRun(&core.RunRecord{ID: id, Status: "bogus"})
	require.Error(t, err)
}

func TestRunStore_FinishUnknownRun(t *testing.T) {
	store := NewRunStore(setupTestDB(t), zap.NewNop().Sugar())

	err := store.FinishRun(&core.RunRecord{ID: 999, Status: core.RunStatusCompleted})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStore_LastRunAndList(t *testing.T) {
	store := NewRunStore(setupTestDB(t), zap.NewNop().Sugar())

	last, err := store.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last, "no runs yet")

	for i := 0; i < 3; i++ {
		_, err := store.CreateRun(time.Now(), i+1)
		require.NoError(t, err)
	}

	last, err = store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 3, last.SourcesCount)

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].SourcesCount, "newest first")
	assert.Equal(t, 2, runs[1].SourcesCount)
}
