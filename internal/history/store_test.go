package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devstress/devstress/internal/metrics"
)

func summaryAt(runID string, start time.Time) *metrics.Summary {
	return &metrics.Summary{
		RunID:              runID,
		URL:                "https://api.example.com",
		StartTime:          start,
		TotalRequests:      100,
		SuccessfulRequests: 99,
		SuccessRate:        99,
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	want := summaryAt("run-1", time.Now().Truncate(time.Second))
	path, err := store.Save(want)
	require.NoError(t, err)
	assert.FileExists(t, path)

	got, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.TotalRequests, got.TotalRequests)
	assert.True(t, want.StartTime.Equal(got.StartTime))
}

func TestStore_ListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		_, err := store.Save(summaryAt(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "new", summaries[0].RunID)
	assert.Equal(t, "mid", summaries[1].RunID)
	assert.Equal(t, "old", summaries[2].RunID)
}

func TestStore_ListSkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Save(summaryAt("good", time.Now()))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good", summaries[0].RunID)
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("never-saved")
	assert.Error(t, err)
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "history")
	_, err := NewStore(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
