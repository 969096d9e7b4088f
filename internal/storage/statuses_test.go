package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficpilot/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStatusStore_SaveOverwritesLatest(t *testing.T) {
	ctx := context.Background()
	store := NewStatusStore(openTestDB(t))

	start := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, store.Save(ctx, models.BotStatusEvent{
		SessionID: "s1", Status: models.StatusStarting, Message: "Memulai bot...", Timestamp: start,
	}))
	require.NoError(t, store.Save(ctx, models.BotStatusEvent{
		SessionID: "s1", Status: models.StatusCompleted, Message: "done", Timestamp: start.Add(time.Minute),
	}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Message)
	assert.True(t, got.Timestamp.Equal(start.Add(time.Minute)))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int{models.StatusCompleted: 1}, counts)
}

func TestStatusStore_GetUnknown(t *testing.T) {
	store := NewStatusStore(openTestDB(t))

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusStore_PruneFinishedKeepsRunning(t *testing.T) {
	ctx := context.Background()
	store := NewStatusStore(openTestDB(t))
	old := time.Now().Add(-2 * time.Hour)

	require.NoError(t, store.Save(ctx, models.BotStatusEvent{SessionID: "done", Status: models.StatusCompleted, Timestamp: old}))
	require.NoError(t, store.Save(ctx, models.BotStatusEvent{SessionID: "failed", Status: models.StatusError, Timestamp: old}))
	require.NoError(t, store.Save(ctx, models.BotStatusEvent{SessionID: "running", Status: models.StatusProgress, Timestamp: old}))
	require.NoError(t, store.Save(ctx, models.BotStatusEvent{SessionID: "fresh", Status: models.StatusCompleted}))

	deleted, err := store.PruneFinished(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	_, err = store.Get(ctx, "done")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "running")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestOpen_FileDatabaseCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "status.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	store := NewStatusStore(db)
	require.NoError(t, store.Save(context.Background(), models.BotStatusEvent{SessionID: "s1", Status: models.StatusStarting}))
	assert.FileExists(t, path)
}
