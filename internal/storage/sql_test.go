package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testEpisode(finished time.Time) Episode {
	return Episode{
		ID:             uuid.NewString(),
		Policy:         "MLP",
		EnableICM:      true,
		GridSize:       5,
		NDrones:        3,
		NAnomalous:     5,
		Steps:          42,
		TotalReward:    4.58,
		AnomaliesFound: 5,
		Done:           true,
		StartedAt:      finished.Add(-time.Second),
		FinishedAt:     finished,
	}
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEpisode(time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC))
	require.NoError(t, store.SaveEpisode(ctx, ep))

	got, err := store.GetEpisode(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, ep, got)
}

func TestSQLStore_Conflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEpisode(time.Now().UTC())
	require.NoError(t, store.SaveEpisode(ctx, ep))
	assert.ErrorIs(t, store.SaveEpisode(ctx, ep), ErrConflict)
}

func TestIsUniqueViolation_OnlyKeyConstraints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `INSERT INTO episodes (id) VALUES ('partial')`)
	require.Error(t, err)
	assert.False(t, isUniqueViolation(err), "NOT NULL violation is not a conflict")

	ep := testEpisode(time.Now().UTC())
	require.NoError(t, store.SaveEpisode(ctx, ep))
	_, err = store.db.ExecContext(ctx, `INSERT INTO episodes (`+episodeColumns+`)
		SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, ep.ID)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestSQLStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetEpisode(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		ep := testEpisode(base.Add(time.Duration(i) * time.Minute))
		ep.Done = i != 1
		if i == 1 {
			ep.LastError = "environment step failed"
		}
		require.NoError(t, store.SaveEpisode(ctx, ep))
		ids = append(ids, ep.ID)
	}

	eps, err := store.ListEpisodes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, ids[2], eps[0].ID)
	assert.Equal(t, ids[1], eps[1].ID)
	assert.False(t, eps[1].Done)
	assert.Equal(t, "environment step failed", eps[1].LastError)
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{postgres: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestNoopStore(t *testing.T) {
	var s ResultStore = NoopStore{}
	require.NoError(t, s.SaveEpisode(context.Background(), Episode{ID: "x"}))
	_, err := s.GetEpisode(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
