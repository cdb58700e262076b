package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) *GormRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := OpenGorm("sqlite", dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewGormRepository(db)
}

func TestGormRepository_RoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	m := engine.NewMatch("court-7", engine.MatchInit{Title: "Final", VideoID: "yt123", TeamA: "Brazil", TeamB: "Italy"}, start)
	require.NoError(t, repo.Create(ctx, m))
	require.ErrorIs(t, repo.Create(ctx, m), ErrDuplicateMatch)

	_, next, err := engine.Apply(m, engine.Command{
		Type:  engine.CmdAddEvent,
		Event: engine.EventInput{WhoScored: "Brazil", RefCall: engine.RefPointLeft, ScoreA: 1},
	}, start.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, next))

	got, err := repo.Get(ctx, "court-7")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ScoreA)
	assert.Equal(t, "yt123", got.VideoID)
	require.Len(t, got.EventLog, 1)
	assert.Equal(t, engine.RefPointLeft, got.EventLog[0].RefCall)
	assert.True(t, got.AutoScoringEnabled)
	assert.True(t, got.LastUpdated.Equal(start.Add(time.Second)))
}

func TestGormRepository_NotFound(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, engine.ErrMatchNotFound)

	err = repo.Save(ctx, engine.NewMatch("missing", engine.MatchInit{}, start))
	require.ErrorIs(t, err, engine.ErrMatchNotFound)

	require.ErrorIs(t, repo.Delete(ctx, "missing"), engine.ErrMatchNotFound)
}

func TestGormRepository_ResetPersistsEmptyLog(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	m := engine.NewMatch("court-2", engine.MatchInit{}, start)
	m.EventLog = []engine.Event{{WhoScored: "Team A", RefCall: engine.RefPointLeft, ScoreA: 1}}
	m.ScoreA = 1
	require.NoError(t, repo.Create(ctx, m))

	_, reset, err := engine.Apply(m, engine.Command{Type: engine.CmdResetMatch}, start)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, reset))

	got, err := repo.Get(ctx, "court-2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ScoreA)
	assert.NotNil(t, got.EventLog)
	assert.Empty(t, got.EventLog)
}

func TestGormRepository_ListLive(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	a := engine.NewMatch("a", engine.MatchInit{}, start)
	b := engine.NewMatch("b", engine.MatchInit{}, start.Add(time.Minute))
	b.IsLive = false
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	all, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].MatchID)

	live, err := repo.List(ctx, ListOptions{LiveOnly: true})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a", live[0].MatchID)

	require.NoError(t, repo.Ping(ctx))
}

func TestStore_OverGorm(t *testing.T) {
	s, _ := newTestStore(t, newSQLiteRepo(t))
	ctx := context.Background()

	m, err := s.CreateDefault(ctx, engine.MatchInit{Title: "Final", TeamA: "Brazil", TeamB: "Italy"})
	require.NoError(t, err)

	set := 2
	updated, err := s.ApplyUpdate(ctx, m.MatchID, engine.MatchPatch{SetNumber: &set})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.SetNumber)

	got, err := s.Get(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SetNumber)
}
