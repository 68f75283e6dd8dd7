package service

import (
	"path/filepath"
	"testing"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-that-is-at-least-32-bytes-long")

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "svc.db"), false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.InitDB())
	svc := New(store, testSecret)
	t.Cleanup(func() { svc.Shutdown() })
	return svc
}

func TestTokenRoundTrip(t *testing.T) {
	svc := New(nil, testSecret)

	token, err := svc.GenerateUserToken("alice", time.Hour)
	require.NoError(t, err)

	userID, claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
	assert.Equal(t, "analysis", claims["scope"])

	_, _, err = New(nil, []byte("another-secret-that-is-32-bytes-or-more")).ValidateToken(token)
	assert.Error(t, err)

	_, _, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)

	_, err = svc.GenerateUserToken("", time.Hour)
	assert.Error(t, err)
}

func TestStorageHealth(t *testing.T) {
	assert.Equal(t, "disabled", New(nil, testSecret).GetStorageHealth())
	assert.Equal(t, "ok", newTestService(t).GetStorageHealth())
}

func TestGames_StorageDisabled(t *testing.T) {
	svc := New(nil, testSecret)

	_, err := svc.CreateGame("alice")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	_, err = svc.ListGames("alice")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	_, err = svc.GetGame("id", "alice")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.NoError(t, svc.Shutdown())
}

func TestGames_CreateListGet(t *testing.T) {
	svc := newTestService(t)

	game, err := svc.CreateGame("alice")
	require.NoError(t, err)
	assert.Equal(t, core.ResultOngoing, game.Result)
	assert.Empty(t, game.Moves)

	done := make(chan error, 1)
	require.NoError(t, svc.Store().AppendMove("alice", storage.MoveRecord{
		GameID:      game.ID,
		FromSquare:  "e2",
		ToSquare:    "e4",
		FEN:         "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Evaluation:  0.3,
		SessionSeq:  1,
		SubmittedAt: time.Now(),
	}, func(err error) { done <- err }))
	require.NoError(t, <-done)

	list, err := svc.ListGames("alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, game.ID, list[0].GameID)
	assert.Equal(t, 1, list[0].MoveCount)

	none, err := svc.ListGames("bob")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := svc.GetGame(game.ID, "alice")
	require.NoError(t, err)
	require.Len(t, got.Moves, 1)
	assert.Equal(t, "e2", got.Moves[0].From)
	assert.Equal(t, 0.3, got.Moves[0].Evaluation)

	_, err = svc.GetGame(game.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetGame("00000000-0000-0000-0000-000000000000", "alice")
	assert.ErrorIs(t, err, storage.ErrGameNotFound)
}
