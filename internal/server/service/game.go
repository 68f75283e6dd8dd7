package service

import (
	"fmt"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/storage"

	"github.com/google/uuid"
)

// GameSummary is one row of a caller's game list
type GameSummary struct {
	GameID    string
	Result    core.ResultStatus
	MoveCount int
	CreatedAt time.Time
}

// CreateGame starts an empty game owned by ownerID
func (s *Service) CreateGame(ownerID string) (*core.Game, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	game := &core.Game{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Moves:     []core.Move{},
		Result:    core.ResultOngoing,
		CreatedAt: time.Now().UTC(),
	}

	err := s.store.CreateGame(storage.GameRecord{
		GameID:    game.ID,
		OwnerID:   game.OwnerID,
		Result:    game.Result.String(),
		CreatedAt: game.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// ListGames returns ownerID's games, newest first
func (s *Service) ListGames(ownerID string) ([]GameSummary, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	records, err := s.store.QueryGames("", ownerID)
	if err != nil {
		return nil, err
	}

	games := make([]GameSummary, 0, len(records))
	for _, r := range records {
		result, err := core.ParseResultStatus(r.Result)
		if err != nil {
			return nil, fmt.Errorf("game %s: %w", r.GameID, err)
		}
		games = append(games, GameSummary{
			GameID:    r.GameID,
			Result:    result,
			MoveCount: r.MoveCount,
			CreatedAt: r.CreatedAt,
		})
	}
	return games, nil
}

// GetGame returns a game and its ledger in submission order. Only the owner
// may read it.
func (s *Service) GetGame(gameID, requesterID string) (*core.Game, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	record, err := s.store.GetGame(gameID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != requesterID {
		return nil, ErrForbidden
	}

	result, err := core.ParseResultStatus(record.Result)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}

	moves, err := s.store.GetMoves(gameID)
	if err != nil {
		return nil, err
	}

	game := &core.Game{
		ID:        record.GameID,
		OwnerID:   record.OwnerID,
		Moves:     make([]core.Move, 0, len(moves)),
		Result:    result,
		CreatedAt: record.CreatedAt,
	}
	for _, m := range moves {
		game.Moves = append(game.Moves, core.Move{
			From:        m.FromSquare,
			To:          m.ToSquare,
			Fingerprint: m.FEN,
			Evaluation:  m.Evaluation,
			Sequence:    m.SessionSeq,
			SubmittedAt: m.SubmittedAt,
		})
	}
	return game, nil
}
