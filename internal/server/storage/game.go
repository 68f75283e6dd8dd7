package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateGame synchronously inserts an empty game
func (s *Store) CreateGame(record GameRecord) error {
	if !s.healthStatus.Load() {
		return ErrDegraded
	}
	if record.Result == "" {
		record.Result = "ongoing"
	}

	query := `INSERT INTO games (game_id, owner_id, result, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, record.GameID, record.OwnerID, record.Result, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// AppendMove asynchronously adds a move to a game's ledger. An unknown game
// is created owned by ownerID; a game owned by anyone else is left untouched
// and done receives ErrNotOwner. done runs on the writer goroutine and is not
// called when AppendMove itself returns an error.
func (s *Store) AppendMove(ownerID string, record MoveRecord, done func(error)) error {
	return s.enqueue(writeJob{
		fn: func(tx *sql.Tx) error {
			var owner string
			err := tx.QueryRow(`SELECT owner_id FROM games WHERE game_id = ?`, record.GameID).Scan(&owner)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				_, err = tx.Exec(
					`INSERT INTO games (game_id, owner_id, result, created_at) VALUES (?, ?, 'ongoing', ?)`,
					record.GameID, ownerID, record.SubmittedAt.UTC(),
				)
				if err != nil {
					return fmt.Errorf("failed to create game: %w", err)
				}
			case err != nil:
				return fmt.Errorf("failed to look up game: %w", err)
			case owner != ownerID:
				return ErrNotOwner
			}

			query := `INSERT INTO moves (
				game_id, from_square, to_square, fen, evaluation, session_seq, submitted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`

			_, err = tx.Exec(query,
				record.GameID, record.FromSquare, record.ToSquare, record.FEN,
				record.Evaluation, record.SessionSeq, record.SubmittedAt.UnixNano(),
			)
			return err
		},
		done: done,
	})
}

// GetGame returns a single game
func (s *Store) GetGame(gameID string) (*GameRecord, error) {
	var g GameRecord
	query := `SELECT game_id, owner_id, result, created_at FROM games WHERE game_id = ?`

	err := s.db.QueryRow(query, gameID).Scan(&g.GameID, &g.OwnerID, &g.Result, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &g, nil
}

// GetMoves returns a game's ledger in submission order
func (s *Store) GetMoves(gameID string) ([]MoveRecord, error) {
	query := `SELECT
		move_id, game_id, from_square, to_square, fen, evaluation, session_seq, submitted_at
	FROM moves WHERE game_id = ?
	ORDER BY submitted_at, session_seq, move_id`

	rows, err := s.db.Query(query, gameID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	moves := []MoveRecord{}
	for rows.Next() {
		var m MoveRecord
		var submitted int64
		err := rows.Scan(
			&m.MoveID, &m.GameID, &m.FromSquare, &m.ToSquare,
			&m.FEN, &m.Evaluation, &m.SessionSeq, &submitted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		m.SubmittedAt = time.Unix(0, submitted).UTC()
		moves = append(moves, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return moves, nil
}

// QueryGames retrieves games with their move counts, newest first. An empty
// or "*" filter matches everything.
func (s *Store) QueryGames(gameID, ownerID string) ([]GameSummaryRecord, error) {
	query := `SELECT
		g.game_id, g.owner_id, g.result, g.created_at, COUNT(m.move_id)
	FROM games g LEFT JOIN moves m ON m.game_id = g.game_id
	WHERE 1=1`

	var args []interface{}

	if gameID != "" && gameID != "*" {
		query += " AND g.game_id = ?"
		args = append(args, gameID)
	}

	if ownerID != "" && ownerID != "*" {
		query += " AND g.owner_id = ?"
		args = append(args, ownerID)
	}

	query += " GROUP BY g.game_id ORDER BY g.created_at DESC, g.game_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	games := []GameSummaryRecord{}
	for rows.Next() {
		var g GameSummaryRecord
		err := rows.Scan(&g.GameID, &g.OwnerID, &g.Result, &g.CreatedAt, &g.MoveCount)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return games, nil
}
