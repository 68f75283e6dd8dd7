package storage

import "time"

// GameRecord represents a row in the games table
type GameRecord struct {
	GameID    string    `db:"game_id"`
	OwnerID   string    `db:"owner_id"`
	Result    string    `db:"result"` // "ongoing", "white", "black" or "draw"
	CreatedAt time.Time `db:"created_at"`
}

// GameSummaryRecord is a games row joined with its move count
type GameSummaryRecord struct {
	GameRecord
	MoveCount int `db:"move_count"`
}

// MoveRecord represents a row in the moves table
type MoveRecord struct {
	MoveID      int64     `db:"move_id"`
	GameID      string    `db:"game_id"`
	FromSquare  string    `db:"from_square"`
	ToSquare    string    `db:"to_square"`
	FEN         string    `db:"fen"`
	Evaluation  float64   `db:"evaluation"`
	SessionSeq  int64     `db:"session_seq"`
	SubmittedAt time.Time `db:"submitted_at"` // stored as unix nanoseconds
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT 'ongoing' CHECK(result IN ('ongoing', 'white', 'black', 'draw')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS moves (
	move_id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL,
	from_square TEXT NOT NULL,
	to_square TEXT NOT NULL,
	fen TEXT NOT NULL,
	evaluation REAL NOT NULL DEFAULT 0,
	session_seq INTEGER NOT NULL DEFAULT 0,
	submitted_at INTEGER NOT NULL,
	FOREIGN KEY (game_id) REFERENCES games(game_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_games_owner_id ON games(owner_id);
CREATE INDEX IF NOT EXISTS idx_moves_game_order ON moves(game_id, submitted_at, session_seq, move_id);
`
