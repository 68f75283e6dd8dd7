package core

import "time"

// Response types

type GameResponse struct {
	GameID    string         `json:"gameId"`
	OwnerID   string         `json:"ownerId"`
	Result    string         `json:"result"`
	CreatedAt time.Time      `json:"createdAt"`
	Moves     []MoveResponse `json:"moves"`
}

type GameSummary struct {
	GameID    string    `json:"gameId"`
	Result    string    `json:"result"`
	MoveCount int       `json:"moveCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type MoveResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	FEN        string    `json:"fen"`
	Evaluation float64   `json:"evaluation"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
