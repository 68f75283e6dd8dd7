package core

import "time"

// AnalysisRequest asks the engine to evaluate one position
type AnalysisRequest struct {
	Fingerprint string // FEN of the position
	Depth       int
}

// AnalysisResult is the decoded engine answer for a position
type AnalysisResult struct {
	Fingerprint        string
	BestMove           string
	Evaluation         float64
	Depth              int
	PrincipalVariation []string
}

// Move is one entry of a game's ledger
type Move struct {
	From        string
	To          string
	Fingerprint string
	Evaluation  float64
	Sequence    int64 // per-session submission order
	SubmittedAt time.Time
}

// Game is the durable record of moves owned by an identity
type Game struct {
	ID        string
	OwnerID   string
	Moves     []Move
	Result    ResultStatus
	CreatedAt time.Time
}
