package core

import "encoding/json"

// Session event and message types
const (
	EventMove       = "move"
	MessageSession  = "session"
	MessageAnalysis = "analysis"
	MessageError    = "error"
)

// InboundEnvelope wraps every client event on a session connection
type InboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundEnvelope wraps every server message on a session connection
type OutboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MoveEvent is the payload of an inbound "move" event
type MoveEvent struct {
	GameID string          `json:"gameId,omitempty" validate:"omitempty,uuid"`
	FEN    string          `json:"fen" validate:"required,max=100"`
	Move   json.RawMessage `json:"move" validate:"required"`
}

// MoveSquares holds the fields of the client's move object the server reads;
// the rest of the object is echoed back untouched.
type MoveSquares struct {
	From string `json:"from" validate:"required,len=2"`
	To   string `json:"to" validate:"required,len=2"`
}

// AnalysisPayload is the analysis object inside an "analysis" message
type AnalysisPayload struct {
	BestMove   string   `json:"bestMove"`
	Evaluation float64  `json:"evaluation"`
	Depth      int      `json:"depth"`
	PV         []string `json:"pv"`
}

// AnalysisMessage is sent when a result is still relevant to the session
type AnalysisMessage struct {
	FEN      string          `json:"fen"`
	Analysis AnalysisPayload `json:"analysis"`
	Move     json.RawMessage `json:"move"`
}

// ErrorMessage reports a failed request to the session. FEN is set when an
// analysis failed and names the position it was for.
type ErrorMessage struct {
	Message string `json:"message"`
	FEN     string `json:"fen,omitempty"`
}

// SessionMessage is sent once when a session is established
type SessionMessage struct {
	SessionID     string `json:"sessionId"`
	Authenticated bool   `json:"authenticated"`
}

// NewAnalysisPayload converts a result to its wire form
func NewAnalysisPayload(r *AnalysisResult) AnalysisPayload {
	pv := r.PrincipalVariation
	if pv == nil {
		pv = []string{}
	}
	return AnalysisPayload{
		BestMove:   r.BestMove,
		Evaluation: r.Evaluation,
		Depth:      r.Depth,
		PV:         pv,
	}
}
