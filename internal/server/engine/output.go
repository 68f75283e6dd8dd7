package engine

import (
	"bytes"
	"encoding/json"
	"errors"

	"chessanalysis/internal/server/core"
)

// engineOutput is the JSON document the engine prints on success.
// Every field is optional.
type engineOutput struct {
	BestMove   *string   `json:"bestMove"`
	Evaluation *float64  `json:"evaluation"`
	Depth      *int      `json:"depth"`
	TopMoves   []topMove `json:"topMoves"`
}

type topMove struct {
	Move  string   `json:"move"`
	Score *float64 `json:"score,omitempty"`
}

var errNotObject = errors.New("engine output is not a JSON object")

// decodeOutput parses stdout and applies defaults for absent fields:
// empty best move, evaluation 0, the requested depth, empty variation
func decodeOutput(stdout []byte, req core.AnalysisRequest) (*core.AnalysisResult, error) {
	if trimmed := bytes.TrimSpace(stdout); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var out engineOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, err
	}

	result := &core.AnalysisResult{
		Fingerprint:        req.Fingerprint,
		Depth:              req.Depth,
		PrincipalVariation: make([]string, 0, len(out.TopMoves)),
	}
	if out.BestMove != nil {
		result.BestMove = *out.BestMove
	}
	if out.Evaluation != nil {
		result.Evaluation = *out.Evaluation
	}
	if out.Depth != nil {
		result.Depth = *out.Depth
	}
	for _, m := range out.TopMoves {
		result.PrincipalVariation = append(result.PrincipalVariation, m.Move)
	}

	return result, nil
}
