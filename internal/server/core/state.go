package core

import "fmt"

// ResultStatus is the outcome recorded for a game
type ResultStatus int

const (
	ResultOngoing ResultStatus = iota
	ResultWhite
	ResultBlack
	ResultDraw
)

func (s ResultStatus) String() string {
	switch s {
	case ResultWhite:
		return "white"
	case ResultBlack:
		return "black"
	case ResultDraw:
		return "draw"
	default:
		return "ongoing"
	}
}

// ParseResultStatus is the inverse of ResultStatus.String
func ParseResultStatus(s string) (ResultStatus, error) {
	switch s {
	case "ongoing", "":
		return ResultOngoing, nil
	case "white":
		return ResultWhite, nil
	case "black":
		return ResultBlack, nil
	case "draw":
		return ResultDraw, nil
	default:
		return ResultOngoing, fmt.Errorf("unknown result status %q", s)
	}
}
