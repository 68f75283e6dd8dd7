package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/notnil/chess"
)

// RenderBoard writes the position with white pieces in blue and black in red
func RenderBoard(w io.Writer, pos *chess.Position) {
	board := pos.Board()
	files := Cyan + "  a b c d e f g h" + Reset

	fmt.Fprintln(w, files)
	for r := chess.Rank8; r >= chess.Rank1; r-- {
		fmt.Fprintf(w, "%s%d%s ", Cyan, int(r)+1, Reset)
		for f := chess.FileA; f <= chess.FileH; f++ {
			fmt.Fprint(w, pieceGlyph(board.Piece(chess.NewSquare(f, r))), " ")
		}
		fmt.Fprintf(w, "%s%d%s\n", Cyan, int(r)+1, Reset)
	}
	fmt.Fprintln(w, files)
	fmt.Fprintf(w, "Turn: %s\n", ColorForTurn(pos.Turn()))
}

func pieceGlyph(p chess.Piece) string {
	if p == chess.NoPiece {
		return "."
	}
	letter := p.Type().String()
	if p.Color() == chess.White {
		return Blue + strings.ToUpper(letter) + Reset
	}
	return Red + strings.ToLower(letter) + Reset
}

// ColorForTurn returns colored turn indicator
func ColorForTurn(turn chess.Color) string {
	if turn == chess.White {
		return Blue + "White" + Reset
	}
	return Red + "Black" + Reset
}
