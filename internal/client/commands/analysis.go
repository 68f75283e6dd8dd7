package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"chessanalysis/internal/client/display"
	"chessanalysis/internal/client/session"
	"chessanalysis/internal/client/stream"
	"chessanalysis/internal/server/core"

	"github.com/notnil/chess"
)

// moveObject is the move the client sends; the server echoes it back
type moveObject struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
	UCI  string `json:"uci"`
}

func (r *Registry) registerAnalysisCommands() {
	r.Register(&Command{
		Name:        "connect",
		ShortName:   "c",
		Description: "Open a session socket",
		Usage:       "connect [socketUrl]",
		Handler:     connectHandler,
	})

	r.Register(&Command{
		Name:        "disconnect",
		ShortName:   "q",
		Description: "Close the session socket",
		Usage:       "disconnect",
		Handler:     disconnectHandler,
	})

	r.Register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Play moves in UCI notation and request analysis",
		Usage:       "move <uci> [uci...]",
		Handler:     moveHandler,
	})

	r.Register(&Command{
		Name:        "fen",
		ShortName:   "f",
		Description: "Set the local position",
		Usage:       "fen <fen>",
		Handler:     fenHandler,
	})

	r.Register(&Command{
		Name:        "reset",
		ShortName:   "r",
		Description: "Return to the starting position",
		Usage:       "reset",
		Handler:     resetHandler,
	})

	r.Register(&Command{
		Name:        "board",
		ShortName:   "b",
		Description: "Show the local board",
		Usage:       "board",
		Handler:     boardHandler,
	})

	r.Register(&Command{
		Name:        "raw",
		ShortName:   ":",
		Description: "Send raw text over the session socket",
		Usage:       "raw <text>",
		Handler:     rawHandler,
	})
}

func connectHandler(s *session.Session, args []string) error {
	if len(args) > 0 {
		s.SocketURL = args[0]
	}
	if s.Connected() {
		s.Conn.Close()
	}

	conn, err := stream.Dial(s.SocketURL, s.AuthToken, MessageHandler(s.Out, s.Verbose))
	if err != nil {
		return err
	}
	s.Conn = conn
	fmt.Fprintf(s.Out, "%sConnected to %s%s\n", display.Green, s.SocketURL, display.Reset)
	return nil
}

func disconnectHandler(s *session.Session, args []string) error {
	if !s.Connected() {
		return fmt.Errorf("not connected")
	}
	err := s.Conn.Close()
	s.Conn = nil
	fmt.Fprintf(s.Out, "%sDisconnected%s\n", display.Yellow, display.Reset)
	return err
}

func moveHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: move <uci> [uci...]")
	}
	if !s.Connected() {
		return fmt.Errorf("not connected (use 'connect')")
	}

	for _, uci := range args {
		pos := s.Game.Position()
		m, err := chess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			return fmt.Errorf("invalid move %q: %w", uci, err)
		}
		if !isLegal(pos, m) {
			return fmt.Errorf("illegal move %q", uci)
		}

		next := pos.Update(m)
		move := moveObject{
			From: m.S1().String(),
			To:   m.S2().String(),
			SAN:  chess.AlgebraicNotation{}.Encode(pos, m),
			UCI:  uci,
		}
		if err := s.Conn.SendMove(s.GameID, next.String(), move); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		if err := s.Game.Move(m); err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "%s%s%s sent\n", display.Cyan, move.SAN, display.Reset)
	}

	if s.Game.Outcome() != chess.NoOutcome {
		fmt.Fprintf(s.Out, "%sGame over: %s by %s%s\n", display.Magenta, s.Game.Outcome(), s.Game.Method(), display.Reset)
	}
	return nil
}

func isLegal(pos *chess.Position, m *chess.Move) bool {
	for _, valid := range pos.ValidMoves() {
		if valid.S1() == m.S1() && valid.S2() == m.S2() && valid.Promo() == m.Promo() {
			return true
		}
	}
	return false
}

func fenHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: fen <fen>")
	}
	opt, err := chess.FEN(strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.Game = chess.NewGame(opt)
	display.RenderBoard(s.Out, s.Game.Position())
	return nil
}

func resetHandler(s *session.Session, args []string) error {
	s.Game = chess.NewGame()
	display.RenderBoard(s.Out, s.Game.Position())
	return nil
}

func boardHandler(s *session.Session, args []string) error {
	display.RenderBoard(s.Out, s.Game.Position())
	fmt.Fprintf(s.Out, "FEN: %s\n", s.Game.Position().String())
	return nil
}

func rawHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: raw <text>")
	}
	if !s.Connected() {
		return fmt.Errorf("not connected (use 'connect')")
	}
	return s.Conn.SendRaw(strings.Join(args, " "))
}

// MessageHandler prints every server message as it arrives
func MessageHandler(out io.Writer, verbose bool) stream.Handler {
	return func(msgType string, data json.RawMessage) {
		if verbose {
			fmt.Fprintf(out, "%s[%s]%s\n", display.Blue, msgType, display.Reset)
			display.PrettyPrintJSON(out, data)
		}

		switch msgType {
		case core.MessageSession:
			var msg core.SessionMessage
			if json.Unmarshal(data, &msg) == nil {
				mode := "anonymous"
				if msg.Authenticated {
					mode = "authenticated"
				}
				fmt.Fprintf(out, "%sSession %s (%s)%s\n", display.Green, msg.SessionID, mode, display.Reset)
			}
		case core.MessageAnalysis:
			var msg core.AnalysisMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Fprintf(out, "%sUnreadable analysis: %s%s\n", display.Red, err, display.Reset)
				return
			}
			var move moveObject
			json.Unmarshal(msg.Move, &move)
			fmt.Fprintf(out, "%sAnalysis%s after %s: best %s%s%s eval %s depth %d\n",
				display.Cyan, display.Reset, move.SAN,
				display.Green, msg.Analysis.BestMove, display.Reset,
				display.FormatEval(msg.Analysis.Evaluation), msg.Analysis.Depth)
			if len(msg.Analysis.PV) > 0 {
				fmt.Fprintf(out, "  pv: %s\n", strings.Join(msg.Analysis.PV, " "))
			}
		case core.MessageError:
			var msg core.ErrorMessage
			json.Unmarshal(data, &msg)
			fmt.Fprintf(out, "%sServer error: %s%s\n", display.Red, msg.Message, display.Reset)
			if msg.FEN != "" {
				fmt.Fprintf(out, "  for position: %s\n", msg.FEN)
			}
		default:
			fmt.Fprintf(out, "%sUnknown message type %q%s\n", display.Yellow, msgType, display.Reset)
		}
	}
}
