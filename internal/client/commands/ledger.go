package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chessanalysis/internal/client/display"
	"chessanalysis/internal/client/session"

	"golang.org/x/term"
)

func (r *Registry) registerLedgerCommands() {
	r.Register(&Command{
		Name:        "token",
		ShortName:   "t",
		Description: "Set the auth token (prompted when omitted)",
		Usage:       "token [jwt]",
		Handler:     tokenHandler,
	})

	r.Register(&Command{
		Name:        "new",
		ShortName:   "n",
		Description: "Create a ledger game and record moves under it",
		Usage:       "new",
		Handler:     newGameHandler,
	})

	r.Register(&Command{
		Name:        "game",
		ShortName:   "g",
		Description: "Record moves under an existing game, or stop recording",
		Usage:       "game <gameId|none>",
		Handler:     gameHandler,
	})

	r.Register(&Command{
		Name:        "games",
		ShortName:   "l",
		Description: "List your recorded games",
		Usage:       "games",
		Handler:     listGamesHandler,
	})

	r.Register(&Command{
		Name:        "show",
		ShortName:   "s",
		Description: "Show a recorded game with its moves",
		Usage:       "show [gameId]",
		Handler:     showGameHandler,
	})

	r.Register(&Command{
		Name:        "health",
		ShortName:   ".",
		Description: "Check server health",
		Usage:       "health",
		Handler:     healthHandler,
	})

	r.Register(&Command{
		Name:        "url",
		ShortName:   "/",
		Description: "Set API base URL",
		Usage:       "url [apiUrl]",
		Handler:     urlHandler,
	})
}

func tokenHandler(s *session.Session, args []string) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		fmt.Fprint(s.Out, "Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(s.Out)
		if err != nil {
			return err
		}
		token = strings.TrimSpace(string(raw))
	}

	s.SetToken(token)
	if token == "" {
		fmt.Fprintf(s.Out, "%sToken cleared%s\n", display.Yellow, display.Reset)
	} else {
		fmt.Fprintf(s.Out, "%sToken set%s\n", display.Green, display.Reset)
	}
	if s.Connected() {
		fmt.Fprintf(s.Out, "Reconnect for the session to pick up the new token\n")
	}
	return nil
}

func newGameHandler(s *session.Session, args []string) error {
	game, err := s.Client.CreateGame()
	if err != nil {
		return err
	}
	s.GameID = game.GameID
	fmt.Fprintf(s.Out, "%sRecording under game %s%s\n", display.Green, game.GameID, display.Reset)
	return nil
}

func gameHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		if s.GameID == "" {
			fmt.Fprintln(s.Out, "Not recording")
		} else {
			fmt.Fprintf(s.Out, "Recording under game %s\n", s.GameID)
		}
		return nil
	}
	if args[0] == "none" {
		s.GameID = ""
		fmt.Fprintf(s.Out, "%sRecording stopped%s\n", display.Yellow, display.Reset)
		return nil
	}
	s.GameID = args[0]
	fmt.Fprintf(s.Out, "%sRecording under game %s%s\n", display.Green, s.GameID, display.Reset)
	return nil
}

func listGamesHandler(s *session.Session, args []string) error {
	games, err := s.Client.ListGames()
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintln(s.Out, "No games")
		return nil
	}
	for _, g := range games {
		marker := " "
		if g.GameID == s.GameID {
			marker = "*"
		}
		fmt.Fprintf(s.Out, "%s %s  %-8s %3d moves  %s\n",
			marker, g.GameID, g.Result, g.MoveCount, g.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func showGameHandler(s *session.Session, args []string) error {
	gameID := s.GameID
	if len(args) > 0 {
		gameID = args[0]
	}
	if gameID == "" {
		return fmt.Errorf("usage: show <gameId>")
	}

	game, err := s.Client.GetGame(gameID)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "%sGame %s%s (%s)\n", display.Cyan, game.GameID, display.Reset, game.Result)
	for i, m := range game.Moves {
		fmt.Fprintf(s.Out, "%3d. %s%s  eval %s  %s\n",
			i+1, m.From, m.To, display.FormatEval(m.Evaluation), m.Timestamp.Local().Format(time.TimeOnly))
	}
	return nil
}

func healthHandler(s *session.Session, args []string) error {
	resp, err := s.Client.Health()
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "%sServer Health:%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(s.Out, "  Status:   %s\n", resp.Status)
	fmt.Fprintf(s.Out, "  Time:     %s\n", time.Unix(resp.Time, 0).Format(time.DateTime))
	fmt.Fprintf(s.Out, "  Storage:  %s\n", resp.Storage)
	fmt.Fprintf(s.Out, "  Sessions: %d\n", resp.Sessions)
	return nil
}

func urlHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.Out, "API:    %s\n", s.APIBaseURL)
		fmt.Fprintf(s.Out, "Socket: %s\n", s.SocketURL)
		return nil
	}
	s.APIBaseURL = strings.TrimRight(args[0], "/")
	s.Client.SetBaseURL(s.APIBaseURL)
	fmt.Fprintf(s.Out, "API base URL set to: %s%s%s\n", display.Green, s.APIBaseURL, display.Reset)
	return nil
}
