// Package main implements an interactive debugging client for the analysis
// server: it plays moves on a local board and streams the server's analysis.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"chessanalysis/internal/client/commands"
	"chessanalysis/internal/client/display"
	"chessanalysis/internal/client/session"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		apiURL    string
		socketURL string
		token     string
		gameID    string
		connect   bool
	)

	cmd := &cobra.Command{
		Use:          "analysis-client",
		Short:        "Interactive analysis session client",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			display.Init()
			return run(apiURL, socketURL, token, gameID, connect)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "REST API base URL")
	cmd.Flags().StringVar(&socketURL, "socket", "ws://localhost:8081/ws", "Session socket URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("ANALYSIS_TOKEN"), "Auth token (default $ANALYSIS_TOKEN)")
	cmd.Flags().StringVar(&gameID, "game", "", "Ledger game to record moves under")
	cmd.Flags().BoolVar(&connect, "connect", true, "Connect to the session socket on start")
	return cmd
}

func run(apiURL, socketURL, token, gameID string, connect bool) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("analysis"),
		HistoryFile:     ".analysis_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	s := session.New(apiURL, socketURL, rl.Stdout())
	s.SetToken(token)
	s.GameID = gameID

	fmt.Fprintf(s.Out, "%sChess Analysis Client%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(s.Out, "%sAPI: %s  Socket: %s%s\n", display.Cyan, apiURL, socketURL, display.Reset)
	fmt.Fprintf(s.Out, "Type 'help' for commands\n\n")

	registry := commands.NewRegistry(s)
	if connect {
		registry.Execute("connect")
	}
	defer func() {
		if s.Connected() {
			s.Conn.Close()
		}
	}()

	for {
		rl.SetPrompt(buildPrompt(s))

		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" || line == "x" {
			break
		}

		if strings.HasSuffix(line, " -v") {
			s.Verbose = true
			line = strings.TrimSuffix(line, " -v")
		} else {
			s.Verbose = false
		}

		registry.Execute(line)
	}

	fmt.Fprintf(s.Out, "%sGoodbye!%s\n", display.Cyan, display.Reset)
	return nil
}

func buildPrompt(s *session.Session) string {
	promptStr := "analysis"

	status := display.Red + "offline" + display.Reset
	if s.Connected() {
		status = display.Green + "live" + display.Reset
	}
	parts := []string{status}
	if s.GameID != "" && len(s.GameID) >= 8 {
		parts = append(parts, display.White+s.GameID[:8]+display.Reset)
	}
	promptStr += display.Yellow + " [" + display.Reset + strings.Join(parts, " ") + display.Yellow + "]" + display.Reset

	pos := s.Game.Position()
	promptStr += fmt.Sprintf(" - Turn:%s", display.ColorForTurn(pos.Turn()))
	return display.Prompt(promptStr)
}
