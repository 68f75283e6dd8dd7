// Package commands implements the interactive client's command set.
package commands

import (
	"fmt"
	"strings"

	"chessanalysis/internal/client/display"
	"chessanalysis/internal/client/session"
)

// Command defines a client command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Handler     func(*session.Session, []string) error
}

// Registry manages command registration and execution
type Registry struct {
	session  *session.Session
	commands map[string]*Command
	order    []*Command
}

func NewRegistry(s *session.Session) *Registry {
	r := &Registry{
		session:  s,
		commands: make(map[string]*Command),
	}

	r.registerAnalysisCommands()
	r.registerLedgerCommands()

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     r.helpHandler,
	})

	return r
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
	r.order = append(r.order, cmd)
}

// Execute runs one input line; it reports whether the line named a command
func (r *Registry) Execute(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	out := r.session.Out
	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Fprintf(out, "%sUnknown command: %s%s\n", display.Red, parts[0], display.Reset)
		fmt.Fprintf(out, "Type 'help' for available commands\n")
		return false
	}

	r.session.Client.Verbose = r.session.Verbose
	if err := cmd.Handler(r.session, parts[1:]); err != nil {
		fmt.Fprintf(out, "%sError: %s%s\n", display.Red, err.Error(), display.Reset)
	}
	return true
}

func (r *Registry) helpHandler(s *session.Session, args []string) error {
	out := s.Out
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(out, "\n%s%s%s - %s\n", display.Cyan, cmd.Name, display.Reset, cmd.Description)
		if cmd.ShortName != "" {
			fmt.Fprintf(out, "Short form: %s%s%s\n", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Fprintf(out, "Usage: %s\n", cmd.Usage)
		return nil
	}

	fmt.Fprintf(out, "\n%sAvailable Commands:%s\n\n", display.Cyan, display.Reset)
	for _, cmd := range r.order {
		shortPart := "    "
		if cmd.ShortName != "" {
			shortPart = fmt.Sprintf("[%s%s%s] ", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Fprintf(out, "  %s%-10s %s\n", shortPart, cmd.Name, cmd.Description)
	}
	fmt.Fprintf(out, "\nType 'help <command>' for detailed usage\n")
	fmt.Fprintf(out, "Add '-v' to any command for verbose output\n")
	return nil
}
