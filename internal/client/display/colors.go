package display

import (
	"os"

	"golang.org/x/term"
)

// Terminal color codes, emptied by Init when stdout is not a terminal
var (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

// Init disables colors unless stdout is a terminal and NO_COLOR is unset
func Init() {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		Disable()
	}
}

// Disable clears every color code
func Disable() {
	Reset, Red, Green, Yellow, Blue, Magenta, Cyan, White = "", "", "", "", "", "", "", ""
}

// Prompt returns a colored prompt string
func Prompt(text string) string {
	return Yellow + text + Yellow + " > " + Reset
}
