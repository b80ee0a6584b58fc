package ui

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// fdWriter is satisfied by *os.File.
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

// ColorEnabled reports whether ANSI colors should be written to w. NO_COLOR
// wins over CLICOLOR_FORCE=1, which wins over CLICOLOR=0; otherwise color is
// used only when w is a terminal.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	f, ok := w.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of the terminal behind w, or fallback when
// w is not a terminal.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(fdWriter)
	if !ok {
		return fallback
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return fallback
	}
	return cols
}
