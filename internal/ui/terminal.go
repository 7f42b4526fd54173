// Package ui holds the CLI's terminal styling.
package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorEnabled reports whether ANSI colors should be written to f. NO_COLOR
// wins, then CLICOLOR_FORCE=1, then CLICOLOR=0, then TTY detection.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or fallback when f is not a TTY.
func Width(f *os.File, fallback int) int {
	if f == nil {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
