package ui

import (
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// ANSI256 color codes.
const (
	colorName    = 74  // blue
	colorInteger = 179 // amber
	colorBoolean = 141 // violet
	colorMuted   = 245 // gray
	colorWarn    = 203 // red
)

// Styler colors CLI output. The zero value writes plain text.
type Styler struct {
	Color bool
}

func (s Styler) paint(code int, text string) string {
	if !s.Color {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Name renders a metadata name.
func (s Styler) Name(name string) string { return s.paint(colorName, name) }

// Muted renders secondary columns such as ids and owners.
func (s Styler) Muted(text string) string { return s.paint(colorMuted, text) }

// Warn renders an error or warning line.
func (s Styler) Warn(text string) string { return s.paint(colorWarn, text) }

// Value renders a metadata value colored by its type. Text is left plain.
func (s Styler) Value(value string, vt model.ValueType) string {
	switch vt {
	case model.ValueTypeInteger:
		return s.paint(colorInteger, value)
	case model.ValueTypeBoolean:
		return s.paint(colorBoolean, value)
	}
	return value
}

// Truncate shortens text to at most n runes, marking the cut with "…".
func Truncate(text string, n int) string {
	r := []rune(text)
	if n <= 0 || len(r) <= n {
		return text
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
