// Package render prints build events, summaries and the dependency flow of
// a dev session to a terminal.
package render

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes
const (
	Reset     = "\033[0m"
	Bold      = "\033[1m"
	Dim       = "\033[2m"
	White     = "\033[37m"
	Cyan      = "\033[36m"
	Yellow    = "\033[33m"
	Magenta   = "\033[35m"
	Green     = "\033[32m"
	Red       = "\033[31m"
	Blue      = "\033[34m"
	BoldRed   = "\033[1;31m"
	BoldGreen = "\033[1;32m"
	DimWhite  = "\033[2;37m"
)

// FileColor returns the ANSI color for a file extension. Compound
// extensions like .svelte.js color by their source.
func FileColor(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".ts", ".d.ts", ".js", ".mjs", ".cjs", ".jsx", ".tsx":
		return Yellow
	case ".svelte", ".svelte.js", ".svelte.md":
		return Magenta
	case ".html", ".css", ".scss", ".svg":
		return Cyan
	case ".md", ".txt":
		return Green
	case ".json", ".yaml", ".yml", ".env":
		return Red
	case ".map", ".js.map":
		return DimWhite
	default:
		return White
	}
}

// IsTerminal reports whether w writes to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of the terminal behind w, or 80.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// CenterString centers a string in the given width
func CenterString(s string, width int) string {
	if len(s) >= width {
		return s
	}
	leftPad := (width - len(s)) / 2
	rightPad := width - len(s) - leftPad
	return strings.Repeat(" ", leftPad) + s + strings.Repeat(" ", rightPad)
}
