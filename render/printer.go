package render

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gro/filer"
	"gro/paths"
)

// Printer writes build output lines. Colors are used only when the
// destination is a terminal. Safe for concurrent use.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	root  string
	color bool
}

// NewPrinter returns a Printer that shows paths relative to root.
func NewPrinter(w io.Writer, root string) *Printer {
	return &Printer{w: w, root: root, color: IsTerminal(w)}
}

func (p *Printer) paint(color, s string) string {
	if !p.color || color == "" {
		return s
	}
	return color + s + Reset
}

// Rel shortens an absolute id to a path relative to the printer root.
func (p *Printer) Rel(id string) string {
	if p.root == "" {
		return id
	}
	rel, err := filepath.Rel(p.root, id)
	if err != nil || strings.HasPrefix(rel, "..") {
		return id
	}
	return filepath.ToSlash(rel)
}

// BuildEvent prints one line per finished build:
//
//	✓ src/lib/a.ts  node  2 files (1 written)  3ms
//	✗ src/lib/b.ts  node  unexpected token
func (p *Printer) BuildEvent(e filer.BuildEvent) {
	src := p.Rel(e.SourceID)
	name := p.paint(FileColor(filepath.Ext(src)), src)
	took := e.Duration.Round(time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Err != nil {
		fmt.Fprintf(p.w, "%s %s  %s  %s\n", p.paint(BoldRed, "✗"), name, e.BuildName, p.paint(Red, e.Err.Error()))
		return
	}
	fmt.Fprintf(p.w, "%s %s  %s  %d %s (%d written)  %s\n",
		p.paint(BoldGreen, "✓"), name, e.BuildName,
		len(e.BuildIDs), plural(len(e.BuildIDs), "file", "files"), e.Written,
		p.paint(Dim, took.String()))
}

// Summary describes a finished filer initialization.
type Summary struct {
	Dev      bool
	BuildDir string
	Sources  int
	Builds   int
	// Failures maps source ids to their joined build errors.
	Failures map[string]string
	Took     time.Duration
}

// Summary prints a boxed overview followed by every failure.
func (p *Printer) Summary(s Summary) {
	mode := paths.Mode(s.Dev)
	title := fmt.Sprintf("gro %s", mode)
	line := fmt.Sprintf("%d sources · %d build files · %d failed · %s",
		s.Sources, s.Builds, len(s.Failures), s.Took.Round(time.Millisecond))
	out := fmt.Sprintf("output: %s", p.Rel(paths.ToBuildOutDir(s.BuildDir, s.Dev)))

	width := len(line) + 4
	if w := len(out) + 4; w > width {
		width = w
	}
	if limit := TerminalWidth(p.w); width > limit {
		width = limit
	}
	inner := width - 2

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "╭%s╮\n", strings.Repeat("─", inner))
	fmt.Fprintf(p.w, "│%s│\n", p.paint(Bold, CenterString(title, inner)))
	fmt.Fprintf(p.w, "├%s┤\n", strings.Repeat("─", inner))
	fmt.Fprintf(p.w, "│ %-*s │\n", inner-2, line)
	fmt.Fprintf(p.w, "│ %-*s │\n", inner-2, out)
	fmt.Fprintf(p.w, "╰%s╯\n", strings.Repeat("─", inner))

	for _, id := range sortedKeys(s.Failures) {
		fmt.Fprintf(p.w, "%s %s: %s\n", p.paint(BoldRed, "✗"), p.Rel(id), s.Failures[id])
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
