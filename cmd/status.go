package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gro/config"
	"gro/depgraph"
	"gro/render"
	"gro/watch"
)

// staleAfter is how old a state file of a stopped session may get before
// status flags it.
const staleAfter = 10 * time.Minute

// runStatus prints the last dev session snapshot. With a file argument it
// shows what imports that file instead.
func runStatus(env Env, cfg *config.Config, args []string) error {
	state := watch.ReadState(cfg.BuildDir)
	if state == nil {
		fmt.Fprintln(env.Stdout, "No dev session state found. Run `gro dev` first.")
		return nil
	}
	graph := depgraph.FromImports(state.Imports)
	printer := render.NewPrinter(env.Stdout, cfg.Root)

	if len(args) > 0 {
		id := args[0]
		if !filepath.IsAbs(id) {
			id = filepath.Join(cfg.Root, filepath.FromSlash(id))
		}
		checkFileImporters(env.Stdout, printer, graph, id)
		return nil
	}

	running := watch.IsRunning(cfg.BuildDir)
	switch {
	case running:
		fmt.Fprintf(env.Stdout, "dev session running (pid %d), updated %s ago\n", state.PID, since(state.UpdatedAt))
	case !state.Fresh(staleAfter):
		fmt.Fprintf(env.Stdout, "dev session stopped, state is stale (updated %s ago)\n", since(state.UpdatedAt))
	default:
		fmt.Fprintf(env.Stdout, "dev session stopped, updated %s ago\n", since(state.UpdatedAt))
	}

	render.DepGraph(env.Stdout, cfg.Root, state)

	if hubs := graph.HubFiles(); len(hubs) > 0 {
		fmt.Fprintln(env.Stdout, "High-impact files (hubs):")
		for i, hub := range hubs {
			if i >= 10 {
				fmt.Fprintf(env.Stdout, "   ... and %d more\n", len(hubs)-10)
				break
			}
			fmt.Fprintf(env.Stdout, "   ⚠️  HUB FILE: %s (imported by %d files)\n", printer.Rel(hub), len(graph.Dependents(hub)))
		}
		fmt.Fprintln(env.Stdout)
	}

	if len(state.Failures) > 0 {
		ids := make([]string, 0, len(state.Failures))
		for id := range state.Failures {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintln(env.Stdout, "Failing sources:")
		for _, id := range ids {
			fmt.Fprintf(env.Stdout, "   ✗ %s: %s\n", printer.Rel(id), state.Failures[id])
		}
		fmt.Fprintln(env.Stdout)
	}

	showTimeline(env.Stdout, graph, cfg.Root, state.RecentEvents)
	return nil
}

// showTimeline prints the last watch events of the session.
func showTimeline(w io.Writer, graph *depgraph.Graph, root string, events []watch.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w, "Edit Timeline:")
	start := 0
	if len(events) > 10 {
		start = len(events) - 10
		fmt.Fprintf(w, "  ... %d earlier events\n", start)
	}
	files := make(map[string]bool)
	for _, e := range events {
		files[e.Path] = true
	}
	for _, e := range events[start:] {
		hubStr := ""
		if graph.IsHub(filepath.Join(root, filepath.FromSlash(e.Path))) {
			hubStr = " ⚠️HUB"
		}
		fmt.Fprintf(w, "  %s %-6s %s%s\n", e.Time.Format("15:04:05"), e.Op, e.Path, hubStr)
	}
	fmt.Fprintf(w, "Stats: %d events, %d files touched\n\n", len(events), len(files))
}

// checkFileImporters shows who imports a file, warning when it is a hub,
// and which hubs it imports.
func checkFileImporters(w io.Writer, printer *render.Printer, graph *depgraph.Graph, id string) {
	rel := printer.Rel(id)
	importers := graph.Dependents(id)
	relImporters := make([]string, 0, len(importers))
	for _, imp := range importers {
		relImporters = append(relImporters, printer.Rel(imp))
	}

	switch {
	case graph.IsHub(id):
		fmt.Fprintf(w, "⚠️  HUB FILE: %s\n", rel)
		fmt.Fprintf(w, "   Imported by %d files - changes have wide impact!\n", len(importers))
		fmt.Fprintln(w, "   Dependents:")
		for i, imp := range relImporters {
			if i >= 5 {
				fmt.Fprintf(w, "   ... and %d more\n", len(importers)-5)
				break
			}
			fmt.Fprintf(w, "   • %s\n", imp)
		}
	case len(importers) > 0:
		fmt.Fprintf(w, "📍 File: %s\n", rel)
		fmt.Fprintf(w, "   Imported by %d file(s): %s\n", len(importers), strings.Join(relImporters, ", "))
	default:
		fmt.Fprintf(w, "📍 File: %s\n", rel)
		fmt.Fprintln(w, "   Not imported by any tracked file.")
	}

	var hubImports []string
	for _, imp := range graph.Dependencies(id) {
		if graph.IsHub(imp) {
			hubImports = append(hubImports, printer.Rel(imp))
		}
	}
	if len(hubImports) > 0 {
		fmt.Fprintf(w, "   Imports %d hub(s): %s\n", len(hubImports), strings.Join(hubImports, ", "))
	}
	if connected := graph.ConnectedFiles(id); len(connected) > 0 {
		fmt.Fprintf(w, "   Connected to %d file(s)\n", len(connected))
	}
}

func since(t time.Time) time.Duration {
	return time.Since(t).Round(time.Second)
}
