package render

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gro/watch"
)

// titleCase capitalizes the first letter of each word
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var skipSystemDirs = map[string]bool{"src": true, "lib": true, "app": true, "routes": true, ".": true, "": true}

// systemOf returns the top-level directory a relative path is grouped under,
// looking past generic roots like src/ and lib/.
func systemOf(rel string) string {
	parts := strings.Split(rel, "/")
	dirs := parts[:len(parts)-1]
	for _, d := range dirs {
		if !skipSystemDirs[strings.ToLower(d)] {
			return d
		}
	}
	if len(dirs) > 0 {
		return dirs[0]
	}
	return "."
}

// systemName turns a directory into a section title.
func systemName(dir string) string {
	if dir == "." {
		return "Root"
	}
	name := strings.ReplaceAll(dir, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return titleCase(name)
}

func stripExt(p string) string {
	base := filepath.Base(p)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// DepGraph renders the dependency flow recorded in a dev session snapshot.
// Source ids are shown relative to root.
func DepGraph(w io.Writer, root string, state *watch.State) {
	if state == nil || state.FileCount == 0 {
		fmt.Fprintln(w, "  No source files tracked.")
		return
	}
	p := NewPrinter(w, root)

	imports := make(map[string][]string, len(state.Imports))
	for id, deps := range state.Imports {
		rel := p.Rel(id)
		for _, dep := range deps {
			imports[rel] = append(imports[rel], p.Rel(dep))
		}
		sort.Strings(imports[rel])
	}

	systems := make(map[string][]string)
	for rel := range imports {
		system := systemOf(rel)
		systems[system] = append(systems[system], rel)
	}

	title := fmt.Sprintf("%s - Dependency Flow", filepath.Base(root))
	innerWidth := len(title) + 4
	fmt.Fprintln(w)
	fmt.Fprintf(w, "╭%s╮\n", strings.Repeat("─", innerWidth))
	fmt.Fprintf(w, "│%s│\n", CenterString(title, innerWidth))
	fmt.Fprintf(w, "╰%s╯\n", strings.Repeat("─", innerWidth))
	fmt.Fprintln(w)

	systemNames := make([]string, 0, len(systems))
	for name := range systems {
		systemNames = append(systemNames, name)
	}
	sort.Strings(systemNames)

	for _, system := range systemNames {
		files := systems[system]
		sort.Strings(files)
		name := systemName(system)

		headerLen := 60 - len(name) - 1
		if headerLen < 1 {
			headerLen = 1
		}
		fmt.Fprintf(w, "%s %s\n", name, strings.Repeat("═", headerLen))

		for _, file := range files {
			from := stripExt(file)
			targets := imports[file]

			if len(targets) == 1 {
				t := targets[0]
				sub := imports[t]
				if len(sub) == 0 {
					fmt.Fprintf(w, "  %s ───▶ %s\n", from, stripExt(t))
					continue
				}
				var subNames []string
				for i, s := range sub {
					if i >= 3 {
						break
					}
					subNames = append(subNames, stripExt(s))
				}
				chain := fmt.Sprintf("%s ───▶ %s ───▶ %s", from, stripExt(t), strings.Join(subNames, ", "))
				if len(sub) > 3 {
					chain += fmt.Sprintf(" +%d", len(sub)-3)
				}
				fmt.Fprintf(w, "  %s\n", chain)
				continue
			}

			names := make([]string, 0, len(targets))
			for _, t := range targets {
				names = append(names, stripExt(t))
			}
			if len(names) <= 4 {
				fmt.Fprintf(w, "  %s ───▶ %s\n", from, strings.Join(names, ", "))
				continue
			}
			pad := strings.Repeat(" ", len(from))
			fmt.Fprintf(w, "  %s ──┬──▶ %s\n", from, names[0])
			for _, n := range names[1 : len(names)-1] {
				fmt.Fprintf(w, "  %s   ├──▶ %s\n", pad, n)
			}
			fmt.Fprintf(w, "  %s   └──▶ %s\n", pad, names[len(names)-1])
		}
		fmt.Fprintln(w)
	}

	if len(state.Hubs) > 0 {
		type hub struct {
			name  string
			count int
		}
		hubs := make([]hub, 0, len(state.Hubs))
		for _, id := range state.Hubs {
			hubs = append(hubs, hub{stripExt(id), len(state.Importers[id])})
		}
		sort.SliceStable(hubs, func(i, j int) bool { return hubs[i].count > hubs[j].count })
		if len(hubs) > 6 {
			hubs = hubs[:6]
		}
		fmt.Fprintln(w, strings.Repeat("─", 61))
		hubStrs := make([]string, 0, len(hubs))
		for _, h := range hubs {
			hubStrs = append(hubStrs, fmt.Sprintf("%s (%d←)", h.name, h.count))
		}
		fmt.Fprintf(w, "HUBS: %s\n", strings.Join(hubStrs, ", "))
	}

	deps := 0
	for _, targets := range imports {
		deps += len(targets)
	}
	fmt.Fprintf(w, "%d files · %d build files · %d deps\n", state.FileCount, state.BuildCount, deps)
	fmt.Fprintln(w)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
