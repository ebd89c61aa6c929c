// Package depgraph keeps the reverse dependency index between source files.
//
// Edges are recorded per (dependent, build name) pairing, so a source built
// for several targets can import different files in each. The forward and
// reverse views are kept consistent under one lock.
package depgraph

import (
	"sort"
	"sync"
)

// HubThreshold is the number of importers at which a file counts as a hub.
const HubThreshold = 3

// Graph represents source-to-source dependencies within a filer.
type Graph struct {
	mu sync.RWMutex
	// dependent -> build name -> dependency set
	edges map[string]map[string]map[string]struct{}
	// dependency -> dependent -> number of build names carrying the edge
	importers map[string]map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		edges:     make(map[string]map[string]map[string]struct{}),
		importers: make(map[string]map[string]int),
	}
}

// FromImports rebuilds a graph from the forward view returned by Snapshot.
// The build names are not part of that view, so every edge is recorded
// under one unnamed build.
func FromImports(imports map[string][]string) *Graph {
	g := New()
	for dependent, deps := range imports {
		g.Update(dependent, "", deps)
	}
	return g
}

// Update replaces the dependencies dependent has under buildName.
func (g *Graph) Update(dependent, buildName string, dependencies []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(dependent, buildName)

	next := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		if dep == "" || dep == dependent {
			continue
		}
		next[dep] = struct{}{}
	}
	if len(next) == 0 {
		return
	}

	byBuild := g.edges[dependent]
	if byBuild == nil {
		byBuild = make(map[string]map[string]struct{})
		g.edges[dependent] = byBuild
	}
	byBuild[buildName] = next
	for dep := range next {
		refs := g.importers[dep]
		if refs == nil {
			refs = make(map[string]int)
			g.importers[dep] = refs
		}
		refs[dependent]++
	}
}

// RemoveBuild drops the edges dependent has under buildName.
func (g *Graph) RemoveBuild(dependent, buildName string) {
	g.mu.Lock()
	g.removeLocked(dependent, buildName)
	g.mu.Unlock()
}

// RemoveDependent drops every edge that starts at dependent. Edges pointing
// at it are kept: its importers still declare them.
func (g *Graph) RemoveDependent(dependent string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for buildName := range g.edges[dependent] {
		g.removeLocked(dependent, buildName)
	}
}

func (g *Graph) removeLocked(dependent, buildName string) {
	byBuild := g.edges[dependent]
	prev, ok := byBuild[buildName]
	if !ok {
		return
	}
	for dep := range prev {
		refs := g.importers[dep]
		refs[dependent]--
		if refs[dependent] <= 0 {
			delete(refs, dependent)
		}
		if len(refs) == 0 {
			delete(g.importers, dep)
		}
	}
	delete(byBuild, buildName)
	if len(byBuild) == 0 {
		delete(g.edges, dependent)
	}
}

// Dependents returns the sources that import id under any build, sorted.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.importers[id])
}

// Dependencies returns the sources id imports under any build, sorted.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]int)
	for _, deps := range g.edges[id] {
		for dep := range deps {
			seen[dep]++
		}
	}
	return sortedKeys(seen)
}

// BuildDependencies returns the sources id imports under one build, sorted.
func (g *Graph) BuildDependencies(id, buildName string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	deps := g.edges[id][buildName]
	out := make([]string, 0, len(deps))
	for dep := range deps {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// IsHub returns true if a file has 3+ importers
func (g *Graph) IsHub(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.importers[id]) >= HubThreshold
}

// HubFiles returns all files that are imported by 3+ other files
func (g *Graph) HubFiles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var hubs []string
	for id, refs := range g.importers {
		if len(refs) >= HubThreshold {
			hubs = append(hubs, id)
		}
	}
	sort.Strings(hubs)
	return hubs
}

// ConnectedFiles returns all files connected to the given file (imports + importers)
func (g *Graph) ConnectedFiles(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]int)
	for _, deps := range g.edges[id] {
		for dep := range deps {
			seen[dep]++
		}
	}
	for dep := range g.importers[id] {
		seen[dep]++
	}
	delete(seen, id)
	return sortedKeys(seen)
}

// Snapshot returns the forward and reverse views keyed by source id. The
// maps are copies and safe to retain.
func (g *Graph) Snapshot() (imports, importers map[string][]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	imports = make(map[string][]string, len(g.edges))
	for id, byBuild := range g.edges {
		seen := make(map[string]int)
		for _, deps := range byBuild {
			for dep := range deps {
				seen[dep]++
			}
		}
		imports[id] = sortedKeys(seen)
	}
	importers = make(map[string][]string, len(g.importers))
	for id, refs := range g.importers {
		importers[id] = sortedKeys(refs)
	}
	return imports, importers
}

func sortedKeys(m map[string]int) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
