package filer

import (
	"sort"
	"strings"
	"time"

	"gro/watch"
)

// BuildEvent reports one finished build of a (source, build config) pairing.
type BuildEvent struct {
	SourceID  string
	BuildName string
	BuildIDs  []string // outputs of the build, empty on failure
	Written   int      // outputs whose contents changed on disk
	Err       error
	Duration  time.Duration
}

// Subscribe registers fn to receive build events and returns a function
// that removes it. Events are delivered one at a time.
func (f *Filer) Subscribe(fn func(BuildEvent)) (unsubscribe func()) {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()
	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

func (f *Filer) publish(e BuildEvent) {
	f.subMu.Lock()
	fns := make([]func(BuildEvent), 0, len(f.subs))
	for i := 0; i < f.nextSub; i++ {
		if fn, ok := f.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.subMu.Unlock()

	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// Snapshot summarizes the filer for the dev state file.
func (f *Filer) Snapshot() *watch.State {
	imports, importers := f.graph.Snapshot()
	state := &watch.State{
		UpdatedAt:  time.Now(),
		Dev:        f.dev,
		FileCount:  f.SourceCount(),
		BuildCount: f.BuildCount(),
		Hubs:       f.graph.HubFiles(),
		Imports:    imports,
		Importers:  importers,
	}
	for _, id := range f.SourceIDs() {
		sf := f.SourceFile(id)
		if sf == nil {
			continue
		}
		failures := sf.Failures()
		if len(failures) == 0 {
			continue
		}
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		msgs := make([]string, 0, len(names))
		for _, name := range names {
			msgs = append(msgs, name+": "+failures[name].Error())
		}
		if state.Failures == nil {
			state.Failures = make(map[string]string)
		}
		state.Failures[id] = strings.Join(msgs, "; ")
	}
	return state
}
