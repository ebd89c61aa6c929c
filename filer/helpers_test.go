package filer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gro/buildcfg"
	"gro/builder"
	"gro/fsys"
	"gro/mime"
	"gro/paths"
	"gro/scanner"
	"gro/watch"
)

var importRe = regexp.MustCompile(`from '([^']+)'`)

// tsBuilder turns foo.ts into foo.js plus foo.js.map when source maps are
// on. Contents containing "syntax error" fail; "// nomap" suppresses the map.
type tsBuilder struct {
	calls   atomic.Int32
	removed atomic.Int32
}

func (b *tsBuilder) Build(_ context.Context, src builder.Source, cfg *buildcfg.Config, bc *builder.Context) ([]builder.Output, error) {
	b.calls.Add(1)
	if bytes.Contains(src.Contents, []byte("syntax error")) {
		return nil, errors.New("unexpected token")
	}
	id := paths.ToBuildID(src.SourceDir, bc.BuildDir, bc.Dev, cfg.Name, src.ID)
	var deps []builder.Dependency
	for _, m := range importRe.FindAllSubmatch(src.Contents, -1) {
		deps = append(deps, builder.NewDependency(string(m[1])))
	}
	out := []builder.Output{{
		ID:           id,
		Encoding:     mime.UTF8,
		Contents:     append([]byte("// "+cfg.Name+"\n"), src.Contents...),
		Dependencies: deps,
	}}
	if bc.SourceMap && !bytes.Contains(src.Contents, []byte("// nomap")) {
		out = append(out, builder.Output{
			ID:       id + paths.MapExtension,
			Encoding: mime.UTF8,
			Contents: []byte(`{"version":3,"sources":["` + src.Filename + `"]}`),
		})
	}
	return out, nil
}

func (b *tsBuilder) OnRemove(context.Context, builder.Source, *buildcfg.Config, *builder.Context) error {
	b.removed.Add(1)
	return nil
}

// exclusiveBuilder is a tsBuilder that counts builds of one source that
// overlap in time.
type exclusiveBuilder struct {
	tsBuilder
	mu       sync.Mutex
	active   map[string]bool
	overlaps atomic.Int32
}

func newExclusiveBuilder() *exclusiveBuilder {
	return &exclusiveBuilder{active: make(map[string]bool)}
}

func (b *exclusiveBuilder) Build(ctx context.Context, src builder.Source, cfg *buildcfg.Config, bc *builder.Context) ([]builder.Output, error) {
	b.mu.Lock()
	if b.active[src.ID] {
		b.overlaps.Add(1)
	}
	b.active[src.ID] = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.active, src.ID)
		b.mu.Unlock()
	}()
	time.Sleep(time.Millisecond)
	return b.tsBuilder.Build(ctx, src, cfg, bc)
}

// countingFS counts writes that reach the file system.
type countingFS struct {
	*fsys.Mem
	writes atomic.Int32
}

func (c *countingFS) WriteFile(p string, data []byte) error {
	c.writes.Add(1)
	return c.Mem.WriteFile(p, data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nodeConfig() *buildcfg.Config {
	return &buildcfg.Config{Name: "node", Platform: buildcfg.PlatformNode, Input: []buildcfg.Input{buildcfg.DirInput("/p/src")}}
}

func browserConfig() *buildcfg.Config {
	return &buildcfg.Config{Name: "browser", Platform: buildcfg.PlatformBrowser, Input: []buildcfg.Input{buildcfg.DirInput("/p/src")}}
}

func baseOptions(fsy fsys.FS, b builder.Builder) Options {
	return Options{
		FS:           fsy,
		Dev:          true,
		SourceDirs:   []string{"/p/src"},
		BuildConfigs: []*buildcfg.Config{nodeConfig()},
		Builder:      builder.ByExtension(map[string]builder.Builder{".ts": b}, nil),
		BuildDir:     "/p/.gro",
		SourceMap:    true,
		Logger:       discardLogger(),
		Mime:         mime.NewRegistry(),
	}
}

func writeFiles(t *testing.T, fsy fsys.FS, files map[string]string) {
	t.Helper()
	for p, contents := range files {
		require.NoError(t, fsy.WriteFile(p, []byte(contents)))
	}
}

func startFiler(t *testing.T, opts Options) *Filer {
	t.Helper()
	f, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.Init(context.Background()))
	return f
}

func exists(t *testing.T, fsy fsys.FS, p string) bool {
	t.Helper()
	ok, err := fsy.Exists(p)
	require.NoError(t, err)
	return ok
}

// change writes contents to a source under the first dir and reports it.
func change(t *testing.T, f *Filer, typ ChangeType, rel, contents string) {
	t.Helper()
	dir := f.Dirs()[0]
	if typ == ChangeDelete {
		require.NoError(t, f.fs.Remove(dir.id(rel)))
	} else {
		require.NoError(t, f.fs.WriteFile(dir.id(rel), []byte(contents)))
	}
	require.NoError(t, f.OnChange(context.Background(), Change{Type: typ, Path: rel}, dir))
}

// fakeWatcher is a Watcher driven by the test.
type fakeWatcher struct {
	fs     fsys.FS
	root   string
	events chan watch.Event
	once   sync.Once
	closed atomic.Bool
}

func newFakeWatcher(fsy fsys.FS, root string) *fakeWatcher {
	return &fakeWatcher{fs: fsy, root: root, events: make(chan watch.Event, 16)}
}

func (w *fakeWatcher) Init(context.Context) ([]scanner.FileInfo, error) {
	return scanner.ScanFiles(w.fs, w.root, nil)
}

func (w *fakeWatcher) Events() <-chan watch.Event { return w.events }

func (w *fakeWatcher) Close() error {
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.events)
	})
	return nil
}
