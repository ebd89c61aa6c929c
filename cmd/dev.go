package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gro/config"
	"gro/filer"
	"gro/render"
	"gro/scanner"
	"gro/watch"
)

// ErrAlreadyRunning is returned by dev when the pid file names a live process.
var ErrAlreadyRunning = errors.New("dev is already running")

// session collects the watch events of a dev run for the state file.
type session struct {
	root   string
	mu     sync.Mutex
	events []watch.Event
}

func (s *session) record(dir string, e watch.Event) {
	if rel, err := filepath.Rel(s.root, filepath.Join(dir, filepath.FromSlash(e.Path))); err == nil {
		e.Path = filepath.ToSlash(rel)
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > watch.MaxRecentEvents {
		s.events = s.events[len(s.events)-watch.MaxRecentEvents:]
	}
	s.mu.Unlock()
}

func (s *session) recent() []watch.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]watch.Event(nil), s.events...)
}

// teeWatcher passes the events of a watcher through while recording them.
type teeWatcher struct {
	watch.Watcher
	dir     string
	session *session
	out     chan watch.Event
}

func (t *teeWatcher) Init(ctx context.Context) ([]scanner.FileInfo, error) {
	files, err := t.Watcher.Init(ctx)
	if err != nil {
		close(t.out)
		return nil, err
	}
	go t.pump()
	return files, nil
}

func (t *teeWatcher) pump() {
	defer close(t.out)
	for e := range t.Watcher.Events() {
		t.session.record(t.dir, e)
		t.out <- e
	}
}

func (t *teeWatcher) Events() <-chan watch.Event { return t.out }

// runDev builds every source, then rebuilds on change until ctx is done.
// The state file under the build dir is refreshed after each burst of
// builds for `gro status`.
func runDev(ctx context.Context, env Env, cfg *config.Config, args []string) (err error) {
	flags := flag.NewFlagSet("dev", flag.ContinueOnError)
	flags.SetOutput(env.Stderr)
	detach := flags.Bool("detach", false, "run in the background and return")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if watch.IsRunning(cfg.BuildDir) {
		pid, _ := watch.ReadPID(cfg.BuildDir)
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if *detach {
		return startDetached(env, cfg.Root)
	}

	start := time.Now()
	sess := &session{root: cfg.Root}
	newWatcher := env.NewWatcher
	if newWatcher == nil {
		newWatcher = func(dir string) (watch.Watcher, error) {
			return watch.NewFSNotify(dir, watch.WithDebounce(cfg.Debounce), watch.WithLogger(env.Logger))
		}
	}
	env.NewWatcher = func(dir string) (watch.Watcher, error) {
		w, err := newWatcher(dir)
		if err != nil {
			return nil, err
		}
		return &teeWatcher{Watcher: w, dir: dir, session: sess, out: make(chan watch.Event)}, nil
	}

	f, closeFiler, err := newFiler(env, cfg, true, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFiler(); err == nil {
			err = cerr
		}
	}()

	printer := render.NewPrinter(env.Stdout, cfg.Root)
	built := make(chan struct{}, 1)
	f.Subscribe(func(e filer.BuildEvent) {
		printer.BuildEvent(e)
		select {
		case built <- struct{}{}:
		default:
		}
	})

	if err := f.Init(ctx); err != nil {
		return err
	}
	if err := watch.WritePID(cfg.BuildDir); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	defer watch.RemovePID(cfg.BuildDir)

	writeState := func() {
		state := f.Snapshot()
		state.PID = os.Getpid()
		state.RecentEvents = sess.recent()
		if err := watch.WriteState(cfg.BuildDir, state); err != nil {
			env.Logger.Warn("dev: write state", slog.Any("error", err))
		}
	}
	writeState()

	state := f.Snapshot()
	printer.Summary(render.Summary{
		Dev:      true,
		BuildDir: cfg.BuildDir,
		Sources:  state.FileCount,
		Builds:   state.BuildCount,
		Failures: state.Failures,
		Took:     time.Since(start),
	})
	env.Logger.Info("dev: watching", slog.Any("dirs", cfg.SourceDirs))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-built:
			writeState()
		}
	}
}
