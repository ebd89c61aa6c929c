package cmd

import (
	"context"
	"fmt"
	"time"

	"gro/config"
	"gro/filer"
	"gro/render"
)

// runBuild performs a one-shot production build: no watching, outputs of
// unchanged sources are reused from the previous build.
func runBuild(ctx context.Context, env Env, cfg *config.Config) (err error) {
	start := time.Now()
	f, closeFiler, err := newFiler(env, cfg, false, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFiler(); err == nil {
			err = cerr
		}
	}()

	printer := render.NewPrinter(env.Stdout, cfg.Root)
	f.Subscribe(func(e filer.BuildEvent) {
		if e.Err != nil || e.Written > 0 {
			printer.BuildEvent(e)
		}
	})
	if err := f.Init(ctx); err != nil {
		return err
	}

	state := f.Snapshot()
	printer.Summary(render.Summary{
		Dev:      false,
		BuildDir: cfg.BuildDir,
		Sources:  state.FileCount,
		Builds:   state.BuildCount,
		Failures: state.Failures,
		Took:     time.Since(start),
	})
	if n := len(state.Failures); n > 0 {
		return fmt.Errorf("%w: %d %s", ErrBuildFailed, n, plural(n, "source", "sources"))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
