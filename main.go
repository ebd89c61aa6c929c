package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gro/cmd"
	"gro/config"
)

func main() {
	rootFlag := flag.String("root", ".", "Project root containing gro.yaml")
	helpMode := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *helpMode || flag.NArg() == 0 {
		fmt.Println("gro - Incremental build server for source trees")
		fmt.Println()
		fmt.Println("Usage: gro [options] <command> [args]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  dev [--detach]   Build everything, then rebuild on change")
		fmt.Println("  build            One-shot production build")
		fmt.Println("  status [file]    Show the last dev session or who imports a file")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  --help      Show this help message")
		fmt.Println("  --root      Project root (default: current directory)")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  gro dev                      # Watch ./src and serve .gro/dev")
		fmt.Println("  gro dev --detach             # Same, in the background")
		fmt.Println("  gro --root ../app build      # Production build of another project")
		fmt.Println("  gro status src/lib/util.ts   # Importers of one file")
		if *helpMode {
			os.Exit(0)
		}
		os.Exit(2)
	}

	root, err := filepath.Abs(*rootFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting absolute path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cmd.Env{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
	if err := cmd.Run(ctx, env, flag.Arg(0), cfg, flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
