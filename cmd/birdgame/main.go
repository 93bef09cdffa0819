// Command birdgame runs the dove tracker: offline over a recorded stream,
// live from a serial device, or as an HTTP game server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/birdgame/internal/config"
	"github.com/banshee-data/birdgame/internal/db"
	"github.com/banshee-data/birdgame/internal/version"
)

// errUsage marks errors caused by bad arguments; usage has already been
// printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatalf("birdgame: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := flag.NewFlagSet("birdgame", flag.ContinueOnError)
	root.SetOutput(stderr)
	showVersion := root.Bool("version", false, "Print version information and exit")
	root.Usage = func() {
		fmt.Fprintln(stderr, "Usage: birdgame [-version] <replay|serve|migrate> [flags]")
		root.PrintDefaults()
	}
	if err := root.Parse(args); err != nil {
		return errUsage
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if root.NArg() == 0 {
		root.Usage()
		return errUsage
	}

	cmd, rest := root.Arg(0), root.Args()[1:]
	switch cmd {
	case "replay":
		opts, err := parseReplayFlags(rest, stderr)
		if err != nil {
			return err
		}
		return runReplay(ctx, opts, stdout)
	case "serve":
		opts, err := parseServeFlags(rest, stderr)
		if err != nil {
			return err
		}
		return runServe(ctx, opts)
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		dbPath := fs.String("db", "birdgame.db", "Path to the sqlite database")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		// Flags may also follow the action: migrate up -db x.db
		margs := fs.Args()
		if len(margs) > 0 {
			action := margs[0]
			if err := fs.Parse(margs[1:]); err != nil {
				return errUsage
			}
			margs = append([]string{action}, fs.Args()...)
		}
		return db.RunMigrateCommand(stdout, margs, *dbPath)
	default:
		root.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// loadConfig reads path, or returns the built-in defaults when path is
// empty.
func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
