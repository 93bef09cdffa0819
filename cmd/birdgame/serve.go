package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/birdgame/internal/api"
	"github.com/banshee-data/birdgame/internal/db"
)

type serveOptions struct {
	listen     string
	dbPath     string
	configPath string
	// ready, when set, receives the bound address once the server listens.
	ready chan<- string
}

func parseServeFlags(args []string, stderr io.Writer) (serveOptions, error) {
	var opts serveOptions
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.listen, "listen", ":8080", "Listen address")
	fs.StringVar(&opts.dbPath, "db", "", "Persist sessions to this sqlite database")
	fs.StringVar(&opts.configPath, "config", "", "Path to tuning configuration JSON (defaults to built-in values)")
	if err := fs.Parse(args); err != nil {
		return opts, errUsage
	}
	if opts.listen == "" {
		return opts, fmt.Errorf("%w: listen address is required", errUsage)
	}
	return opts, nil
}

// runServe serves the game API until ctx is cancelled.
func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	var database *db.DB
	if opts.dbPath != "" {
		database, err = db.NewDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	s := api.NewServer(cfg, database)
	mux, err := s.ServeMux()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.listen, err)
	}
	server := &http.Server{Handler: s.LoggingMiddleware(mux)}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()
	log.Printf("Serving on %s", ln.Addr())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
	return nil
}
