package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/birdgame/internal/db"
	"github.com/banshee-data/birdgame/internal/feed"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/report"
	"github.com/banshee-data/birdgame/internal/scoring"
	"github.com/banshee-data/birdgame/internal/tracker"
)

type replayOptions struct {
	input        string
	serialPath   string
	port         feed.PortOptions
	configPath   string
	dbPath       string
	reportDir    string
	maxCount     int
	horizon      float64
	fadingFactor float64
	verbose      bool
}

func parseReplayFlags(args []string, stderr io.Writer) (replayOptions, error) {
	var opts replayOptions
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "-", "Record file to replay, or - for stdin")
	fs.StringVar(&opts.serialPath, "serial", "", "Read records from this serial device instead of -input")
	fs.IntVar(&opts.port.BaudRate, "baud", 115200, "Serial baud rate")
	fs.StringVar(&opts.configPath, "config", "", "Path to tuning configuration JSON (defaults to built-in values)")
	fs.StringVar(&opts.dbPath, "db", "", "Record the session to this sqlite database")
	fs.StringVar(&opts.reportDir, "report", "", "Write report.png and report.html to this directory")
	fs.IntVar(&opts.maxCount, "max-count", 0, "Stop once the tracker has learned from more than this many changes (0 = no limit)")
	fs.Float64Var(&opts.horizon, "horizon", -1, "Prediction horizon (overrides config when >= 0)")
	fs.Float64Var(&opts.fadingFactor, "fading-factor", 0, "Fading factor (overrides config when > 0)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log every tick")
	if err := fs.Parse(args); err != nil {
		return opts, errUsage
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return opts, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return opts, nil
}

func openSource(opts replayOptions) (io.ReadCloser, error) {
	if opts.serialPath != "" {
		return feed.OpenSerial(opts.serialPath, opts.port)
	}
	if opts.input == "-" || opts.input == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(opts.input)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// runReplay feeds every record from the source through a tracker and a
// scorer, then prints the final prediction.
func runReplay(ctx context.Context, opts replayOptions, stdout io.Writer) error {
	monitoring.SetVerbose(opts.verbose)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	mc := tracker.MixtureConfigFromTuning(cfg)
	if opts.horizon >= 0 {
		mc.Horizon = opts.horizon
	}
	if opts.fadingFactor > 0 {
		mc.FadingFactor = opts.fadingFactor
	}
	if !(mc.FadingFactor > 0 && mc.FadingFactor < 1) {
		return fmt.Errorf("fading factor must be in (0, 1), got %v", mc.FadingFactor)
	}

	src, err := openSource(opts)
	if err != nil {
		return err
	}
	defer src.Close()

	var database *db.DB
	var sessionID string
	if opts.dbPath != "" {
		database, err = db.NewDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		sess, err := database.CreateSession(mc.Horizon, mc.FadingFactor)
		if err != nil {
			return err
		}
		sessionID = sess.ID
		log.Printf("Recording session %s to %s", sessionID, opts.dbPath)
	}

	tr := tracker.NewMixtureTracker(mc)
	scorer := scoring.NewScorer(mc.Horizon, cfg.GetScoreWindow())
	recorder := report.NewRecorder(cfg.GetReportWindow())

	reader := feed.NewReader(src)
	if cfg.GetSkipOutOfOrder() {
		reader.Guard = &feed.MonotonicGuard{}
	}

	err = reader.Run(ctx, func(rec feed.Record) error {
		obs := rec.Observation()
		scores := scorer.Observe(obs)
		tr.Tick(obs)
		m, err := tr.Predict()
		if err != nil {
			return err
		}
		scorer.Predicted(obs.Time, m)
		recorder.Add(obs, m)

		if database != nil {
			if err := database.RecordObservation(sessionID, rec); err != nil {
				return err
			}
			if err := database.RecordPrediction(sessionID, obs.Time, m); err != nil {
				return err
			}
			if err := database.RecordScores(sessionID, scores); err != nil {
				return err
			}
		}

		if opts.maxCount > 0 && tr.Count() > opts.maxCount {
			return feed.ErrStop
		}
		return nil
	})
	// An interrupt ends the replay early; what was read so far still
	// yields a prediction.
	if errors.Is(err, context.Canceled) {
		log.Printf("Replay interrupted")
	} else if err != nil {
		return err
	}

	summary := scorer.Summary()
	log.Printf("Replayed %d records (%d malformed), tracker count=%d, scored=%d mean log density=%.4f",
		reader.Parsed(), reader.Invalid(), tr.Count(), summary.Count, summary.MeanLogDensity)

	final, err := tr.Predict()
	if err != nil {
		return err
	}
	body, err := final.MarshalIndent()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(body))

	if opts.reportDir != "" {
		if recorder.Len() == 0 {
			log.Printf("No records, skipping report")
			return nil
		}
		if err := recorder.WriteFiles(opts.reportDir, "Replay"); err != nil {
			return err
		}
		log.Printf("Report written to %s", opts.reportDir)
	}
	return nil
}
