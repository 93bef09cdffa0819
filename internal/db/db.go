// Package db persists game sessions to sqlite: the observations fed to each
// session's tracker, the predictions it issued and the scores those
// predictions earned once their horizon elapsed.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/feed"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/scoring"
	"github.com/banshee-data/birdgame/internal/timeutil"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// OpenDB opens the database at path without touching its schema. Use
// NewDB unless the caller manages migrations itself.
func OpenDB(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Session is one tracker's lifetime.
type Session struct {
	ID           string    `json:"id"`
	Horizon      float64   `json:"horizon"`
	FadingFactor float64   `json:"fading_factor"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateSession stores a new session with a random id.
func (db *DB) CreateSession(horizon, fadingFactor float64) (Session, error) {
	s := Session{
		ID:           uuid.NewString(),
		Horizon:      horizon,
		FadingFactor: fadingFactor,
		CreatedAt:    db.clock.Now().UTC(),
	}
	if err := db.InsertSession(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// InsertSession stores s as given. CreateSession is the usual entry point;
// this exists for callers that allocate ids themselves.
func (db *DB) InsertSession(s Session) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, horizon, fading_factor, created_unix_nanos) VALUES (?, ?, ?, ?)`,
		s.ID, s.Horizon, s.FadingFactor, s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) GetSession(id string) (Session, error) {
	var s Session
	var created int64
	err := db.QueryRow(
		`SELECT session_id, horizon, fading_factor, created_unix_nanos FROM sessions WHERE session_id = ?`, id,
	).Scan(&s.ID, &s.Horizon, &s.FadingFactor, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, err
	}
	s.CreatedAt = time.Unix(0, created).UTC()
	return s, nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, horizon, fading_factor, created_unix_nanos FROM sessions ORDER BY created_unix_nanos DESC, session_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var created int64
		if err := rows.Scan(&s.ID, &s.Horizon, &s.FadingFactor, &created); err != nil {
			return nil, err
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (db *DB) RecordObservation(sessionID string, r feed.Record) error {
	_, err := db.Exec(
		`INSERT INTO observations (session_id, time, dove_location, falcon_id, falcon_location) VALUES (?, ?, ?, ?, ?)`,
		sessionID, r.Time, r.DoveLocation, r.FalconID, r.FalconLocation,
	)
	return err
}

// Observations returns up to limit of the session's most recent records in
// time order. A limit <= 0 returns them all.
func (db *DB) Observations(sessionID string, limit int) ([]feed.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT time, dove_location, falcon_id, falcon_location FROM (
			SELECT observation_id, time, dove_location, falcon_id, falcon_location
			FROM observations WHERE session_id = ?
			ORDER BY observation_id DESC LIMIT ?
		) ORDER BY observation_id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []feed.Record
	for rows.Next() {
		var r feed.Record
		if err := rows.Scan(&r.Time, &r.DoveLocation, &r.FalconID, &r.FalconLocation); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prediction is a stored density together with the time it was issued.
type Prediction struct {
	Time    float64         `json:"time"`
	Density density.Mixture `json:"density"`
}

// RecordPrediction stores the density issued at time t. The first two
// components' parameters are copied into columns so they can be queried
// from the SQL console without decoding JSON.
func (db *DB) RecordPrediction(sessionID string, t float64, m density.Mixture) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	var coreLoc, coreScale, tailScale sql.NullFloat64
	if len(m.Components) > 0 {
		p := m.Components[0].Density.Params
		coreLoc = sql.NullFloat64{Float64: p.Loc, Valid: true}
		coreScale = sql.NullFloat64{Float64: p.Scale, Valid: true}
	}
	if len(m.Components) > 1 {
		tailScale = sql.NullFloat64{Float64: m.Components[1].Density.Params.Scale, Valid: true}
	}
	_, err = db.Exec(
		`INSERT INTO predictions (session_id, time, core_loc, core_scale, tail_scale, density_json) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, t, coreLoc, coreScale, tailScale, string(body),
	)
	return err
}

// Predictions returns the session's predictions in the order they were
// issued.
func (db *DB) Predictions(sessionID string) ([]Prediction, error) {
	rows, err := db.Query(
		`SELECT time, density_json FROM predictions WHERE session_id = ? ORDER BY prediction_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var p Prediction
		var body string
		if err := rows.Scan(&p.Time, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &p.Density); err != nil {
			return nil, fmt.Errorf("failed to decode prediction at t=%v: %w", p.Time, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordScores stores a batch of scores in a single transaction.
func (db *DB) RecordScores(sessionID string, scores []scoring.Score) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO scores (session_id, predicted_at, time, value, log_density) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range scores {
		if _, err := stmt.Exec(sessionID, s.PredictedAt, s.Time, s.Value, s.LogDensity); err != nil {
			return fmt.Errorf("failed to insert score at t=%v: %w", s.Time, err)
		}
	}
	return tx.Commit()
}

func (db *DB) Scores(sessionID string) ([]scoring.Score, error) {
	rows, err := db.Query(
		`SELECT predicted_at, time, value, log_density FROM scores WHERE session_id = ? ORDER BY score_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoring.Score
	for rows.Next() {
		var s scoring.Score
		if err := rows.Scan(&s.PredictedAt, &s.Time, &s.Value, &s.LogDensity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the tailsql console and a backup download under
// the tsweb /debug/ handler on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Bird game sessions",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("birdgame-backup-%d.db", db.clock.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("Failed to stream backup: %v", err)
	}
}
