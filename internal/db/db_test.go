package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/feed"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/scoring"
	"github.com/banshee-data/birdgame/internal/timeutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"sessions", "observations", "predictions", "scores"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestNewDB_ReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := NewDB(path)
	require.NoError(t, err)
	_, err = first.CreateSession(10, 0.001)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDB(path)
	require.NoError(t, err)
	defer second.Close()
	sessions, err := second.ListSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	db.clock = clock

	first, err := db.CreateSession(10, 0.0001)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	clock.Advance(time.Minute)
	second, err := db.CreateSession(5, 0.01)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := db.GetSession(first.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("GetSession mismatch (-want +got):\n%s", diff)
	}

	list, err := db.ListSessions()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = db.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestObservations(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.CreateSession(10, 0.0001)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordObservation(s.ID, feed.Record{
			Time: float64(i), DoveLocation: float64(i) * 0.5, FalconID: i % 2, FalconLocation: 1,
		}))
	}

	recent, err := db.Observations(s.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{recent[0].Time, recent[1].Time, recent[2].Time})
	assert.Equal(t, 1.0, recent[0].DoveLocation)

	all, err := db.Observations(s.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRecordObservation_UnknownSession(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordObservation("no-such-session", feed.Record{Time: 1})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestPredictions(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.CreateSession(10, 0.0001)
	require.NoError(t, err)

	m, err := density.NewNormalMixture([]float64{1.5, 1.5}, []float64{0.25, 2}, []float64{0.95, 0.05})
	require.NoError(t, err)
	require.NoError(t, db.RecordPrediction(s.ID, 7, m))

	preds, err := db.Predictions(s.ID)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 7.0, preds[0].Time)
	if diff := cmp.Diff(m, preds[0].Density); diff != "" {
		t.Errorf("prediction mismatch (-want +got):\n%s", diff)
	}

	var coreLoc, coreScale, tailScale float64
	require.NoError(t, db.QueryRow(
		`SELECT core_loc, core_scale, tail_scale FROM predictions WHERE session_id = ?`, s.ID,
	).Scan(&coreLoc, &coreScale, &tailScale))
	assert.Equal(t, 1.5, coreLoc)
	assert.Equal(t, 0.25, coreScale)
	assert.Equal(t, 2.0, tailScale)
}

func TestRecordScores(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.CreateSession(1, 0.0001)
	require.NoError(t, err)

	require.NoError(t, db.RecordScores(s.ID, nil))

	want := []scoring.Score{
		{PredictedAt: 0, Time: 1, Value: 0.5, LogDensity: -1.2},
		{PredictedAt: 1, Time: 2, Value: 0.7, LogDensity: -0.9},
	}
	require.NoError(t, db.RecordScores(s.ID, want))

	got, err := db.Scores(s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordScores_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordScores("no-such-session", []scoring.Score{{Time: 1}})
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scores`).Scan(&n))
	assert.Zero(t, n)
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = original }()

	db := setupTestDB(t)
	_, err := db.CreateSession(10, 0.0001)
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:4321"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("SQLite format 3\x00")))
}
