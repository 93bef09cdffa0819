package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/feed"
	"github.com/banshee-data/birdgame/internal/httputil"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/report"
	"github.com/banshee-data/birdgame/internal/scoring"
	"github.com/banshee-data/birdgame/internal/tracker"
)

// session is one tracker and its bookkeeping. mu serializes every request
// touching the session; sessions never share state.
type session struct {
	mu sync.Mutex

	id        string
	createdAt time.Time

	tracker  *tracker.MixtureTracker
	scorer   *scoring.Scorer
	recorder *report.Recorder
	guard    *feed.MonotonicGuard
}

// SessionInfo describes a session in API responses.
type SessionInfo struct {
	ID           string    `json:"id"`
	Horizon      float64   `json:"horizon"`
	FadingFactor float64   `json:"fading_factor"`
	Count        int       `json:"count"`
	Pending      int       `json:"pending"`
	CreatedAt    time.Time `json:"created_at"`
}

func (sess *session) info() SessionInfo {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	cfg := sess.tracker.Config()
	return SessionInfo{
		ID:           sess.id,
		Horizon:      cfg.Horizon,
		FadingFactor: sess.tracker.Core().FadingFactor(),
		Count:        sess.tracker.Count(),
		Pending:      sess.tracker.Pending(),
		CreatedAt:    sess.createdAt,
	}
}

// CreateSessionRequest overrides the server's default horizon and fading
// factor for one session. Both fields are optional.
type CreateSessionRequest struct {
	Horizon      *float64 `json:"horizon,omitempty"`
	FadingFactor *float64 `json:"fading_factor,omitempty"`
}

// TickResponse reports the state after a record was applied.
type TickResponse struct {
	Skipped    bool             `json:"skipped,omitempty"`
	Count      int              `json:"count"`
	Prediction *density.Mixture `json:"prediction,omitempty"`
	Scores     []scoring.Score  `json:"scores,omitempty"`
}

// ScoreResponse is the body of GET /api/sessions/{id}/score.
type ScoreResponse struct {
	ID string `json:"id"`
	scoring.Summary
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.info())
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	// Both fields are optional, so an absent body is the same as {}.
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.BadRequest(w, err.Error())
		return
	}

	cfg := tracker.MixtureConfigFromTuning(s.cfg)
	if req.Horizon != nil {
		cfg.Horizon = *req.Horizon
	}
	if req.FadingFactor != nil {
		cfg.FadingFactor = *req.FadingFactor
	}
	if math.IsNaN(cfg.Horizon) || math.IsInf(cfg.Horizon, 0) || cfg.Horizon < 0 {
		httputil.BadRequest(w, fmt.Sprintf("horizon must be finite and non-negative, got %v", cfg.Horizon))
		return
	}
	if !(cfg.FadingFactor > 0 && cfg.FadingFactor < 1) {
		httputil.BadRequest(w, fmt.Sprintf("fading_factor must be in (0, 1), got %v", cfg.FadingFactor))
		return
	}

	sess := &session{
		id:        uuid.NewString(),
		createdAt: s.clock.Now().UTC(),
		tracker:   tracker.NewMixtureTracker(cfg),
		scorer:    scoring.NewScorer(cfg.Horizon, s.cfg.GetScoreWindow()),
		recorder:  report.NewRecorder(s.cfg.GetReportWindow()),
	}
	if s.cfg.GetSkipOutOfOrder() {
		sess.guard = &feed.MonotonicGuard{}
	}

	if s.db != nil {
		stored, err := s.db.CreateSession(cfg.Horizon, cfg.FadingFactor)
		if err != nil {
			monitoring.Logf("failed to store session: %v", err)
			httputil.InternalServerError(w, "failed to store session")
			return
		}
		sess.id, sess.createdAt = stored.ID, stored.CreatedAt
	}

	s.add(sess)
	monitoring.Logf("created session %s horizon=%v fading_factor=%v", sess.id, cfg.Horizon, cfg.FadingFactor)
	httputil.WriteJSON(w, http.StatusCreated, sess.info())
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := r.PathValue("id")
	sess, ok := s.lookup(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("session %q not found", id))
	}
	return sess, ok
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.remove(id) {
		httputil.NotFound(w, fmt.Sprintf("session %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	rec, err := feed.ParseRecord(string(body))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid record: %v", err))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.guard != nil && !sess.guard.Accept(rec.Time) {
		httputil.WriteJSONOK(w, TickResponse{Skipped: true, Count: sess.tracker.Count()})
		return
	}

	obs := rec.Observation()
	scores := sess.scorer.Observe(obs)
	sess.tracker.Tick(obs)
	m, err := sess.tracker.Predict()
	if err != nil {
		monitoring.Logf("session %s: %v", sess.id, err)
		httputil.InternalServerError(w, "failed to build prediction")
		return
	}
	sess.scorer.Predicted(obs.Time, m)
	sess.recorder.Add(obs, m)

	if s.db != nil {
		s.persist(sess.id, rec, m, scores)
	}

	httputil.WriteJSONOK(w, TickResponse{Count: sess.tracker.Count(), Prediction: &m, Scores: scores})
}

// persist writes a tick to the database. Failures are logged and do not
// fail the request: the tracker has already advanced.
func (s *Server) persist(id string, rec feed.Record, m density.Mixture, scores []scoring.Score) {
	if err := s.db.RecordObservation(id, rec); err != nil {
		monitoring.Logf("session %s: failed to record observation: %v", id, err)
	}
	if err := s.db.RecordPrediction(id, rec.Time, m); err != nil {
		monitoring.Logf("session %s: failed to record prediction: %v", id, err)
	}
	if err := s.db.RecordScores(id, scores); err != nil {
		monitoring.Logf("session %s: failed to record scores: %v", id, err)
	}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	m, err := sess.tracker.Predict()
	sess.mu.Unlock()
	if err != nil {
		monitoring.Logf("session %s: %v", sess.id, err)
		httputil.InternalServerError(w, "failed to build prediction")
		return
	}
	httputil.WriteJSONOK(w, m)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	summary := sess.scorer.Summary()
	sess.mu.Unlock()
	httputil.WriteJSONOK(w, ScoreResponse{ID: sess.id, Summary: summary})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	sess.mu.Lock()
	err := sess.recorder.WriteHTML(&buf, fmt.Sprintf("Session %s", sess.id))
	sess.mu.Unlock()
	if errors.Is(err, report.ErrNoData) {
		httputil.NotFound(w, "no observations yet")
		return
	}
	if err != nil {
		monitoring.Logf("session %s: failed to render chart: %v", sess.id, err)
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
