// Package api serves bird game sessions over HTTP. Each session owns one
// tracker, fed by POSTed records, and exposes its latest prediction, its
// running score and a chart of recent bands.
package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/birdgame/internal/config"
	"github.com/banshee-data/birdgame/internal/db"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/timeutil"
)

// ANSI escape codes used by the request log.
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	cfg   *config.TuningConfig
	db    *db.DB
	clock timeutil.Clock

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer creates a server whose sessions default to cfg. database may
// be nil, in which case nothing is persisted.
func NewServer(cfg *config.TuningConfig, database *db.DB) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		cfg:      cfg,
		db:       database,
		clock:    timeutil.RealClock{},
		sessions: make(map[string]*session),
	}
}

// ServeMux returns the API routes plus the /debug/ admin pages.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/sessions/{id}/tick", s.handleTick)
	mux.HandleFunc("GET /api/sessions/{id}/predict", s.handlePredict)
	mux.HandleFunc("GET /api/sessions/{id}/score", s.handleScore)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.handleChart)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	debug := tsweb.Debugger(mux)
	debug.Handle("sessions", "Active tracker sessions", http.HandlerFunc(s.handleListSessions))
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) add(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *Server) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// snapshot returns the live sessions ordered by creation time.
func (s *Server) snapshot() []*session {
	s.mu.RLock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			fmt.Sprintf("%.3fms", float64(s.clock.Since(start).Nanoseconds())/1e6),
		)
	})
}
