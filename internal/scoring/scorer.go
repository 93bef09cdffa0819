// Package scoring grades predictive densities against the values that
// actually materialised one horizon later.
//
// A prediction made at time t is held in a quarantine buffer until an
// observation with time >= t+horizon arrives; it is then scored by the log
// density it assigned to that observation's value.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/quarantine"
	"github.com/banshee-data/birdgame/internal/tracker"
)

// MinLogDensity is the lowest log density a score can carry. Lower and
// non-finite values are raised to it so sums and JSON stay finite; summing
// it cannot overflow for any realistic number of scores.
const MinLogDensity = -1e100

// Score is the outcome of one matured prediction.
type Score struct {
	PredictedAt float64 `json:"predicted_at"`
	Time        float64 `json:"time"`
	Value       float64 `json:"value"`
	LogDensity  float64 `json:"log_density"`
}

// Summary aggregates the scores seen so far.
type Summary struct {
	Count          int     `json:"count"`
	MeanLogDensity float64 `json:"mean_log_density"`
	WindowCount    int     `json:"window_count"`
	WindowMean     float64 `json:"window_mean"`
	WindowStdDev   float64 `json:"window_std_dev"`
	Pending        int     `json:"pending"`
}

// Scorer pairs predictions with their realized outcomes.
type Scorer struct {
	horizon float64
	pending *quarantine.Buffer[density.Mixture]

	count int
	sum   float64

	// recent is a ring of the last len(recent) scores.
	recent []float64
	next   int
	filled bool
}

// NewScorer creates a scorer for predictions made `horizon` ahead. window
// sets how many recent scores feed the windowed statistics; 0 disables
// them.
func NewScorer(horizon float64, window int) *Scorer {
	if window < 0 {
		window = 0
	}
	return &Scorer{
		horizon: horizon,
		pending: quarantine.New[density.Mixture](),
		recent:  make([]float64, window),
	}
}

// Predicted stores a prediction made at time t.
func (s *Scorer) Predicted(t float64, m density.Mixture) {
	s.pending.Add(t, m)
}

// Observe scores every pending prediction that has matured by obs.Time
// against obs.Value, oldest first.
func (s *Scorer) Observe(obs tracker.Observation) []Score {
	var out []Score
	for {
		entry, ok := s.pending.Peek()
		if !ok {
			break
		}
		m, ok := s.pending.PopMatured(obs.Time, s.horizon)
		if !ok {
			break
		}
		score := Score{
			PredictedAt: entry.Time,
			Time:        obs.Time,
			Value:       obs.Value,
			LogDensity:  clampLogDensity(m.LogPDF(obs.Value)),
		}
		s.add(score.LogDensity)
		out = append(out, score)
	}
	if len(out) > 0 {
		monitoring.Debugf("scored %d predictions at t=%v", len(out), obs.Time)
	}
	return out
}

func clampLogDensity(logDensity float64) float64 {
	if math.IsNaN(logDensity) || logDensity < MinLogDensity {
		monitoring.Logf("scoring: log density %v below floor, counting as %v", logDensity, MinLogDensity)
		return MinLogDensity
	}
	return logDensity
}

func (s *Scorer) add(logDensity float64) {
	s.count++
	s.sum += logDensity
	if len(s.recent) == 0 {
		return
	}
	s.recent[s.next] = logDensity
	s.next++
	if s.next == len(s.recent) {
		s.next = 0
		s.filled = true
	}
}

// Summary returns aggregate statistics over all scores and the recent
// window.
func (s *Scorer) Summary() Summary {
	sum := Summary{Count: s.count, Pending: s.pending.Len()}
	if s.count > 0 {
		sum.MeanLogDensity = s.sum / float64(s.count)
	}
	window := s.recent[:s.next]
	if s.filled {
		window = s.recent
	}
	sum.WindowCount = len(window)
	switch len(window) {
	case 0:
	case 1:
		sum.WindowMean = window[0]
	default:
		sum.WindowMean, sum.WindowStdDev = stat.MeanStdDev(window, nil)
	}
	return sum
}
