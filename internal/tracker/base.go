package tracker

import (
	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/quarantine"
)

// Observation is a single timestamped value from the stream. Times are
// expected to be non-decreasing across ticks.
type Observation struct {
	Time  float64
	Value float64
}

// Tracker is the contract shared by every tracker variant.
type Tracker interface {
	// Tick ingests one observation.
	Tick(obs Observation)
	// Predict returns the current predictive density. An error wraps
	// density.ErrInvalidSpec and signals a construction defect; it must
	// not be retried.
	Predict() (density.Mixture, error)
	// Count returns the number of matured observations learned from.
	Count() int
	// Horizon returns the configured prediction horizon.
	Horizon() float64
}

// Base carries the quarantine and counter state shared by trackers.
// Concrete trackers embed it.
type Base struct {
	horizon    float64
	quarantine *quarantine.Buffer[float64]
	count      int
}

// NewBase creates base state for the given horizon. Options are passed to
// the underlying quarantine buffer.
func NewBase(horizon float64, opts ...quarantine.Option) Base {
	return Base{
		horizon:    horizon,
		quarantine: quarantine.New[float64](opts...),
	}
}

// AddToQuarantine stores a value observed at time t.
func (b *Base) AddToQuarantine(t, value float64) {
	b.quarantine.Add(t, value)
}

// PopFromQuarantine returns the oldest stored value if it was observed at
// least one horizon before t.
func (b *Base) PopFromQuarantine(t float64) (float64, bool) {
	return b.quarantine.PopMatured(t, b.horizon)
}

// Count returns the number of matured observations learned from.
func (b *Base) Count() int { return b.count }

// Horizon returns the prediction horizon.
func (b *Base) Horizon() float64 { return b.horizon }

// Pending returns how many observations are waiting to mature.
func (b *Base) Pending() int { return b.quarantine.Len() }

// Dropped returns how many observations the quarantine bound discarded.
func (b *Base) Dropped() int { return b.quarantine.Dropped() }
