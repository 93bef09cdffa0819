package tracker

import (
	"fmt"
	"math"

	"github.com/banshee-data/birdgame/internal/config"
	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/banshee-data/birdgame/internal/quarantine"
	"github.com/banshee-data/birdgame/internal/stats"
)

// MixtureConfig holds the hyperparameters of a MixtureTracker. None of
// them are learned.
type MixtureConfig struct {
	Horizon           float64 // Delay between an observation and its realized outcome
	FadingFactor      float64 // Decay rate of both variance estimators, in (0, 1)
	CoreWeight        float64 // Mixture weight of the core component
	TailWeight        float64 // Mixture weight of the tail component
	WinsorSigmas      float64 // Core updates are clamped to ±WinsorSigmas standard deviations
	TailAmplification float64 // Multiplier applied to raw changes fed to the tail estimator
	ScaleFloor        float64 // Minimum component scale
	MaxQuarantine     int     // Quarantine bound; 0 is unbounded
}

// DefaultMixtureConfig returns the built-in hyperparameters.
func DefaultMixtureConfig() MixtureConfig {
	return MixtureConfigFromTuning(config.EmptyTuningConfig())
}

// MixtureConfigFromTuning builds a MixtureConfig from a loaded TuningConfig.
func MixtureConfigFromTuning(cfg *config.TuningConfig) MixtureConfig {
	weights := cfg.GetMixtureWeights()
	return MixtureConfig{
		Horizon:           cfg.GetHorizon(),
		FadingFactor:      cfg.GetFadingFactor(),
		CoreWeight:        weights[0],
		TailWeight:        weights[1],
		WinsorSigmas:      cfg.GetWinsorSigmas(),
		TailAmplification: cfg.GetTailAmplification(),
		ScaleFloor:        cfg.GetScaleFloor(),
		MaxQuarantine:     cfg.GetMaxQuarantine(),
	}
}

// MixtureTracker predicts the future level as a two component Gaussian
// mixture centred on the latest value. The tight core component learns
// from winsorized changes; the wide tail component learns from amplified,
// unclamped changes.
type MixtureTracker struct {
	Base
	cfg MixtureConfig

	current    float64
	hasCurrent bool

	core *stats.FadingVariance
	tail *stats.FadingVariance
}

var _ Tracker = (*MixtureTracker)(nil)

// NewMixtureTracker creates a tracker with no observations.
func NewMixtureTracker(cfg MixtureConfig) *MixtureTracker {
	return &MixtureTracker{
		Base: NewBase(cfg.Horizon, quarantine.WithCapacity(cfg.MaxQuarantine)),
		cfg:  cfg,
		core: stats.NewFadingVariance(cfg.FadingFactor),
		tail: stats.NewFadingVariance(cfg.FadingFactor),
	}
}

// Tick records obs and, once the value observed a horizon earlier has
// matured, learns from the realized change.
func (mt *MixtureTracker) Tick(obs Observation) {
	mt.AddToQuarantine(obs.Time, obs.Value)
	mt.current = obs.Value
	mt.hasCurrent = true

	prev, ok := mt.PopFromQuarantine(obs.Time)
	if !ok {
		return
	}

	change := mt.current - prev

	// Threshold uses the core variance from before this update.
	variance := 1.0
	if mt.count > 0 {
		variance = mt.core.Get()
	}
	threshold := mt.cfg.WinsorSigmas * math.Sqrt(variance)
	clamped := math.Max(-threshold, math.Min(change, threshold))
	mt.core.Update(clamped)

	mt.tail.Update(mt.cfg.TailAmplification * change)

	mt.count++

	monitoring.Debugf("mixture tick t=%v change=%v clamped=%v threshold=%v count=%d",
		obs.Time, change, clamped, threshold, mt.count)
}

// Predict returns the two component mixture centred on the latest value.
// Before the first tick the mixture is centred on zero.
func (mt *MixtureTracker) Predict() (density.Mixture, error) {
	loc := mt.current
	m, err := density.NewNormalMixture(
		[]float64{loc, loc},
		[]float64{mt.scale(mt.core), mt.scale(mt.tail)},
		[]float64{mt.cfg.CoreWeight, mt.cfg.TailWeight},
	)
	if err != nil {
		return density.Mixture{}, err
	}
	if err := m.Validate(); err != nil {
		return density.Mixture{}, fmt.Errorf("mixture tracker built a bad prediction: %w", err)
	}
	return m, nil
}

func (mt *MixtureTracker) scale(v *stats.FadingVariance) float64 {
	s := math.Sqrt(v.Get())
	if !(s > mt.cfg.ScaleFloor) {
		s = mt.cfg.ScaleFloor
	}
	return s
}

// Current returns the latest observed value. ok is false before the first
// tick.
func (mt *MixtureTracker) Current() (value float64, ok bool) {
	return mt.current, mt.hasCurrent
}

// Core returns the estimator behind the core component.
func (mt *MixtureTracker) Core() *stats.FadingVariance { return mt.core }

// Tail returns the estimator behind the tail component.
func (mt *MixtureTracker) Tail() *stats.FadingVariance { return mt.tail }

// Config returns the tracker's hyperparameters.
func (mt *MixtureTracker) Config() MixtureConfig { return mt.cfg }
