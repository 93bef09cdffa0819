package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tracker and scoring
// hyperparameters. Every field is optional; the Get* methods supply the
// defaults for anything left unset, so partial files are safe.
type TuningConfig struct {
	// Tracker params
	Horizon           *float64  `json:"horizon,omitempty"`
	FadingFactor      *float64  `json:"fading_factor,omitempty"`
	MixtureWeights    []float64 `json:"mixture_weights,omitempty"` // [core, tail]
	WinsorSigmas      *float64  `json:"winsor_sigmas,omitempty"`
	TailAmplification *float64  `json:"tail_amplification,omitempty"`
	ScaleFloor        *float64  `json:"scale_floor,omitempty"`

	// Quarantine bound. 0 keeps the buffer unbounded.
	MaxQuarantine *int `json:"max_quarantine,omitempty"`

	// Feed params
	SkipOutOfOrder *bool `json:"skip_out_of_order,omitempty"`

	// Scoring/report params
	ScoreWindow  *int     `json:"score_window,omitempty"`
	ReportWindow *float64 `json:"report_window,omitempty"` // trailing time window shown in charts
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		Horizon:           ptrFloat64(empty.GetHorizon()),
		FadingFactor:      ptrFloat64(empty.GetFadingFactor()),
		MixtureWeights:    empty.GetMixtureWeights(),
		WinsorSigmas:      ptrFloat64(empty.GetWinsorSigmas()),
		TailAmplification: ptrFloat64(empty.GetTailAmplification()),
		ScaleFloor:        ptrFloat64(empty.GetScaleFloor()),
		MaxQuarantine:     ptrInt(empty.GetMaxQuarantine()),
		SkipOutOfOrder:    ptrBool(empty.GetSkipOutOfOrder()),
		ScoreWindow:       ptrInt(empty.GetScoreWindow()),
		ReportWindow:      ptrFloat64(empty.GetReportWindow()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Horizon != nil {
		if *c.Horizon < 0 || math.IsNaN(*c.Horizon) || math.IsInf(*c.Horizon, 0) {
			return fmt.Errorf("horizon must be a non-negative finite number, got %f", *c.Horizon)
		}
	}

	if c.FadingFactor != nil {
		if !(*c.FadingFactor > 0 && *c.FadingFactor < 1) {
			return fmt.Errorf("fading_factor must be in (0, 1), got %f", *c.FadingFactor)
		}
	}

	if c.MixtureWeights != nil {
		if len(c.MixtureWeights) != 2 {
			return fmt.Errorf("mixture_weights must have 2 entries (core, tail), got %d", len(c.MixtureWeights))
		}
		var total float64
		for i, w := range c.MixtureWeights {
			if !(w >= 0) {
				return fmt.Errorf("mixture_weights[%d] must be non-negative, got %f", i, w)
			}
			total += w
		}
		if math.Abs(total-1) > 1e-9 {
			return fmt.Errorf("mixture_weights must sum to 1, got %f", total)
		}
	}

	if c.WinsorSigmas != nil && !(*c.WinsorSigmas > 0) {
		return fmt.Errorf("winsor_sigmas must be positive, got %f", *c.WinsorSigmas)
	}

	if c.TailAmplification != nil && !(*c.TailAmplification > 0) {
		return fmt.Errorf("tail_amplification must be positive, got %f", *c.TailAmplification)
	}

	if c.ScaleFloor != nil && !(*c.ScaleFloor > 0) {
		return fmt.Errorf("scale_floor must be positive, got %f", *c.ScaleFloor)
	}

	if c.MaxQuarantine != nil && *c.MaxQuarantine < 0 {
		return fmt.Errorf("max_quarantine must be non-negative, got %d", *c.MaxQuarantine)
	}

	if c.ScoreWindow != nil && *c.ScoreWindow < 0 {
		return fmt.Errorf("score_window must be non-negative, got %d", *c.ScoreWindow)
	}

	if c.ReportWindow != nil && *c.ReportWindow < 0 {
		return fmt.Errorf("report_window must be non-negative, got %f", *c.ReportWindow)
	}

	return nil
}

// GetHorizon returns the horizon value or the default.
func (c *TuningConfig) GetHorizon() float64 {
	if c.Horizon == nil {
		return 10
	}
	return *c.Horizon
}

// GetFadingFactor returns the fading_factor value or the default.
func (c *TuningConfig) GetFadingFactor() float64 {
	if c.FadingFactor == nil {
		return 0.0001
	}
	return *c.FadingFactor
}

// GetMixtureWeights returns a copy of the [core, tail] weights or the default.
func (c *TuningConfig) GetMixtureWeights() []float64 {
	if len(c.MixtureWeights) != 2 {
		return []float64{0.95, 0.05}
	}
	return append([]float64(nil), c.MixtureWeights...)
}

// GetWinsorSigmas returns the winsor_sigmas value or the default.
func (c *TuningConfig) GetWinsorSigmas() float64 {
	if c.WinsorSigmas == nil {
		return 2.0
	}
	return *c.WinsorSigmas
}

// GetTailAmplification returns the tail_amplification value or the default.
func (c *TuningConfig) GetTailAmplification() float64 {
	if c.TailAmplification == nil {
		return 2.0
	}
	return *c.TailAmplification
}

// GetScaleFloor returns the scale_floor value or the default.
func (c *TuningConfig) GetScaleFloor() float64 {
	if c.ScaleFloor == nil {
		return 1e-6
	}
	return *c.ScaleFloor
}

// GetMaxQuarantine returns the max_quarantine value or the default (unbounded).
func (c *TuningConfig) GetMaxQuarantine() int {
	if c.MaxQuarantine == nil {
		return 0
	}
	return *c.MaxQuarantine
}

// GetSkipOutOfOrder returns the skip_out_of_order value or the default.
func (c *TuningConfig) GetSkipOutOfOrder() bool {
	if c.SkipOutOfOrder == nil {
		return true
	}
	return *c.SkipOutOfOrder
}

// GetScoreWindow returns the score_window value or the default.
func (c *TuningConfig) GetScoreWindow() int {
	if c.ScoreWindow == nil {
		return 1000
	}
	return *c.ScoreWindow
}

// GetReportWindow returns the report_window value or the default.
func (c *TuningConfig) GetReportWindow() float64 {
	if c.ReportWindow == nil {
		return 500
	}
	return *c.ReportWindow
}
