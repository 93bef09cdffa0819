// Package stats holds small online estimators used by the trackers.
package stats

import "math"

const (
	// VarianceFloor is the smallest variance Get will ever report.
	VarianceFloor = 1e-6

	// FallbackVariance is reported by Get before the first Update.
	FallbackVariance = 1.0
)

// FadingVariance maintains a running variance over a stream of scalar
// samples using exponential forgetting. Larger fading factors weight
// recent samples more heavily.
type FadingVariance struct {
	fadingFactor float64
	mean         float64 // fading E[x]
	meanSq       float64 // fading E[x^2]
	count        int
}

// NewFadingVariance creates an estimator with the given fading factor,
// which should lie in (0, 1).
func NewFadingVariance(fadingFactor float64) *FadingVariance {
	return &FadingVariance{fadingFactor: fadingFactor}
}

// Update incorporates one new sample.
func (v *FadingVariance) Update(x float64) {
	f := v.fadingFactor
	v.mean = (1-f)*v.mean + f*x
	v.meanSq = (1-f)*v.meanSq + f*x*x
	v.count++
}

// Variance returns the current variance estimate, floored at
// VarianceFloor. ok is false when no samples have been seen.
func (v *FadingVariance) Variance() (variance float64, ok bool) {
	if v.count == 0 {
		return 0, false
	}
	variance = v.meanSq - v.mean*v.mean
	if !(variance >= VarianceFloor) {
		// Also catches NaN from overflowing inputs.
		variance = VarianceFloor
	}
	return variance, true
}

// Get returns the variance estimate, or FallbackVariance for an
// estimator that has not been updated yet.
func (v *FadingVariance) Get() float64 {
	if variance, ok := v.Variance(); ok {
		return variance
	}
	return FallbackVariance
}

// StdDev is the square root of Get.
func (v *FadingVariance) StdDev() float64 {
	return math.Sqrt(v.Get())
}

// Mean returns the fading mean of the samples seen so far.
func (v *FadingVariance) Mean() float64 { return v.mean }

// Count returns the number of samples seen.
func (v *FadingVariance) Count() int { return v.count }

// FadingFactor returns the configured decay rate.
func (v *FadingVariance) FadingFactor() float64 { return v.fadingFactor }
