package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFadingVariance_Fallback(t *testing.T) {
	t.Parallel()

	v := NewFadingVariance(0.01)

	_, ok := v.Variance()
	assert.False(t, ok, "untrained estimator should report no variance")
	assert.Equal(t, FallbackVariance, v.Get())
	assert.Equal(t, 1.0, v.StdDev())
	assert.Equal(t, 0, v.Count())
	assert.Equal(t, 0.01, v.FadingFactor())
}

func TestFadingVariance_UpdateFormula(t *testing.T) {
	t.Parallel()

	v := NewFadingVariance(0.5)
	v.Update(2)
	// mean = 0.5*0 + 0.5*2, meanSq = 0.5*0 + 0.5*4
	assert.InDelta(t, 1.0, v.Mean(), 1e-12)
	got, ok := v.Variance()
	require.True(t, ok)
	assert.InDelta(t, 2.0-1.0, got, 1e-12)

	v.Update(4)
	// mean = 0.5*1 + 0.5*4, meanSq = 0.5*2 + 0.5*16
	assert.InDelta(t, 2.5, v.Mean(), 1e-12)
	assert.InDelta(t, 9.0-6.25, v.Get(), 1e-12)
	assert.Equal(t, 2, v.Count())
}

func TestFadingVariance_ConstantConverges(t *testing.T) {
	t.Parallel()

	const c = 3.0
	v := NewFadingVariance(0.1)

	prevMeanErr := math.Inf(1)
	prevVar := math.Inf(1)
	for round := 0; round < 5; round++ {
		for i := 0; i < 50; i++ {
			v.Update(c)
		}
		meanErr := math.Abs(v.Mean() - c)
		assert.Less(t, meanErr, prevMeanErr, "round %d", round)
		assert.LessOrEqual(t, v.Get(), prevVar, "round %d", round)
		prevMeanErr = meanErr
		prevVar = v.Get()
	}

	assert.InDelta(t, c, v.Mean(), 1e-6)
	assert.InDelta(t, VarianceFloor, v.Get(), 1e-6)
}

func TestFadingVariance_NeverBelowFloor(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for _, f := range []float64{0.0001, 0.01, 0.5, 0.999} {
		v := NewFadingVariance(f)
		for i := 0; i < 2000; i++ {
			var x float64
			switch i % 4 {
			case 0:
				x = rng.NormFloat64() * 1e6
			case 1:
				x = 0
			case 2:
				x = 1e-12
			default:
				x = rng.Float64()
			}
			v.Update(x)
			require.GreaterOrEqual(t, v.Get(), VarianceFloor, "f=%v i=%d", f, i)
		}
	}
}

func TestFadingVariance_OverflowIsFloored(t *testing.T) {
	t.Parallel()

	v := NewFadingVariance(0.5)
	v.Update(math.MaxFloat64)
	v.Update(-math.MaxFloat64)
	assert.GreaterOrEqual(t, v.Get(), VarianceFloor)
}
