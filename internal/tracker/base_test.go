package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_QuarantineDelegation(t *testing.T) {
	t.Parallel()

	b := NewBase(4)
	assert.Equal(t, 4.0, b.Horizon())
	assert.Equal(t, 0, b.Count())

	b.AddToQuarantine(0, 1.5)
	b.AddToQuarantine(2, 2.5)
	assert.Equal(t, 2, b.Pending())

	_, ok := b.PopFromQuarantine(3)
	assert.False(t, ok)

	v, ok := b.PopFromQuarantine(4)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = b.PopFromQuarantine(5)
	assert.False(t, ok, "second entry matures at t=6")

	v, ok = b.PopFromQuarantine(6)
	require.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 0, b.Dropped())
}

func TestTrackerInterface(t *testing.T) {
	t.Parallel()

	var tr Tracker = NewMixtureTracker(DefaultMixtureConfig())
	tr.Tick(Observation{Time: 0, Value: 3})
	assert.Equal(t, 10.0, tr.Horizon())
	assert.Equal(t, 0, tr.Count())

	m, err := tr.Predict()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, m.Mean(), 1e-12)
}
