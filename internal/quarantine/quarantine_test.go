package quarantine

import (
	"testing"

	"github.com/banshee-data/birdgame/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Maturation(t *testing.T) {
	t.Parallel()

	const h = 10.0
	b := New[float64]()
	b.Add(0, 5)

	_, ok := b.PopMatured(h-1, h)
	assert.False(t, ok, "entry must not mature before the horizon")
	assert.Equal(t, 1, b.Len())

	v, ok := b.PopMatured(h, h)
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok = b.PopMatured(h, h)
	assert.False(t, ok, "entry must be consumed exactly once")
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_FIFO(t *testing.T) {
	t.Parallel()

	const h = 3.0
	b := New[string]()
	b.Add(0, "a")
	b.Add(1, "b")

	v, ok := b.PopMatured(h, h)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// b was added at t=1 and has not matured at t=3.
	_, ok = b.PopMatured(h, h)
	assert.False(t, ok)

	v, ok = b.PopMatured(h+1, h)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestBuffer_OnlyFrontInspected(t *testing.T) {
	t.Parallel()

	b := New[int]()
	b.Add(5, 1)
	b.Add(5, 2)

	// Even when several entries are mature, one pop releases one entry.
	v, ok := b.PopMatured(100, 1)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, b.Len())

	e, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, Entry[int]{Time: 5, Value: 2}, e)
}

func TestBuffer_ZeroHorizon(t *testing.T) {
	t.Parallel()

	b := New[float64]()
	b.Add(2, 7)
	v, ok := b.PopMatured(2, 0)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestBuffer_EmptyPeek(t *testing.T) {
	t.Parallel()

	b := New[float64]()
	_, ok := b.Peek()
	assert.False(t, ok)
	_, ok = b.PopMatured(1e9, 0)
	assert.False(t, ok)
}

func TestBuffer_CompactionKeepsOrder(t *testing.T) {
	t.Parallel()

	b := New[int]()
	next := 0
	for i := 0; i < 1000; i++ {
		b.Add(float64(i), i)
		if i >= 10 {
			v, ok := b.PopMatured(float64(i), 10)
			require.True(t, ok)
			require.Equal(t, next, v)
			next++
		}
	}
	assert.Equal(t, 10, b.Len())
	assert.LessOrEqual(t, len(b.entries), 64, "consumed prefix should be compacted")
}

func TestBuffer_CapacityDropsOldest(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	b := New[int](WithCapacity(2))
	b.Add(0, 0)
	b.Add(1, 1)
	b.Add(2, 2)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Dropped())
	assert.Equal(t, 1, logged)

	v, ok := b.PopMatured(100, 0)
	require.True(t, ok)
	assert.Equal(t, 1, v, "oldest entry should have been dropped")
}

func TestWithCapacity_NegativeIsUnbounded(t *testing.T) {
	t.Parallel()

	b := New[int](WithCapacity(-3))
	for i := 0; i < 100; i++ {
		b.Add(float64(i), i)
	}
	assert.Equal(t, 100, b.Len())
	assert.Equal(t, 0, b.Dropped())
}
