package density

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMixture(t *testing.T, locs, scales, weights []float64) Mixture {
	t.Helper()
	m, err := NewNormalMixture(locs, scales, weights)
	require.NoError(t, err)
	return m
}

func TestNewNormalMixture_MismatchedCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		locs, scales, weights []float64
	}{
		{"empty", nil, nil, nil},
		{"short scales", []float64{0, 1}, []float64{1}, []float64{0.5, 0.5}},
		{"short weights", []float64{0, 1}, []float64{1, 1}, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewNormalMixture(tt.locs, tt.scales, tt.weights)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSpec))
		})
	}
}

func TestMixture_WireFormat(t *testing.T) {
	t.Parallel()

	m := mustMixture(t, []float64{19, 19}, []float64{0.5, 2}, []float64{0.95, 0.05})
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	want := map[string]interface{}{
		"type": "mixture",
		"components": []interface{}{
			map[string]interface{}{
				"density": map[string]interface{}{
					"type":   "builtin",
					"name":   "norm",
					"params": map[string]interface{}{"loc": 19.0, "scale": 0.5},
				},
				"weight": 0.95,
			},
			map[string]interface{}{
				"density": map[string]interface{}{
					"type":   "builtin",
					"name":   "norm",
					"params": map[string]interface{}{"loc": 19.0, "scale": 2.0},
				},
				"weight": 0.05,
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wire format mismatch (-want +got):\n%s", diff)
	}
}

func TestMixture_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Mixture {
		return mustMixture(t, []float64{1, 1}, []float64{1, 3}, []float64{0.95, 0.05})
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(m *Mixture)
	}{
		{"wrong type", func(m *Mixture) { m.Type = "builtin" }},
		{"no components", func(m *Mixture) { m.Components = nil }},
		{"wrong family", func(m *Mixture) { m.Components[0].Density.Name = "t" }},
		{"zero scale", func(m *Mixture) { m.Components[1].Density.Params.Scale = 0 }},
		{"nan scale", func(m *Mixture) { m.Components[1].Density.Params.Scale = math.NaN() }},
		{"inf scale", func(m *Mixture) { m.Components[1].Density.Params.Scale = math.Inf(1) }},
		{"nan loc", func(m *Mixture) { m.Components[0].Density.Params.Loc = math.NaN() }},
		{"negative weight", func(m *Mixture) { m.Components[0].Weight = -0.05; m.Components[1].Weight = 1.05 }},
		{"weights do not sum to one", func(m *Mixture) { m.Components[1].Weight = 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid()
			tt.mutate(&m)
			err := m.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestMixture_PDF(t *testing.T) {
	t.Parallel()

	single := mustMixture(t, []float64{0}, []float64{1}, []float64{1})
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), single.PDF(0), 1e-12)

	m := mustMixture(t, []float64{0, 0}, []float64{1, 2}, []float64{0.5, 0.5})
	want := 0.5/math.Sqrt(2*math.Pi) + 0.5/(2*math.Sqrt(2*math.Pi))
	assert.InDelta(t, want, m.PDF(0), 1e-12)
	assert.InDelta(t, math.Log(want), m.LogPDF(0), 1e-12)
}

func TestMixture_LogPDFFarTail(t *testing.T) {
	t.Parallel()

	m := mustMixture(t, []float64{0, 0}, []float64{1e-6, 1e-3}, []float64{0.95, 0.05})
	assert.Equal(t, 0.0, m.PDF(50), "pdf underflows far out in the tail")
	lp := m.LogPDF(50)
	assert.False(t, math.IsInf(lp, 0), "log pdf should stay finite")
	assert.Less(t, lp, -1e6)
}

func TestMixture_MeanAndWeights(t *testing.T) {
	t.Parallel()

	m := mustMixture(t, []float64{1, 3}, []float64{1, 1}, []float64{0.75, 0.25})
	assert.InDelta(t, 1.5, m.Mean(), 1e-12)
	assert.Equal(t, []float64{0.75, 0.25}, m.Weights())
	assert.InDelta(t, 1.0, m.Quantile(0, 0.5), 1e-9)
	assert.Greater(t, m.Quantile(1, 0.975), 3.0)
}

func TestParse(t *testing.T) {
	t.Parallel()

	m := mustMixture(t, []float64{2, 2}, []float64{0.1, 0.4}, []float64{0.95, 0.05})
	data, err := m.MarshalIndent()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = Parse([]byte(`{"type":"mixture","components":[]}`))
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}
