package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BoundaryFixtures(t *testing.T) {
	cases := []struct {
		series []float64
		want   Archetype
		delta  float64
	}{
		{[]float64{0.6, 0.5, 0.4, 0.3, 0.2}, Crisis, -0.20},
		{[]float64{0.3, 0.4, 0.5, 0.6, 0.7}, Concrescent, 0.10},
		{[]float64{0.5, 0.3, 0.25, 0.4, 0.6, 0.75}, Restorative, 0.15},
		{[]float64{0.5, 0.7, 0.3, 0.8, 0.2, 0.6}, Pull, -0.05},
		{[]float64{0.6, 0.61, 0.59, 0.60, 0.61}, Stable, 0},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			got := Classify(tc.series)
			assert.Equal(t, tc.want, got.Archetype)
			assert.InDelta(t, tc.delta, got.QualityDelta, 1e-12)
			assert.Greater(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassify_ShortSeriesIsStableWithNoConfidence(t *testing.T) {
	for _, s := range [][]float64{nil, {0.5}, {0.9, 0.1}} {
		got := Classify(s)
		assert.Equal(t, Stable, got.Archetype)
		assert.Zero(t, got.Confidence)
		assert.Zero(t, got.QualityDelta)
	}
}

func TestClassify_ExactStepCountsAsMove(t *testing.T) {
	got := Classify([]float64{0.5, 0.45, 0.4})
	assert.Equal(t, Crisis, got.Archetype)
}

func TestClassify_RestorativeNeedsNetGain(t *testing.T) {
	// U-shape that ends below where it started is a pull, not a recovery.
	got := Classify([]float64{0.8, 0.5, 0.4, 0.6})
	assert.Equal(t, Pull, got.Archetype)
}

func TestClassify_ConfidenceGrowsWithSamples(t *testing.T) {
	short := Classify([]float64{0.6, 0.5, 0.4})
	full := Classify([]float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4})
	require.Equal(t, Crisis, short.Archetype)
	require.Equal(t, Crisis, full.Archetype)
	assert.Less(t, short.Confidence, full.Confidence)
	assert.Equal(t, 1.0, full.Confidence)
}

func TestTracker_KeepsWindow(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for _, s := range []float64{0.1, 0.9, 0.1, 0.9, 0.6, 0.5, 0.4, 0.3, 0.2} {
		tr.Observe(s)
	}
	assert.Equal(t, []float64{0.9, 0.6, 0.5, 0.4, 0.3, 0.2}, tr.Series())

	tr.Reset()
	assert.Empty(t, tr.Series())
	assert.Equal(t, Stable, tr.Current().Archetype)
}

func TestTracker_ObserveClassifies(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	assert.Equal(t, Stable, tr.Observe(0.3).Archetype)
	assert.Equal(t, Stable, tr.Observe(0.4).Archetype)
	assert.Equal(t, Concrescent, tr.Observe(0.5).Archetype)
}
