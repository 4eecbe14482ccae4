package classifier

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string, dim int) *store.Store {
	t.Helper()
	s, err := store.Open(path, dim, nil)
	require.NoError(t, err)
	return s
}

func newHandcrafted(t *testing.T, s *store.Store) *Handcrafted {
	t.Helper()
	h, err := NewHandcrafted(s, DefaultHandcraftedConfig(), nil)
	require.NoError(t, err)
	return h
}

func TestComputeFeatureStats(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float64
		mean    []float64
		stddev  []float64
	}{
		{
			name:    "empty",
			vectors: nil,
			mean:    []float64{0, 0},
			stddev:  []float64{1, 1},
		},
		{
			name:    "single sample",
			vectors: [][]float64{{3, 4}},
			mean:    []float64{3, 4},
			stddev:  []float64{1, 1},
		},
		{
			name:    "mean over samples",
			vectors: [][]float64{{1, 10}, {3, 10}, {5, 10}, {7, 10}},
			mean:    []float64{4, 10},
			stddev:  []float64{math.Sqrt(5), 1},
		},
		{
			name:    "tiny spread is pinned",
			vectors: [][]float64{{1, 2}, {1.00001, 4}},
			mean:    []float64{1.000005, 3},
			stddev:  []float64{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := ComputeFeatureStats(tt.vectors, 2)
			assert.InDeltaSlice(t, tt.mean, fs.Mean, 1e-9)
			assert.InDeltaSlice(t, tt.stddev, fs.StdDev, 1e-9)
		})
	}
}

func TestHandcraftedEmptyStore(t *testing.T) {
	h := newHandcrafted(t, openStore(t, filepath.Join(t.TempDir(), "db.csv"), 3))
	assert.False(t, h.HasTrainingData())

	p := h.Predict([]float64{1, 2, 3})
	assert.Equal(t, region.Unknown, p.Label)
	assert.True(t, math.IsInf(p.Distance, 1))
	assert.Equal(t, 0.0, p.Confidence)

	_, err := NewHandcrafted(openStore(t, filepath.Join(t.TempDir(), "x.csv"), 0), DefaultHandcraftedConfig(), nil)
	assert.Error(t, err)
}

func TestHandcraftedRoundTrip(t *testing.T) {
	h := newHandcrafted(t, openStore(t, filepath.Join(t.TempDir(), "db.csv"), 3))
	f := []float64{0.9, 0.5, 1.3}

	require.NoError(t, h.AddExample("L", f))
	assert.True(t, h.HasTrainingData())
	assert.True(t, h.Known("L"))

	p := h.Predict(f)
	assert.Equal(t, "L", p.Label)
	assert.InDelta(t, 0, p.Distance, 1e-12)
	assert.InDelta(t, 1, p.Confidence, 1e-12)
}

func TestHandcraftedPredict(t *testing.T) {
	h := newHandcrafted(t, openStore(t, filepath.Join(t.TempDir(), "db.csv"), 2))
	require.NoError(t, h.AddExample("mug", []float64{0, 0}))
	require.NoError(t, h.AddExample("mug", []float64{0, 2}))
	require.NoError(t, h.AddExample("key", []float64{4, 0}))
	require.NoError(t, h.AddExample("key", []float64{4, 2}))
	// Both dimensions have population stddev 2 and 1.

	tests := []struct {
		name     string
		features []float64
		label    string
		distance float64
	}{
		{"near mug", []float64{1, 0}, "mug", 0.5},
		{"near key", []float64{4, 2.5}, "key", 0.5},
		{"too far", []float64{2, 6}, region.Unknown, math.Sqrt(1 + 16)},
		{"wrong dimension", []float64{1}, region.Unknown, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.Predict(tt.features)
			assert.Equal(t, tt.label, p.Label)
			assert.InDelta(t, tt.distance, p.Distance, 1e-9)
		})
	}

	regions := []region.Stats{{Features: []float64{1, 0}}, {Features: []float64{20, 20}}}
	h.PredictAll(regions)
	assert.Equal(t, "mug", regions[0].Label)
	assert.InDelta(t, 1/1.5, regions[0].Confidence, 1e-9)
	assert.Equal(t, region.Unknown, regions[1].Label)
}

func TestHandcraftedPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.csv")
	h := newHandcrafted(t, openStore(t, path, 3))

	training := map[string][]float64{
		"mug":   {0.81, 0.92, 1.4},
		"key":   {0.35, 0.21, 3.2},
		"phone": {0.97, 0.48, 1.1},
	}
	for label, f := range training {
		require.NoError(t, h.AddExample(label, f))
	}
	before := map[string]Prediction{}
	for label, f := range training {
		before[label] = h.Predict(f)
	}

	n, err := h.Flush()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	reloaded := newHandcrafted(t, openStore(t, path, 3))
	assert.Equal(t, h.Stats(), reloaded.Stats())
	assert.Equal(t, []string{"key", "mug", "phone"}, reloaded.Labels())
	for label, f := range training {
		p := reloaded.Predict(f)
		assert.Equal(t, before[label], p)
		assert.Equal(t, label, p.Label)
	}
}

func TestHandcraftedRegister(t *testing.T) {
	h := newHandcrafted(t, openStore(t, filepath.Join(t.TempDir(), "db.csv"), 1))
	h.Register("pen")
	assert.True(t, h.Known("pen"))
	assert.Equal(t, 0, h.Len())
}
