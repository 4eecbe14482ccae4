package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/inference"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/threshold"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 9000.0, c.Extractor.MinArea)
	assert.Equal(t, 1.75, c.Handcrafted.Threshold)
	assert.Equal(t, 200.0, c.Embedding.Threshold)
	assert.Equal(t, 5, c.KernelSize)
	assert.Equal(t, MatcherFirst, c.Tracker.Matcher)
	assert.Equal(t, images.FormatPNG, c.Snapshots.Format)

	s, err := c.SegmenterConfig()
	require.NoError(t, err)
	assert.Equal(t, threshold.ModeClustering, s.Mode)
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: background
database: objects.csv
extractor:
  min_area: 1500
tracker:
  matcher: hungarian
model:
  backend: onnxruntime
  path: resnet18.onnx
segmenter:
  diff_threshold: 25
source:
  resolution: 720p
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "objects.csv", c.Database)
	assert.Equal(t, 1500.0, c.Extractor.MinArea)
	assert.Equal(t, inference.BackendONNXRuntime, c.Model.Backend)
	assert.Equal(t, "resnet18.onnx", c.Model.ModelPath)
	assert.Equal(t, 512, c.Model.Dim, "unset keys keep defaults")
	assert.Equal(t, 25.0, c.Segmenter.DiffThreshold)
	assert.Equal(t, 7, c.Segmenter.BlurKernel)
	assert.Equal(t, "720p", c.Source.Resolution)

	s, err := c.SegmenterConfig()
	require.NoError(t, err)
	assert.Equal(t, threshold.ModeBackground, s.Mode)

	m, err := c.NewMatcher()
	require.NoError(t, err)
	assert.IsType(t, region.HungarianMatch{}, m)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad yaml", body: "mode: [clustering"},
		{name: "unknown mode", body: "mode: sepia"},
		{name: "unknown matcher", body: "tracker:\n  matcher: greedy"},
		{name: "even kernel", body: "kernel_size: 4"},
		{name: "negative area", body: "extractor:\n  min_area: -1"},
		{name: "zero threshold", body: "handcrafted:\n  threshold: 0"},
		{name: "snapshot format", body: "snapshots:\n  format: tiff"},
		{name: "no database", body: "database: \"\""},
		{name: "bad resolution", body: "source:\n  resolution: huge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
