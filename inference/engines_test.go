package inference

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-objrec/classifier"
)

var (
	_ classifier.Embedder = (*NetEmbedder)(nil)
	_ classifier.Embedder = (*ORTEmbedder)(nil)
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{in: "", want: BackendOpenCV},
		{in: "opencv", want: BackendOpenCV},
		{in: "ONNXRuntime", want: BackendONNXRuntime},
		{in: "tensorflow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownBackend))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	assert.Error(t, c.Validate(), "model path is required")

	c.ModelPath = "resnet18.onnx"
	assert.NoError(t, c.Validate())

	bad := c
	bad.Dim = 0
	assert.Error(t, bad.Validate())

	bad = c
	bad.Backend = "tflite"
	assert.Error(t, bad.Validate())
}

func TestNewEmbedderMissingModel(t *testing.T) {
	for _, backend := range Backends {
		t.Run(string(backend), func(t *testing.T) {
			c := DefaultConfig()
			c.Backend = backend
			c.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

			e, err := NewEmbedder(c, nil)
			assert.Error(t, err)
			assert.Nil(t, e)
		})
	}
}
