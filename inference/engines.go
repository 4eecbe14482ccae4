// Package inference - Embedding model backends.
package inference

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-objrec/classifier"
)

// Backend is the runtime used to evaluate the embedding model.
type Backend string

const (
	// BackendOpenCV runs the model through the OpenCV DNN module.
	BackendOpenCV Backend = "opencv"
	// BackendONNXRuntime runs the model through the onnxruntime library.
	BackendONNXRuntime Backend = "onnxruntime"
)

// Backends is a list of all supported backends.
var Backends = []Backend{BackendOpenCV, BackendONNXRuntime}

// ErrUnknownBackend is returned for a backend name that is not in Backends.
var ErrUnknownBackend = errors.New("inference: unknown backend")

// ParseBackend resolves a backend by name. The empty string selects BackendOpenCV.
func ParseBackend(name string) (Backend, error) {
	if name == "" {
		return BackendOpenCV, nil
	}
	for _, b := range Backends {
		if strings.EqualFold(string(b), name) {
			return b, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownBackend, "%q", name)
}

// Config contains configuration parameters for loading an embedding model.
type Config struct {
	// Backend selects the runtime.
	Backend Backend `yaml:"backend"`
	// ModelPath is the path to the ONNX model file.
	ModelPath string `yaml:"path"`
	// Dim is the length of the embedding vector.
	Dim int `yaml:"dim"`
	// InputName is the graph input fed with the preprocessed image.
	InputName string `yaml:"input_name"`
	// OutputName is the graph node whose activations form the embedding.
	OutputName string `yaml:"output_name"`
	// SharedLibPath is the onnxruntime shared library. Only used by BackendONNXRuntime.
	SharedLibPath string `yaml:"shared_lib_path"`
	// Provider is the onnxruntime execution provider. Only used by BackendONNXRuntime.
	Provider Provider `yaml:"provider"`
	// Recipe describes the input preprocessing.
	Recipe Recipe `yaml:"recipe"`
}

// DefaultConfig returns the configuration for a ResNet18 v2 model truncated at its
// global pooling layer.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendOpenCV,
		Dim:        512,
		InputName:  "data",
		OutputName: "onnx_node!resnetv22_flatten0_reshape0",
		Provider:   ProviderCPU,
		Recipe:     DefaultRecipe(),
	}
}

// Validate reports the first invalid field of the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("inference: model path is required")
	}
	if c.Dim <= 0 {
		return errors.Errorf("inference: dim must be positive, got %d", c.Dim)
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	return c.Recipe.Validate()
}

// NewEmbedder loads the model with the configured backend.
//
// Arguments:
//   - config: The model configuration.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - classifier.Embedder: The loaded model.
//   - error: An error if the configuration is invalid or the model cannot be loaded.
func NewEmbedder(config Config, logger *zap.SugaredLogger) (classifier.Embedder, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	backend, _ := ParseBackend(string(config.Backend))
	switch backend {
	case BackendONNXRuntime:
		e, err := NewORTEmbedder(config, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		e, err := NewNetEmbedder(config, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
