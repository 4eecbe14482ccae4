package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// NetEmbedder evaluates an ONNX model with the OpenCV DNN module.
type NetEmbedder struct {
	mu     sync.Mutex
	net    gocv.Net
	config Config
	logger *zap.SugaredLogger
}

// NewNetEmbedder loads the model at config.ModelPath.
//
// Arguments:
//   - config: The model configuration.
//   - logger: The logger to use.
//
// Returns:
//   - *NetEmbedder: The loaded model.
//   - error: An error if the model file is missing or cannot be parsed.
func NewNetEmbedder(config Config, logger *zap.SugaredLogger) (*NetEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "inference: model file %s", config.ModelPath)
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, errors.Errorf("inference: failed to load ONNX model %s", config.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger.Infow("embedding model loaded",
		"backend", BackendOpenCV,
		"model", config.ModelPath,
		"output", config.OutputName,
		"dim", config.Dim,
	)

	return &NetEmbedder{net: net, config: config, logger: logger}, nil
}

// Embed runs the model on img and returns the activations of the output layer.
func (e *NetEmbedder) Embed(img gocv.Mat) ([]float32, error) {
	if img.Empty() {
		return nil, errors.New("inference: empty image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	blob := e.config.Recipe.Blob(img)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward(e.config.OutputName)
	defer out.Close()

	if out.Total() != e.config.Dim {
		return nil, errors.Errorf("inference: layer %s produced %d values, expected %d",
			e.config.OutputName, out.Total(), e.config.Dim)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "inference: reading model output")
	}

	embedding := make([]float32, len(data))
	copy(embedding, data)
	return embedding, nil
}

// Dim returns the embedding length.
func (e *NetEmbedder) Dim() int {
	return e.config.Dim
}

// Close releases the network.
func (e *NetEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}
