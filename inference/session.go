// Package inference - onnxruntime sessions.
package inference

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Provider is an onnxruntime execution provider.
type Provider string

const (
	// ProviderCPU uses the default CPU kernels.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA for GPU acceleration.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML uses Apple CoreML for macOS acceleration.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// DefaultSharedLibPath returns the conventional location of the onnxruntime
// shared library for the current platform.
func DefaultSharedLibPath() (string, error) {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p, nil
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll", nil
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("inference: no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// ORTEmbedder evaluates an ONNX model with onnxruntime. The input and output
// tensors are allocated once and reused for every call.
type ORTEmbedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	config  Config
	logger  *zap.SugaredLogger
}

// NewORTEmbedder creates an onnxruntime session for the model.
//
// Order of operations:
//  1. Library path check.
//  2. Environment setup, once per process.
//  3. Tensor allocation for a [1, 3, size, size] input and a [1, dim] output.
//  4. Session options and the execution provider.
//  5. Session creation binding the tensors.
//
// Arguments:
//   - config: The model configuration. OutputName must be a graph output.
//   - logger: The logger to use.
//
// Returns:
//   - *ORTEmbedder: The session wrapper.
//   - error: An error if any step fails. Partially created resources are released.
func NewORTEmbedder(config Config, logger *zap.SugaredLogger) (*ORTEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "inference: model file %s", config.ModelPath)
	}

	libPath := config.SharedLibPath
	if libPath == "" {
		p, err := DefaultSharedLibPath()
		if err != nil {
			return nil, err
		}
		libPath = p
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "inference: onnxruntime library %s", libPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "inference: initializing onnxruntime environment")
		}
	}

	size := int64(config.Recipe.Size)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "inference: creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(config.Dim)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "inference: creating output tensor")
	}

	destroy := func() {
		input.Destroy()
		output.Destroy()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		destroy()
		return nil, errors.Wrap(err, "inference: creating session options")
	}
	defer options.Destroy()

	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)
	if err := appendProvider(options, config.Provider); err != nil {
		destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		destroy()
		return nil, errors.Wrap(err, "inference: creating onnxruntime session")
	}

	logger.Infow("embedding model loaded",
		"backend", BackendONNXRuntime,
		"provider", config.Provider,
		"model", config.ModelPath,
		"output", config.OutputName,
		"dim", config.Dim,
	)

	return &ORTEmbedder{
		session: session,
		input:   input,
		output:  output,
		config:  config,
		logger:  logger,
	}, nil
}

func appendProvider(options *ort.SessionOptions, provider Provider) error {
	switch Provider(strings.ToLower(string(provider))) {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "inference: enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{"device_type": "CPU"}); err != nil {
			return errors.Wrap(err, "inference: enabling OpenVINO")
		}
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "inference: creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
			return errors.Wrap(err, "inference: configuring CUDA")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "inference: enabling CUDA")
		}
	default:
		return errors.Errorf("inference: unsupported execution provider %q", provider)
	}
	return nil
}

// Embed runs the model on img.
func (e *ORTEmbedder) Embed(img gocv.Mat) ([]float32, error) {
	if img.Empty() {
		return nil, errors.New("inference: empty image")
	}
	rgb, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "inference: converting frame")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := PrepareInput(rgb, e.input.GetData(), e.config.Recipe); err != nil {
		return nil, err
	}
	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference: running session")
	}

	data := e.output.GetData()
	embedding := make([]float32, len(data))
	copy(embedding, data)
	return embedding, nil
}

// Dim returns the embedding length.
func (e *ORTEmbedder) Dim() int {
	return e.config.Dim
}

// Close releases the session and its tensors.
func (e *ORTEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		if err != nil {
			return errors.Wrap(err, "inference: destroying onnxruntime session")
		}
	}
	return nil
}
