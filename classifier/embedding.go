// Package classifier - One-shot nearest-neighbour classifier over deep embeddings.
package classifier

import (
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
)

// Embedder maps an image to a fixed-length vector.
type Embedder interface {
	// Embed runs the model on img.
	Embed(img gocv.Mat) ([]float32, error)
	// Dim is the length of the vectors Embed returns.
	Dim() int
	// Close releases the model.
	Close() error
}

// EmbeddingConfig contains configuration parameters for the embedding classifier.
type EmbeddingConfig struct {
	// Threshold is the squared Euclidean distance below which the nearest label is accepted.
	Threshold float64 `yaml:"threshold"`
}

// DefaultEmbeddingConfig returns the default embedding classifier configuration.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{Threshold: 200}
}

// Embedding classifies regions by the nearest stored embedding of their canonical
// crop. Dimensions are compared unscaled.
type Embedding struct {
	config   EmbeddingConfig
	embedder Embedder
	store    *store.Store
	logger   *zap.SugaredLogger
}

// NewEmbedding creates the classifier.
//
// Arguments:
//   - embedder: The embedding model.
//   - s: The example store. Its dimension must match the embedder or be unset.
//   - config: The classifier configuration.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Embedding: The classifier.
//   - error: An error if the store and the embedder disagree on the dimension.
func NewEmbedding(embedder Embedder, s *store.Store, config EmbeddingConfig, logger *zap.SugaredLogger) (*Embedding, error) {
	if s.Dim() != 0 && s.Dim() != embedder.Dim() {
		return nil, errors.Wrapf(store.ErrDimension, "classifier: store %s holds %d-d vectors, model produces %d",
			s.Path(), s.Dim(), embedder.Dim())
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Embedding{config: config, embedder: embedder, store: s, logger: logger}, nil
}

// Embed canonicalizes a region of frame and returns its embedding.
func (e *Embedding) Embed(frame gocv.Mat, r region.Stats) ([]float64, error) {
	crop, err := Canonicalize(frame, r)
	defer crop.Close()
	if err != nil {
		return nil, err
	}

	vec, err := e.EmbedCrop(crop)
	if err != nil {
		return nil, errors.Wrapf(err, "classifier: embedding region %d", r.ID)
	}
	return vec, nil
}

// EmbedCrop embeds a crop that Canonicalize already produced.
func (e *Embedding) EmbedCrop(crop gocv.Mat) ([]float64, error) {
	if crop.Empty() {
		return nil, errors.New("classifier: empty crop")
	}
	out, err := e.embedder.Embed(crop)
	if err != nil {
		return nil, err
	}
	vec := make([]float64, len(out))
	for i, v := range out {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Predict returns the label of the nearest stored embedding.
//
// Arguments:
//   - vec: The embedding to classify.
//
// Returns:
//   - Prediction: The nearest label when its squared distance is below the threshold,
//     region.Unknown otherwise. Distance is the squared Euclidean distance.
func (e *Embedding) Predict(vec []float64) Prediction {
	examples := e.store.Examples()
	if len(examples) == 0 || len(vec) != e.store.Dim() {
		return unknown()
	}

	best, bestDist := -1, 0.0
	for i, ex := range examples {
		d := floats.Distance(ex.Vector, vec, 2)
		d *= d
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	p := Prediction{Label: region.Unknown, Distance: bestDist, Confidence: 1 / (1 + bestDist)}
	if bestDist < e.config.Threshold {
		p.Label = examples[best].Label
	}
	return p
}

// ClassifyAll sets EmbeddingLabel and EmbeddingDistance on every region.
//
// Arguments:
//   - frame: The color frame the regions were extracted from.
//   - regions: The regions to classify, annotated in place.
//
// Returns:
//   - error: The first embedding failure. Regions after it keep their labels.
func (e *Embedding) ClassifyAll(frame gocv.Mat, regions []region.Stats) error {
	for i := range regions {
		vec, err := e.Embed(frame, regions[i])
		if err != nil {
			return err
		}
		p := e.Predict(vec)
		regions[i].EmbeddingLabel = p.Label
		regions[i].EmbeddingDistance = p.Distance
	}
	return nil
}

// HasTrainingData reports whether any embedding is stored.
func (e *Embedding) HasTrainingData() bool { return e.store.Len() > 0 }

// AddExample stores a labelled embedding.
func (e *Embedding) AddExample(label string, vec []float64) error {
	return e.store.Add(label, vec)
}

// Known implements Trainer.
func (e *Embedding) Known(label string) bool { return e.store.Known(label) }

// Register implements Trainer.
func (e *Embedding) Register(label string) { e.store.Register(label) }

// Labels implements Trainer.
func (e *Embedding) Labels() []string { return e.store.Labels() }

// Flush implements Trainer.
func (e *Embedding) Flush() (int, error) { return e.store.Flush() }

// Len returns the number of stored embeddings.
func (e *Embedding) Len() int { return e.store.Len() }

// Close releases the embedder.
func (e *Embedding) Close() error { return e.embedder.Close() }
