// Package classifier - Scaled nearest-neighbour classifier over hand-crafted features.
package classifier

import (
	"github.com/montanaflynn/stats"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// minStdDev is the spread below which a feature is treated as constant.
const minStdDev = 1e-4

// HandcraftedConfig contains configuration parameters for the feature classifier.
type HandcraftedConfig struct {
	// Threshold is the scaled distance below which the nearest label is accepted.
	Threshold float64 `yaml:"threshold"`
}

// DefaultHandcraftedConfig returns the default feature classifier configuration.
func DefaultHandcraftedConfig() HandcraftedConfig {
	return HandcraftedConfig{Threshold: 1.75}
}

// FeatureStats is the per-dimension mean and population standard deviation of a
// set of feature vectors.
type FeatureStats struct {
	Mean   []float64
	StdDev []float64
}

// ComputeFeatureStats derives FeatureStats from vectors.
//
// With fewer than two vectors every standard deviation is 1. A deviation below 1e-4
// is pinned to 1 so constant features do not dominate scaled distances.
//
// Arguments:
//   - vectors: The feature vectors, all of length dim.
//   - dim: The feature dimension.
//
// Returns:
//   - FeatureStats: The statistics.
func ComputeFeatureStats(vectors [][]float64, dim int) FeatureStats {
	fs := FeatureStats{Mean: make([]float64, dim), StdDev: make([]float64, dim)}
	column := make(stats.Float64Data, len(vectors))
	for j := 0; j < dim; j++ {
		for i, v := range vectors {
			column[i] = v[j]
		}
		if len(vectors) > 0 {
			fs.Mean[j], _ = stats.Mean(column)
		}
		fs.StdDev[j] = 1
		if len(vectors) < 2 {
			continue
		}
		sd, err := stats.StandardDeviationPopulation(column)
		if err == nil && sd >= minStdDev {
			fs.StdDev[j] = sd
		}
	}
	return fs
}

// Handcrafted classifies feature vectors by Euclidean distance after scaling every
// dimension by its standard deviation over the stored examples.
type Handcrafted struct {
	config HandcraftedConfig
	store  *store.Store
	stats  FeatureStats
	// scaled holds the stored vectors divided by stats.StdDev.
	scaled [][]float64
	logger *zap.SugaredLogger
}

// NewHandcrafted creates the classifier over an opened store and computes the
// feature statistics of its examples.
//
// Arguments:
//   - s: The example store. Its dimension must be set.
//   - config: The classifier configuration.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Handcrafted: The classifier.
//   - error: An error if the store has no dimension.
func NewHandcrafted(s *store.Store, config HandcraftedConfig, logger *zap.SugaredLogger) (*Handcrafted, error) {
	if s.Dim() <= 0 {
		return nil, errors.New("classifier: store dimension is not set")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handcrafted{config: config, store: s, logger: logger}
	h.recompute()
	return h, nil
}

func (h *Handcrafted) recompute() {
	vectors := h.store.Vectors()
	h.stats = ComputeFeatureStats(vectors, h.store.Dim())
	h.scaled = make([][]float64, len(vectors))
	for i, v := range vectors {
		h.scaled[i] = make([]float64, len(v))
		floats.DivTo(h.scaled[i], v, h.stats.StdDev)
	}
	h.logger.Debugw("recomputed feature statistics", "examples", len(vectors), "mean", h.stats.Mean, "stddev", h.stats.StdDev)
}

// Stats returns the current feature statistics.
func (h *Handcrafted) Stats() FeatureStats { return h.stats }

// HasTrainingData reports whether any example is stored.
func (h *Handcrafted) HasTrainingData() bool { return h.store.Len() > 0 }

// Predict returns the label of the nearest stored example.
//
// Arguments:
//   - features: The feature vector to classify.
//
// Returns:
//   - Prediction: The nearest label when its scaled distance is below the threshold,
//     region.Unknown otherwise.
func (h *Handcrafted) Predict(features []float64) Prediction {
	if len(h.scaled) == 0 || len(features) != h.store.Dim() {
		return unknown()
	}

	q := make([]float64, len(features))
	floats.DivTo(q, features, h.stats.StdDev)

	best, bestDist := -1, 0.0
	for i, v := range h.scaled {
		d := floats.Distance(v, q, 2)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	p := Prediction{Label: region.Unknown, Distance: bestDist, Confidence: 1 / (1 + bestDist)}
	if bestDist < h.config.Threshold {
		p.Label = h.store.Examples()[best].Label
	}
	return p
}

// PredictAll labels every region from its Features.
func (h *Handcrafted) PredictAll(regions []region.Stats) {
	for i := range regions {
		p := h.Predict(regions[i].Features)
		regions[i].Label = p.Label
		regions[i].Confidence = p.Confidence
	}
}

// AddExample stores a labelled feature vector and recomputes the statistics.
func (h *Handcrafted) AddExample(label string, features []float64) error {
	if err := h.store.Add(label, features); err != nil {
		return err
	}
	h.recompute()
	return nil
}

// Known implements Trainer.
func (h *Handcrafted) Known(label string) bool { return h.store.Known(label) }

// Register implements Trainer.
func (h *Handcrafted) Register(label string) { h.store.Register(label) }

// Labels implements Trainer.
func (h *Handcrafted) Labels() []string { return h.store.Labels() }

// Flush implements Trainer. Statistics are recomputed afterwards.
func (h *Handcrafted) Flush() (int, error) {
	n, err := h.store.Flush()
	if err != nil {
		return 0, err
	}
	h.recompute()
	return n, nil
}

// Len returns the number of stored examples.
func (h *Handcrafted) Len() int { return h.store.Len() }
