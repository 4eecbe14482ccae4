// Package classifier - Nearest-neighbour object classifiers over persisted example stores.
//
// Two classifiers share the same lifecycle: load examples from a store, predict,
// accept new examples through AddExample and persist them with Flush. Neither one
// talks to the user; interactive labelling is owned by the controller.
package classifier

import (
	"math"

	"github.com/nvr-ai/go-objrec/region"
)

// Prediction is the outcome of classifying one vector.
type Prediction struct {
	// Label is the nearest example's label, or region.Unknown when none is close enough.
	Label string
	// Distance to the nearest example. +Inf when the store is empty.
	Distance float64
	// Confidence is 1/(1+Distance), 0 when the store is empty.
	Confidence float64
}

// unknown is the prediction for an empty store.
func unknown() Prediction {
	return Prediction{Label: region.Unknown, Distance: math.Inf(1)}
}

// Trainer is the narrow mutation surface used by interactive training.
type Trainer interface {
	// Known reports whether label is in the classifier vocabulary.
	Known(label string) bool
	// Register adds a new label to the vocabulary.
	Register(label string)
	// Labels lists the vocabulary.
	Labels() []string
	// Flush persists examples added since the last flush.
	Flush() (int, error)
}
