// Package controller - Interactive labelling of detected regions.
package controller

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/classifier"
)

// DefaultRetries is the number of refused labels after which a region is discarded.
const DefaultRetries = 3

// Training keys.
const (
	KeySkip  = 'p'
	KeyLabel = 'a'
)

// ExampleSink is a classifier being trained.
type ExampleSink interface {
	classifier.Trainer
	AddExample(label string, vec []float64) error
}

// Sample is one region offered for labelling.
type Sample struct {
	// Crop is shown to the user. Owned by the caller.
	Crop gocv.Mat
	// Vector is stored with the chosen label.
	Vector []float64
}

// SessionResult summarizes a training session.
type SessionResult struct {
	Offered   int
	Added     int
	Skipped   int
	Discarded int
	Flushed   int
}

// Trainer runs blocking labelling sessions: each sample is shown, the user skips
// it or types a label, and accepted pairs are handed to the sink.
type Trainer struct {
	display  Display
	prompter Prompter
	retries  int
	logger   *zap.SugaredLogger
}

// NewTrainer creates a trainer.
//
// Arguments:
//   - display: Where crops are shown and keys are read.
//   - prompter: Where narration goes and labels are read.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Trainer: The trainer, allowing DefaultRetries label retries.
func NewTrainer(display Display, prompter Prompter, logger *zap.SugaredLogger) *Trainer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Trainer{display: display, prompter: prompter, retries: DefaultRetries, logger: logger}
}

// Session offers every sample in turn and flushes the sink at the end.
//
// Arguments:
//   - sink: The classifier receiving labelled examples.
//   - window: The window crops are shown in.
//   - samples: The regions to offer.
//
// Returns:
//   - SessionResult: What happened to the samples.
//   - error: A prompt, store or flush failure. Examples added before the failure are
//     still flushed.
func (t *Trainer) Session(sink ExampleSink, window string, samples []Sample) (SessionResult, error) {
	res := SessionResult{Offered: len(samples)}

	t.prompter.Say("Entered training mode.")
	t.prompter.Say("Detected %d regions.", len(samples))
	if len(samples) == 0 {
		return res, nil
	}
	t.prompter.Say("Press '%c' to enter a label for the displayed region in the terminal or '%c' to skip it.",
		KeyLabel, KeySkip)

	var sessionErr error
	for i, s := range samples {
		t.display.Show(window, s.Crop)
		t.logger.Debugw("training region", "index", i+1, "of", len(samples))

		key := t.display.WaitKey(0)
		if key < 0 || key&0xFF != KeyLabel {
			t.prompter.Say("Skipping region %d.", i+1)
			res.Skipped++
			continue
		}

		label, ok, err := t.askLabel(sink)
		if err != nil {
			sessionErr = err
			break
		}
		if !ok {
			res.Discarded++
			continue
		}
		if err := sink.AddExample(label, s.Vector); err != nil {
			sessionErr = errors.Wrapf(err, "controller: adding example for region %d", i+1)
			break
		}
		t.prompter.Say("Successfully noted down region as: %s", label)
		res.Added++
	}
	t.display.Hide(window)

	n, err := sink.Flush()
	res.Flushed = n
	if err != nil && sessionErr == nil {
		sessionErr = err
	}
	t.logger.Infow("training session finished",
		"offered", res.Offered,
		"added", res.Added,
		"skipped", res.Skipped,
		"discarded", res.Discarded,
		"flushed", res.Flushed,
	)
	return res, sessionErr
}

// askLabel reads a label, offering to register an unknown one. After t.retries
// refusals the region is discarded.
func (t *Trainer) askLabel(vocab classifier.Trainer) (string, bool, error) {
	t.listLabels(vocab)
	label, err := t.prompter.Ask("Label:")
	if err != nil {
		return "", false, err
	}

	remaining := t.retries
	for {
		if label != "" && vocab.Known(label) {
			return label, true, nil
		}
		if label != "" {
			answer, err := t.prompter.Ask(fmt.Sprintf("You typed: '%s'. Is this a new label? <y/n>", label))
			if err != nil {
				return "", false, err
			}
			if answer == "y" {
				vocab.Register(label)
				return label, true, nil
			}
		}

		remaining--
		if remaining <= 0 {
			t.prompter.Say("Unrecognized label entered. Ignoring this region. Try again later.")
			return "", false, nil
		}
		t.prompter.Say("Invalid label entered. Remaining retries = %d.", remaining)
		t.listLabels(vocab)
		if label, err = t.prompter.Ask("Label:"); err != nil {
			return "", false, err
		}
	}
}

func (t *Trainer) listLabels(vocab classifier.Trainer) {
	labels := vocab.Labels()
	if len(labels) == 0 {
		t.prompter.Say("No labels yet.")
		return
	}
	t.prompter.Say("Available labels:")
	for i, l := range labels {
		t.prompter.Say("%d. %s", i, l)
	}
}
