// Package store - Persisted labelled example sets backing the classifiers.
//
// A Store is an ordered list of (label, vector) examples loaded once from a CSV file,
// grown during a session and appended back to the same file. Rows that were on disk
// when the store was loaded, or that were already flushed, are never rewritten.
//
// File format, one example per row, fixed column count per file:
//
//	label,v1,v2,...,vn
package store

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrDimension is returned when a vector does not match the store dimension.
var ErrDimension = errors.New("store: vector dimension mismatch")

// Example is one labelled vector.
type Example struct {
	Label  string
	Vector []float64
}

// Store owns a label vocabulary, the ordered examples and the flush boundary.
type Store struct {
	path       string
	dim        int
	vocabulary map[string]struct{}
	examples   []Example
	// flushed is the number of leading examples already on disk.
	flushed int
	logger  *zap.SugaredLogger
}

// Open loads the store at path. A missing or empty file yields an empty store; the
// file is created on the first Flush.
//
// Arguments:
//   - path: The CSV file backing the store.
//   - dim: The vector dimension. When 0 it is taken from the first row or example.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Store: The loaded store.
//   - error: An error if the file cannot be read or a row is malformed.
//
// @example
// s, err := store.Open("objects.csv", features.Dim, logger)
// if err != nil {
//     return err
// }
// defer s.Flush()
func Open(path string, dim int, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Store{
		path:       path,
		dim:        dim,
		vocabulary: make(map[string]struct{}),
		logger:     logger,
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Infow("no existing examples", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "store: opening %s", path)
	}
	defer f.Close()

	if err := s.read(f); err != nil {
		return nil, errors.Wrapf(err, "store: loading %s", path)
	}
	s.flushed = len(s.examples)
	logger.Infow("loaded examples", "path", path, "examples", len(s.examples), "labels", len(s.vocabulary))
	return s, nil
}

func (s *Store) read(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		ex, err := s.parse(record)
		if err != nil {
			return errors.Wrapf(err, "row %d", row)
		}
		s.examples = append(s.examples, ex)
		s.vocabulary[ex.Label] = struct{}{}
	}
}

func (s *Store) parse(record []string) (Example, error) {
	label := strings.TrimSpace(record[0])
	if label == "" {
		return Example{}, errors.New("empty label")
	}
	if s.dim == 0 {
		s.dim = len(record) - 1
	}
	if len(record)-1 != s.dim {
		return Example{}, errors.Wrapf(ErrDimension, "want %d values, got %d", s.dim, len(record)-1)
	}

	vec := make([]float64, s.dim)
	for i, cell := range record[1:] {
		v, err := cast.ToFloat64E(strings.TrimSpace(cell))
		if err != nil {
			return Example{}, errors.Wrapf(err, "column %d", i+2)
		}
		vec[i] = v
	}
	return Example{Label: label, Vector: vec}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Dim returns the vector dimension, 0 while still unknown.
func (s *Store) Dim() int { return s.dim }

// Len returns the number of examples.
func (s *Store) Len() int { return len(s.examples) }

// Flushed returns the number of examples already persisted.
func (s *Store) Flushed() int { return s.flushed }

// Pending returns the number of examples awaiting Flush.
func (s *Store) Pending() int { return len(s.examples) - s.flushed }

// Examples returns the examples in insertion order. The slice must not be modified.
func (s *Store) Examples() []Example { return s.examples }

// Vectors returns the example vectors in insertion order.
func (s *Store) Vectors() [][]float64 {
	return lo.Map(s.examples, func(e Example, _ int) []float64 { return e.Vector })
}

// Known reports whether label is in the vocabulary.
func (s *Store) Known(label string) bool {
	_, ok := s.vocabulary[label]
	return ok
}

// Register adds label to the vocabulary without adding an example.
func (s *Store) Register(label string) {
	s.vocabulary[label] = struct{}{}
}

// Labels returns the vocabulary in sorted order.
func (s *Store) Labels() []string {
	labels := lo.Keys(s.vocabulary)
	sort.Strings(labels)
	return labels
}

// Add appends an example and registers its label.
//
// Arguments:
//   - label: The class name. Must be non-empty and contain no newline.
//   - vec: The vector. It is copied.
//
// Returns:
//   - error: ErrDimension if vec does not match the store dimension.
func (s *Store) Add(label string, vec []float64) error {
	label = strings.TrimSpace(label)
	if label == "" || strings.ContainsAny(label, "\r\n") {
		return errors.Errorf("store: invalid label %q", label)
	}
	if s.dim == 0 {
		s.dim = len(vec)
	}
	if len(vec) != s.dim {
		return errors.Wrapf(ErrDimension, "want %d values, got %d", s.dim, len(vec))
	}

	s.examples = append(s.examples, Example{Label: label, Vector: append([]float64(nil), vec...)})
	s.vocabulary[label] = struct{}{}
	return nil
}

// Flush appends every example added since the last flush to the backing file and
// advances the flush boundary. Rows are encoded up front and written in one call, and a
// file whose last row lacks a line terminator gets one before the new rows.
//
// Returns:
//   - int: The number of rows written.
//   - error: An error if the file cannot be written. The boundary is not advanced.
func (s *Store) Flush() (int, error) {
	pending := s.examples[s.flushed:]
	if len(pending) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, ex := range pending {
		record := make([]string, 0, len(ex.Vector)+1)
		record = append(record, ex.Label)
		for _, v := range ex.Vector {
			record = append(record, cast.ToString(v))
		}
		if err := w.Write(record); err != nil {
			return 0, errors.Wrapf(err, "store: encoding %s", s.path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, errors.Wrapf(err, "store: encoding %s", s.path)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "store: opening %s for append", s.path)
	}

	unterminated, err := missingNewline(f)
	if err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "store: inspecting %s", s.path)
	}
	data := buf.Bytes()
	if unterminated {
		data = append([]byte{'\n'}, data...)
	}

	_, err = f.Write(data)
	err = multierr.Append(err, f.Close())
	if err != nil {
		return 0, errors.Wrapf(err, "store: writing %s", s.path)
	}

	s.flushed = len(s.examples)
	s.logger.Infow("flushed examples", "path", s.path, "written", len(pending), "total", s.flushed)
	return len(pending), nil
}

// missingNewline reports whether f is non-empty and its last byte is not '\n'.
func missingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
