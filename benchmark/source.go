package benchmark

import (
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/util"
)

// corpusSource decodes encoded frames on every read, replaying the corpus
// passes times. Frames that fail to decode are counted and skipped.
type corpusSource struct {
	corpus   []util.ImageFile
	passes   int
	next     int
	failures int
	logger   *zap.SugaredLogger
}

func newCorpusSource(corpus []util.ImageFile, passes int, logger *zap.SugaredLogger) *corpusSource {
	if passes <= 0 {
		passes = 1
	}
	return &corpusSource{corpus: corpus, passes: passes, logger: logger}
}

// attempts is the number of frames read so far, failed decodes included.
func (s *corpusSource) attempts() int { return s.next }

func (s *corpusSource) Read(dst *gocv.Mat) bool {
	for s.next < len(s.corpus)*s.passes {
		f := s.corpus[s.next%len(s.corpus)]
		s.next++

		mat, err := images.DecodeFrame(f.Data, f.Format)
		if err != nil {
			mat.Close()
			s.failures++
			s.logger.Warnw("skipping frame", "frame", f.Frame, "error", err)
			continue
		}
		mat.CopyTo(dst)
		mat.Close()
		return true
	}
	return false
}

func (s *corpusSource) Close() error { return nil }

// transcode re-encodes every frame of corpus in format.
func transcode(corpus []util.ImageFile, format images.ImageFormat) ([]util.ImageFile, error) {
	out := make([]util.ImageFile, 0, len(corpus))
	for _, f := range corpus {
		if f.Format == format {
			out = append(out, f)
			continue
		}
		mat, err := images.DecodeFrame(f.Data, f.Format)
		if err != nil {
			mat.Close()
			return nil, err
		}
		data, err := images.EncodeFrame(mat, format)
		mat.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, util.ImageFile{
			Path:   f.Path,
			Data:   data,
			Frame:  f.Frame,
			Format: format,
		})
	}
	return out, nil
}
