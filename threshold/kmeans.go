// Package threshold - Seeded 2-means color clustering.
package threshold

import (
	"github.com/muesli/clusters"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Indexes of the two clusters. Ties go to the dark cluster.
const (
	darkCluster  = 0
	lightCluster = 1
)

// SampleGrid returns the BGR values of every step-th pixel in both directions.
func SampleGrid(frame gocv.Mat, step int) ([]clusters.Coordinates, error) {
	data, err := frame.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "threshold: reading frame")
	}
	rows, cols := frame.Rows(), frame.Cols()
	samples := make([]clusters.Coordinates, 0, (rows/step+1)*(cols/step+1))
	for y := 0; y < rows; y += step {
		for x := 0; x < cols; x += step {
			i := (y*cols + x) * 3
			samples = append(samples, clusters.Coordinates{
				float64(data[i]), float64(data[i+1]), float64(data[i+2]),
			})
		}
	}
	return samples, nil
}

// TwoMeans clusters samples around a black and a white seed.
//
// Iteration stops after maxIter rounds or once both centers move by a squared
// distance of at most stop. A cluster that receives no samples gets a zero center.
//
// Arguments:
//   - samples: The color samples.
//   - maxIter: The iteration bound.
//   - stop: The squared-distance convergence tolerance.
//
// Returns:
//   - clusters.Clusters: The dark cluster at index 0 and the light cluster at index 1.
func TwoMeans(samples []clusters.Coordinates, maxIter int, stop float64) clusters.Clusters {
	cc := clusters.Clusters{
		{Center: clusters.Coordinates{0, 0, 0}},
		{Center: clusters.Coordinates{255, 255, 255}},
	}

	for i := 0; i < maxIter; i++ {
		cc.Reset()
		for _, p := range samples {
			cc[cc.Nearest(p)].Append(p)
		}

		converged := true
		for j := range cc {
			prev := cc[j].Center
			if len(cc[j].Observations) == 0 {
				cc[j].Center = clusters.Coordinates{0, 0, 0}
			} else {
				cc[j].Recenter()
			}
			if prev.Distance(cc[j].Center) > stop {
				converged = false
			}
		}
		if converged {
			break
		}
	}
	return cc
}

// cluster is the ModeClustering strategy.
func (s *Segmenter) cluster(frame gocv.Mat, dst *gocv.Mat) error {
	if !frame.IsContinuous() {
		frame = frame.Clone()
		defer frame.Close()
	}

	samples, err := SampleGrid(frame, s.config.SampleStep)
	if err != nil {
		return err
	}
	cc := TwoMeans(samples, s.config.MaxIterations, s.config.StopDistance)
	dark, light := cc[darkCluster].Center, cc[lightCluster].Center
	s.logger.Debugw("clustered frame", "dark", dark, "light", light,
		"darkSamples", len(cc[darkCluster].Observations), "lightSamples", len(cc[lightCluster].Observations))

	rows, cols := frame.Rows(), frame.Cols()
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	src, err := frame.DataPtrUint8()
	if err != nil {
		mask.Close()
		return errors.Wrap(err, "threshold: reading frame")
	}
	out, err := mask.DataPtrUint8()
	if err != nil {
		mask.Close()
		return errors.Wrap(err, "threshold: writing mask")
	}

	for i := range out {
		b, g, r := float64(src[3*i]), float64(src[3*i+1]), float64(src[3*i+2])
		dd := sq(b-dark[0]) + sq(g-dark[1]) + sq(r-dark[2])
		dl := sq(b-light[0]) + sq(g-light[1]) + sq(r-light[2])
		if dd <= dl {
			out[i] = 255
		} else {
			out[i] = 0
		}
	}

	mask.CopyTo(dst)
	mask.Close()
	return nil
}

func sq(v float64) float64 { return v * v }
