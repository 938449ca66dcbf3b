// Package overlap computes voxel overlap scores between label maps.
//
// The Dice Similarity Coefficient of two label maps A and B is
//
//	DSC = 2|A∩B| / (|A| + |B|)
//
// where |A| is the number of non-zero voxels of A and A∩B the set of grid
// coordinates that are non-zero in both. Grids are expected to be already
// co-registered; no resampling is performed.
package overlap

import (
	"context"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"

	"segcompare/internal/models"
	"segcompare/pkg/pairwise"
)

// Engine computes pairwise Dice matrices
type Engine struct {
	// Workers bounds the number of pairs computed concurrently.
	// Values below 1 use all available CPUs.
	Workers int

	logger logrus.FieldLogger
}

// NewEngine creates an overlap engine using the given number of workers
func NewEngine(workers int, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{Workers: workers, logger: logger}
}

// ComputeDice returns the N×N Dice matrix of samples. A nil entry is an
// absent sample. Conditions that make a pair not computable are encoded as
// pairwise.Sentinel; the only error returned is a context cancellation.
func (e *Engine) ComputeDice(ctx context.Context, samples []*models.LabelVolume) (*pairwise.Matrix, error) {
	// Voxel counts are accumulated once per volume, not once per pair.
	counts := make([]int, len(samples))
	for i, vol := range samples {
		counts[i] = CountVoxels(vol)
	}

	workers := e.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	m, err := pairwise.Fill(ctx, len(samples), workers, func(i, j int) pairwise.Cell {
		return diceCell(samples[i], samples[j], counts[i], counts[j], i == j)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithField("action", "compute_dice").
		WithField("samples", len(samples)).
		WithField("workers", workers).
		Debug("dice matrix computed")
	return m, nil
}

// ComputeDice computes the Dice matrix on all CPUs without logging
func ComputeDice(samples []*models.LabelVolume) *pairwise.Matrix {
	e := NewEngine(0, discardLogger())
	m, _ := e.ComputeDice(context.Background(), samples)
	return m
}

func diceCell(a, b *models.LabelVolume, countA, countB int, self bool) pairwise.Cell {
	if a == nil || b == nil {
		return pairwise.NotComputable(pairwise.Missing)
	}
	// Dice coefficient of a map with itself is total overlap
	if self {
		return pairwise.Score(1.0)
	}
	if countA < 0 || countB < 0 {
		return pairwise.NotComputable(pairwise.NotLabelMap)
	}
	if countA == 0 || countB == 0 {
		return pairwise.NotComputable(pairwise.Empty)
	}
	common := Intersection(a, b)
	if common < 0 {
		return pairwise.NotComputable(pairwise.ShapeMismatch)
	}
	return pairwise.Score(Dice(common, countA, countB))
}

// Dice returns 2*common/(countA+countB). The factor is a float constant so
// the division is never truncated.
func Dice(common, countA, countB int) float64 {
	return 2.0 * float64(common) / float64(countA+countB)
}

// CountVoxels returns the number of non-zero voxels of vol, or -1 if vol is
// nil, has no data or is not flagged as a label map.
func CountVoxels(vol *models.LabelVolume) int {
	if vol == nil || !vol.IsLabelMap || vol.Data == nil {
		return -1
	}
	n := 0
	for _, v := range vol.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Intersection returns the number of grid coordinates that are non-zero in
// both volumes, or -1 if either volume is unusable or the grids differ in
// shape.
func Intersection(a, b *models.LabelVolume) int {
	if a == nil || b == nil || a.Data == nil || b.Data == nil {
		return -1
	}
	if !a.SameGeometry(b) || len(a.Data) != len(b.Data) {
		return -1
	}
	n := 0
	for i, v := range a.Data {
		if v != 0 && b.Data[i] != 0 {
			n++
		}
	}
	return n
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
