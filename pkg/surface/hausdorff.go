// Package surface computes distances between surface point sets.
//
// The Hausdorff distance between two point sets A and B is the larger of the
// two directed distances
//
//	d(A→B) = max_{p∈A} min_{q∈B} |p - q|
//	d(B→A) = max_{q∈B} min_{p∈A} |q - p|
//
// Nearest-point queries go through a KD-tree built once per mesh.
package surface

import (
	"context"
	"io"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"

	"segcompare/internal/models"
	"segcompare/pkg/pairwise"
)

// Engine computes pairwise Hausdorff distance matrices
type Engine struct {
	// Workers bounds the number of pairs computed concurrently.
	// Values below 1 use all available CPUs.
	Workers int

	// KeepZeroDistance reports a 0.0 distance between two distinct meshes
	// as is. By default such a result is stored as pairwise.Sentinel with
	// reason pairwise.ZeroDistance.
	KeepZeroDistance bool

	logger logrus.FieldLogger
}

// NewEngine creates a surface distance engine
func NewEngine(workers int, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{Workers: workers, logger: logger}
}

// ComputeHausdorff returns the N×N symmetric Hausdorff matrix of samples.
// A nil entry is an absent sample. The only error returned is a context
// cancellation.
func (e *Engine) ComputeHausdorff(ctx context.Context, samples []*models.SurfaceMesh) (*pairwise.Matrix, error) {
	indexes := make([]*Index, len(samples))
	for i, mesh := range samples {
		if mesh != nil {
			indexes[i] = NewIndex(mesh)
		}
	}

	workers := e.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	m, err := pairwise.Fill(ctx, len(samples), workers, func(i, j int) pairwise.Cell {
		if indexes[i] == nil || indexes[j] == nil {
			return pairwise.NotComputable(pairwise.Missing)
		}
		// A mesh compared to itself has zero distance
		if i == j {
			return pairwise.Score(0.0)
		}
		if indexes[i].Len() == 0 || indexes[j].Len() == 0 {
			return pairwise.NotComputable(pairwise.Empty)
		}
		d := symmetric(indexes[i], indexes[j])
		if d == 0 && !e.KeepZeroDistance {
			return pairwise.NotComputable(pairwise.ZeroDistance)
		}
		return pairwise.Score(d)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithField("action", "compute_hausdorff").
		WithField("samples", len(samples)).
		WithField("workers", workers).
		Debug("hausdorff matrix computed")
	return m, nil
}

// ComputeHausdorff computes the Hausdorff matrix on all CPUs with the
// default zero-distance policy and no logging
func ComputeHausdorff(samples []*models.SurfaceMesh) *pairwise.Matrix {
	l := logrus.New()
	l.SetOutput(io.Discard)
	m, _ := NewEngine(0, l).ComputeHausdorff(context.Background(), samples)
	return m
}

func symmetric(a, b *Index) float64 {
	ab := directedSquared(a.source, b)
	ba := directedSquared(b.source, a)
	return math.Sqrt(math.Max(ab, ba))
}

// directedSquared keeps the search in squared distances and leaves the
// square root to the caller.
func directedSquared(from []models.Point3D, to *Index) float64 {
	max := 0.0
	for _, p := range from {
		if d := to.NearestSquared(p); d > max {
			max = d
		}
	}
	return max
}
