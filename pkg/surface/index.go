package surface

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"segcompare/internal/models"
)

// point wraps models.Point3D to implement kdtree.Comparable
type point models.Point3D

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// points is a collection of point that satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for points
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// Index answers nearest-point queries over one mesh. It is read-only once
// built and safe for concurrent queries.
type Index struct {
	source []models.Point3D
	tree   *kdtree.Tree
}

// NewIndex builds a KD-tree over mesh points. The mesh itself is not
// reordered.
func NewIndex(mesh *models.SurfaceMesh) *Index {
	idx := &Index{}
	if mesh == nil {
		return idx
	}
	idx.source = mesh.Points
	if len(mesh.Points) == 0 {
		return idx
	}
	pts := make(points, len(mesh.Points))
	for i, p := range mesh.Points {
		pts[i] = point(p)
	}
	idx.tree = kdtree.New(pts, false)
	return idx
}

// Len returns the number of indexed points
func (idx *Index) Len() int {
	return len(idx.source)
}

// NearestSquared returns the squared distance from q to the closest indexed
// point, or +Inf for an empty index.
func (idx *Index) NearestSquared(q models.Point3D) float64 {
	if idx.tree == nil {
		return math.Inf(1)
	}
	_, d := idx.tree.Nearest(point(q))
	return d
}
