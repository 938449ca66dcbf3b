package surface

import (
	"context"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segcompare/internal/models"
	"segcompare/pkg/pairwise"
)

// cube returns the 8 corners of a unit cube shifted by offset
func cube(name string, offset models.Point3D) *models.SurfaceMesh {
	mesh := &models.SurfaceMesh{Name: name}
	for _, x := range []float64{0, 1} {
		for _, y := range []float64{0, 1} {
			for _, z := range []float64{0, 1} {
				mesh.Points = append(mesh.Points, models.Point3D{
					X: x + offset.X, Y: y + offset.Y, Z: z + offset.Z,
				})
			}
		}
	}
	return mesh
}

// hausdorff measures two meshes directly, without the matrix engine
func hausdorff(a, b *models.SurfaceMesh) float64 {
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return math.Inf(1)
	}
	return symmetric(NewIndex(a), NewIndex(b))
}

func directed(a, b *models.SurfaceMesh) float64 {
	return math.Sqrt(directedSquared(a.Points, NewIndex(b)))
}

func TestHausdorffShiftedCube(t *testing.T) {
	a := cube("a", models.Point3D{})
	b := cube("b", models.Point3D{X: 1})

	m := ComputeHausdorff([]*models.SurfaceMesh{a, b})
	if math.Abs(m.At(0, 1)-1.0) > 1e-12 {
		t.Errorf("Expected 1.0, got %v", m.At(0, 1))
	}
	assert.Equal(t, m.At(0, 1), m.At(1, 0))
	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(1, 1))
	assert.InDelta(t, 1.0, hausdorff(a, b), 1e-12)
}

func TestHausdorffAsymmetricSets(t *testing.T) {
	// Every point of a lies on b, but b reaches 3 units further
	a := &models.SurfaceMesh{Points: []models.Point3D{{X: 0}, {X: 1}}}
	b := &models.SurfaceMesh{Points: []models.Point3D{{X: 0}, {X: 1}, {X: 4}}}

	assert.Equal(t, 0.0, directed(a, b))
	assert.Equal(t, 3.0, directed(b, a))
	assert.Equal(t, 3.0, hausdorff(a, b))
	assert.Equal(t, 3.0, hausdorff(b, a))
}

func TestHausdorffMissingAndEmpty(t *testing.T) {
	empty := &models.SurfaceMesh{Name: "empty"}
	m := ComputeHausdorff([]*models.SurfaceMesh{cube("a", models.Point3D{}), nil, empty})

	for k := 0; k < 3; k++ {
		assert.Equal(t, pairwise.Sentinel, m.At(1, k))
		assert.Equal(t, pairwise.Missing, m.Reason(k, 1))
	}
	assert.Equal(t, pairwise.Sentinel, m.At(0, 2))
	assert.Equal(t, pairwise.Empty, m.Reason(0, 2))
	assert.Equal(t, 0.0, m.At(2, 2))
	assert.True(t, math.IsInf(hausdorff(empty, cube("a", models.Point3D{})), 1))
}

func TestHausdorffZeroDistance(t *testing.T) {
	samples := []*models.SurfaceMesh{cube("a", models.Point3D{}), cube("copy", models.Point3D{})}

	m := ComputeHausdorff(samples)
	assert.Equal(t, pairwise.Sentinel, m.At(0, 1))
	assert.Equal(t, pairwise.ZeroDistance, m.Reason(0, 1))

	logger, _ := test.NewNullLogger()
	e := NewEngine(2, logger)
	e.KeepZeroDistance = true
	m, err := e.ComputeHausdorff(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, pairwise.Valid, m.Reason(0, 1))
}

func TestHausdorffWorkerIndependence(t *testing.T) {
	var samples []*models.SurfaceMesh
	for k := 0; k < 6; k++ {
		samples = append(samples, cube("", models.Point3D{X: float64(k) * 0.5, Y: float64(k%2) * 2}))
	}
	logger, _ := test.NewNullLogger()

	one, err := NewEngine(1, logger).ComputeHausdorff(context.Background(), samples)
	require.NoError(t, err)
	many, err := NewEngine(8, logger).ComputeHausdorff(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, one.Rows(), many.Rows())
	assert.Equal(t, one.Counts(), many.Counts())

	for i := 0; i < one.Size(); i++ {
		for j := 0; j < one.Size(); j++ {
			if i != j && one.At(i, j) <= 0 {
				t.Errorf("Expected positive distance at (%d,%d), got %v", i, j, one.At(i, j))
			}
		}
	}
}

func TestIndexNearestSquared(t *testing.T) {
	mesh := cube("a", models.Point3D{})
	idx := NewIndex(mesh)
	assert.Equal(t, 8, idx.Len())

	// Closest corner is (1,1,0)
	d := idx.NearestSquared(models.Point3D{X: 1.2, Y: 0.9, Z: -0.5})
	assert.InDelta(t, 0.04+0.01+0.25, d, 1e-12)

	// Building the tree must not reorder the caller's points
	assert.Equal(t, cube("a", models.Point3D{}).Points, mesh.Points)

	empty := NewIndex(nil)
	assert.Equal(t, 0, empty.Len())
	assert.True(t, math.IsInf(empty.NearestSquared(models.Point3D{}), 1))
}

func TestBoundaryPoints(t *testing.T) {
	vol := models.NewLabelVolume("solid", 5, 5, 5)
	for z := 1; z <= 3; z++ {
		for y := 1; y <= 3; y++ {
			for x := 1; x <= 3; x++ {
				vol.Set(x, y, z, 1)
			}
		}
	}

	mesh := BoundaryPoints(vol)
	require.NotNil(t, mesh)
	assert.Equal(t, "solid", mesh.Name)
	// The 3x3x3 block has a single interior voxel
	assert.Len(t, mesh.Points, 26)
	for _, p := range mesh.Points {
		assert.NotEqual(t, models.Point3D{X: 2, Y: 2, Z: 2}, p)
	}
}

func TestBoundaryPointsPhysical(t *testing.T) {
	vol := models.NewLabelVolume("", 3, 1, 1)
	vol.Set(2, 0, 0, 4)
	vol.VoxelSize = models.Point3D{X: 0.5, Y: 2, Z: 0}
	vol.Origin = models.Point3D{X: 10, Y: -1, Z: 3}

	mesh := BoundaryPoints(vol)
	require.NotNil(t, mesh)
	assert.Equal(t, []models.Point3D{{X: 11, Y: -1, Z: 3}}, mesh.Points)

	vol.IsLabelMap = false
	assert.Nil(t, BoundaryPoints(vol))
	assert.Nil(t, BoundaryPoints(nil))

	meshes := BoundaryMeshes([]*models.LabelVolume{nil, models.NewLabelVolume("blank", 2, 2, 2)})
	assert.Nil(t, meshes[0])
	require.NotNil(t, meshes[1])
	assert.Empty(t, meshes[1].Points)
}
