package surface

import (
	"segcompare/internal/models"
)

// faceNeighbors are the 6-connected offsets of a voxel
var faceNeighbors = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// BoundaryPoints returns the boundary voxels of a label map as a point set in
// physical coordinates (Origin + index*VoxelSize). A boundary voxel is a
// non-zero voxel with at least one zero or out-of-grid face neighbour.
//
// It returns nil for a nil volume or one that is not a label map, so the
// result can be passed straight to the engine as an absent sample.
func BoundaryPoints(vol *models.LabelVolume) *models.SurfaceMesh {
	if vol == nil || !vol.IsLabelMap || len(vol.Data) < vol.Width*vol.Height*vol.Depth {
		return nil
	}

	spacing := vol.VoxelSize
	if spacing.X == 0 {
		spacing.X = 1
	}
	if spacing.Y == 0 {
		spacing.Y = 1
	}
	if spacing.Z == 0 {
		spacing.Z = 1
	}

	mesh := &models.SurfaceMesh{Name: vol.Name}
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.At(x, y, z) == 0 || !onBoundary(vol, x, y, z) {
					continue
				}
				mesh.Points = append(mesh.Points, models.Point3D{
					X: vol.Origin.X + float64(x)*spacing.X,
					Y: vol.Origin.Y + float64(y)*spacing.Y,
					Z: vol.Origin.Z + float64(z)*spacing.Z,
				})
			}
		}
	}
	return mesh
}

func onBoundary(vol *models.LabelVolume, x, y, z int) bool {
	for _, off := range faceNeighbors {
		nx, ny, nz := x+off[0], y+off[1], z+off[2]
		if nx < 0 || ny < 0 || nz < 0 || nx >= vol.Width || ny >= vol.Height || nz >= vol.Depth {
			return true
		}
		if vol.At(nx, ny, nz) == 0 {
			return true
		}
	}
	return false
}

// BoundaryMeshes converts every volume with BoundaryPoints, keeping absent
// slots absent
func BoundaryMeshes(volumes []*models.LabelVolume) []*models.SurfaceMesh {
	meshes := make([]*models.SurfaceMesh, len(volumes))
	for i, vol := range volumes {
		meshes[i] = BoundaryPoints(vol)
	}
	return meshes
}
