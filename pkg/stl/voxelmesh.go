package stl

import (
	"segcompare/internal/models"
)

// voxelFace describes one face of the unit voxel cube: the neighbour offset
// it faces and its four corners in counter-clockwise order seen from outside.
type voxelFace struct {
	offset  [3]int
	corners [4][3]float32
}

var voxelFaces = [6]voxelFace{
	{[3]int{-1, 0, 0}, [4][3]float32{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]int{1, 0, 0}, [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]int{0, -1, 0}, [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]int{0, 1, 0}, [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]int{0, 0, -1}, [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
	{[3]int{0, 0, 1}, [4][3]float32{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
}

// VoxelSurface builds a closed triangle surface around the non-zero voxels
// of vol. Every voxel face bordering a zero or out-of-grid voxel becomes two
// triangles, scaled by VoxelSize and shifted by Origin. Volumes that are not
// label maps produce no triangles.
func VoxelSurface(vol *models.LabelVolume) []Triangle {
	if vol == nil || !vol.IsLabelMap {
		return nil
	}
	sx, sy, sz := float32(vol.VoxelSize.X), float32(vol.VoxelSize.Y), float32(vol.VoxelSize.Z)
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	if sz == 0 {
		sz = 1
	}
	ox, oy, oz := float32(vol.Origin.X), float32(vol.Origin.Y), float32(vol.Origin.Z)

	filled := func(x, y, z int) bool {
		if x < 0 || y < 0 || z < 0 || x >= vol.Width || y >= vol.Height || z >= vol.Depth {
			return false
		}
		return vol.At(x, y, z) != 0
	}

	var triangles []Triangle
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if !filled(x, y, z) {
					continue
				}
				for _, face := range voxelFaces {
					if filled(x+face.offset[0], y+face.offset[1], z+face.offset[2]) {
						continue
					}
					var c [4][3]float32
					for k, corner := range face.corners {
						c[k] = [3]float32{
							ox + (float32(x)+corner[0])*sx,
							oy + (float32(y)+corner[1])*sy,
							oz + (float32(z)+corner[2])*sz,
						}
					}
					normal := [3]float32{float32(face.offset[0]), float32(face.offset[1]), float32(face.offset[2])}
					triangles = append(triangles,
						Triangle{Normal: normal, Vertex1: c[0], Vertex2: c[1], Vertex3: c[2]},
						Triangle{Normal: normal, Vertex1: c[0], Vertex2: c[2], Vertex3: c[3]},
					)
				}
			}
		}
	}
	return triangles
}
