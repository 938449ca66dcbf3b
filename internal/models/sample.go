package models

// LabelVolume represents a 3D segmentation grid to be compared against others
type LabelVolume struct {
	// Name identifies the sample in reports (usually the source filename)
	Name string

	// Data is the 3D voxel data as a 1D array in row-major order
	// (index = z*Width*Height + y*Width + x)
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// IsLabelMap marks the voxel values as discrete segment identifiers.
	// Only label maps take part in overlap computation.
	IsLabelMap bool

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize Point3D

	// Origin is the physical position of voxel (0,0,0) in mm
	Origin Point3D
}

// NewLabelVolume allocates an empty label map with unit voxel spacing
func NewLabelVolume(name string, width, height, depth int) *LabelVolume {
	return &LabelVolume{
		Name:       name,
		Data:       make([]float64, width*height*depth),
		Width:      width,
		Height:     height,
		Depth:      depth,
		IsLabelMap: true,
		VoxelSize:  Point3D{X: 1, Y: 1, Z: 1},
	}
}

// Index returns the flat offset of the voxel at (x, y, z)
func (v *LabelVolume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel value at (x, y, z)
func (v *LabelVolume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a voxel value at (x, y, z)
func (v *LabelVolume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// SameGeometry reports whether two volumes share grid dimensions
func (v *LabelVolume) SameGeometry(o *LabelVolume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Point3D represents a 3D point in physical space
type Point3D struct {
	X, Y, Z float64
}

// SurfaceMesh is the point set of a surface model. Connectivity is not kept,
// distance computation only needs the vertices.
type SurfaceMesh struct {
	// Name identifies the sample in reports
	Name string

	// Points are the mesh vertices
	Points []Point3D
}
