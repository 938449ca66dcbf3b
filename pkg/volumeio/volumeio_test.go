package volumeio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segcompare/internal/models"
)

func testVolume() *models.LabelVolume {
	vol := models.NewLabelVolume("seg", 4, 3, 2)
	for i := range vol.Data {
		vol.Data[i] = float64(i % 3)
	}
	vol.VoxelSize = models.Point3D{X: 0.5, Y: 0.75, Z: 2}
	vol.Origin = models.Point3D{X: -10, Y: 5, Z: 1.5}
	return vol
}

func TestNRRDRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("gzip=%v", compress), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seg.nrrd")
			vol := testVolume()
			require.NoError(t, SaveNRRD(path, vol, compress))

			loaded, err := LoadNRRD(path)
			require.NoError(t, err)
			assert.Equal(t, "seg", loaded.Name)
			assert.Equal(t, vol.Width, loaded.Width)
			assert.Equal(t, vol.Height, loaded.Height)
			assert.Equal(t, vol.Depth, loaded.Depth)
			assert.Equal(t, vol.Data, loaded.Data)
			assert.Equal(t, vol.VoxelSize, loaded.VoxelSize)
			assert.Equal(t, vol.Origin, loaded.Origin)
			assert.True(t, loaded.IsLabelMap)
		})
	}
}

func TestNRRDNonIntegralData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intensity.nrrd")
	vol := testVolume()
	vol.IsLabelMap = false
	vol.Data[0] = 0.25
	require.NoError(t, SaveNRRD(path, vol, false))

	loaded, err := LoadNRRD(path)
	require.NoError(t, err)
	assert.Equal(t, vol.Data, loaded.Data)
	assert.False(t, loaded.IsLabelMap)
}

func writeNRRD(t *testing.T, name, hdr string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, append([]byte(hdr), body...), 0644))
	return path
}

func TestLoadNRRDHandWritten(t *testing.T) {
	hdr := "NRRD0004\n" +
		"# Complete NRRD file format specification at:\n" +
		"type: unsigned short\n" +
		"dimension: 3\n" +
		"space: left-posterior-superior\n" +
		"sizes: 2 1 1\n" +
		"space directions: (0.5,0,0) (0,0.5,0) (0,0,3)\n" +
		"endian: big\n" +
		"encoding: raw\n" +
		"space origin: (1,2,3)\n" +
		"Segment0_ID:=Segment_1\n" +
		"\n"
	path := writeNRRD(t, "brain.seg.nrrd", hdr, []byte{0x01, 0x00, 0x00, 0x07})

	vol, err := LoadNRRD(path)
	require.NoError(t, err)
	assert.Equal(t, "brain", vol.Name)
	assert.Equal(t, []float64{256, 7}, vol.Data)
	assert.Equal(t, models.Point3D{X: 0.5, Y: 0.5, Z: 3}, vol.VoxelSize)
	assert.Equal(t, models.Point3D{X: 1, Y: 2, Z: 3}, vol.Origin)
	assert.True(t, vol.IsLabelMap)
}

func TestLoadNRRDLabelFileName(t *testing.T) {
	hdr := "NRRD0004\ntype: uchar\ndimension: 2\nsizes: 2 2\nencoding: raw\n\n"

	plain, err := LoadNRRD(writeNRRD(t, "t1.nrrd", hdr, []byte{0, 1, 1, 0}))
	require.NoError(t, err)
	assert.False(t, plain.IsLabelMap)
	assert.Equal(t, 1, plain.Depth)

	labeled, err := LoadNRRD(writeNRRD(t, "t1-label.nrrd", hdr, []byte{0, 1, 1, 0}))
	require.NoError(t, err)
	assert.True(t, labeled.IsLabelMap)
}

func TestLoadNRRDDetached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg.raw"), []byte{3, 0, 0, 4}, 0644))
	hdr := "NRRD0004\ntype: uint8\ndimension: 3\nsizes: 2 2 1\nencoding: raw\ndata file: seg.raw\n"
	path := filepath.Join(dir, "seg.nhdr")
	require.NoError(t, os.WriteFile(path, []byte(hdr), 0644))

	vol, err := LoadNRRD(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0, 0, 4}, vol.Data)
}

func TestLoadNRRDErrors(t *testing.T) {
	testCases := []struct {
		name string
		hdr  string
		body []byte
	}{
		{"no magic", "P5\n2 2\n", nil},
		{"bad type", "NRRD0004\ntype: block\nsizes: 1 1 1\nencoding: raw\n\n", []byte{0}},
		{"bad encoding", "NRRD0004\ntype: uchar\nsizes: 1 1 1\nencoding: bzip2\n\n", []byte{0}},
		{"four dims", "NRRD0004\ntype: uchar\nsizes: 1 1 1 1\nencoding: raw\n\n", []byte{0}},
		{"truncated", "NRRD0004\ntype: short\nsizes: 2 2 2\nencoding: raw\n\n", []byte{0, 1}},
		{"malformed line", "NRRD0004\ntype uchar\n\n", nil},
		{"overflowing sizes", "NRRD0004\ntype: uchar\nsizes: 4000000000 4000000000 4000000000\nencoding: raw\n\n", []byte{0}},
		{"negative size", "NRRD0004\ntype: uchar\nsizes: 2 -2 1\nencoding: raw\n\n", []byte{0, 0, 0, 0}},
		{"raw larger than file", "NRRD0004\ntype: uchar\nsizes: 1000 1000 1000\nencoding: raw\n\n", []byte{0, 1, 2}},
		{"gzip larger than file", "NRRD0004\ntype: short\nsizes: 1000 1000 1000\nencoding: gzip\n\n", []byte{0x1f, 0x8b}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadNRRD(writeNRRD(t, "bad.nrrd", tc.hdr, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadNRRDUnknownOrigin(t *testing.T) {
	hdr := "NRRD0004\ntype: uchar\nsizes: 1 1 1\nencoding: raw\nspace origin: (nan,nan,nan)\n\n"
	vol, err := LoadNRRD(writeNRRD(t, "origin.nrrd", hdr, []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, models.Point3D{}, vol.Origin)
}

func writeImage(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeSlice(t *testing.T, dir, name string, w, h int, label func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: label(x, y)})
		}
	}
	writeImage(t, dir, name, img)
}

func TestLoadSliceDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "liver")
	require.NoError(t, os.MkdirAll(dir, 0755))

	// Written out of order; slice_10 must end up last
	writeSlice(t, dir, "slice_10.png", 3, 2, func(x, y int) uint8 { return 2 })
	writeSlice(t, dir, "slice_2.png", 3, 2, func(x, y int) uint8 {
		if x == 1 {
			return 1
		}
		return 0
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	vol, err := LoadSliceDir(dir, 2.5)
	require.NoError(t, err)
	assert.Equal(t, "liver", vol.Name)
	assert.Equal(t, 3, vol.Width)
	assert.Equal(t, 2, vol.Height)
	assert.Equal(t, 2, vol.Depth)
	assert.Equal(t, 2.5, vol.VoxelSize.Z)
	assert.True(t, vol.IsLabelMap)
	assert.Equal(t, 1.0, vol.At(1, 0, 0))
	assert.Equal(t, 0.0, vol.At(0, 0, 0))
	assert.Equal(t, 2.0, vol.At(0, 1, 1))
}

func TestLoadSliceDirSixteenBit(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray16(image.Rect(0, 0, 3, 1))
	img.SetGray16(1, 0, color.Gray16{Y: 1})
	img.SetGray16(2, 0, color.Gray16{Y: 300})
	writeImage(t, dir, "1.png", img)

	vol, err := LoadSliceDir(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 300}, vol.Data)
}

func TestLoadSliceDirColour(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 5, 1))
	for x := 0; x < 5; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{A: 255})
	}
	img.SetNRGBA(1, 0, color.NRGBA{R: 9, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{G: 200, A: 255})
	img.SetNRGBA(3, 0, color.NRGBA{B: 50, A: 255})
	img.SetNRGBA(4, 0, color.NRGBA{R: 7, G: 7, B: 7, A: 255})
	writeImage(t, dir, "1.png", img)

	vol, err := LoadSliceDir(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 9 << 16, 200 << 8, 50, 7}, vol.Data)
}

func TestLoadSliceDirPaletted(t *testing.T) {
	dir := t.TempDir()
	palette := color.Palette{color.Black, color.RGBA{R: 255, A: 255}, color.RGBA{G: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, 3, 1), palette)
	img.SetColorIndex(1, 0, 2)
	img.SetColorIndex(2, 0, 1)
	writeImage(t, dir, "1.png", img)

	vol, err := LoadSliceDir(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 1}, vol.Data)
}

func TestLoadSliceDirErrors(t *testing.T) {
	empty := t.TempDir()
	_, err := LoadSliceDir(empty, 1)
	assert.Error(t, err)

	mixed := t.TempDir()
	writeSlice(t, mixed, "1.png", 2, 2, func(x, y int) uint8 { return 1 })
	writeSlice(t, mixed, "2.png", 3, 2, func(x, y int) uint8 { return 1 })
	_, err = LoadSliceDir(mixed, 1)
	assert.Error(t, err)
}

func TestExtractNumber(t *testing.T) {
	testCases := []struct {
		filename string
		expected int
	}{
		{"slice_1.png", 1},
		{"slice_023.jpg", 23},
		{"img456.png", 456},
		{"not_a_number.png", 0},
		{"mixed123text456.png", 123456},
	}

	for _, tc := range testCases {
		result := extractNumber(tc.filename)
		if result != tc.expected {
			t.Errorf("extractNumber(%s): expected %d, got %d", tc.filename, tc.expected, result)
		}
	}
}

func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t1.nrrd")
	vol := testVolume()
	vol.IsLabelMap = false
	require.NoError(t, SaveNRRD(path, vol, false))

	loaded, err := Load(path, Options{})
	require.NoError(t, err)
	assert.False(t, loaded.IsLabelMap)

	loaded, err = Load(path, Options{AssumeLabelMap: true})
	require.NoError(t, err)
	assert.True(t, loaded.IsLabelMap)

	_, err = Load(filepath.Join(dir, "scan.mha"), Options{})
	assert.Error(t, err)

	other := filepath.Join(dir, "scan.mha")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	_, err = Load(other, Options{})
	assert.Error(t, err)
}
