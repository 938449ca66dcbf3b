package volumeio

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"segcompare/internal/models"
)

// LoadSliceDir builds a label map from a directory of 2D slice images
// (PNG or JPEG), one image per z position. Files are ordered by the number
// embedded in their names. Zero pixels are background and any other value
// is a segment label (see labelValue).
//
// JPEG compression blurs label boundaries; PNG slices are preferred.
func LoadSliceDir(dir string, sliceGap float64) (*models.LabelVolume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read slice directory %s", dir)
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, errors.Errorf("no PNG or JPEG slices found in %s", dir)
	}

	// Keep anatomical order: slice_2 comes before slice_10
	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	var vol *models.LabelVolume
	for z, name := range imageFiles {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "load slice %s", name)
		}
		bounds := img.Bounds()
		if vol == nil {
			vol = models.NewLabelVolume(filepath.Base(filepath.Clean(dir)), bounds.Dx(), bounds.Dy(), len(imageFiles))
			if sliceGap > 0 {
				vol.VoxelSize.Z = sliceGap
			}
		} else if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			return nil, errors.Errorf("slice %s is %dx%d, expected %dx%d",
				name, bounds.Dx(), bounds.Dy(), vol.Width, vol.Height)
		}

		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				vol.Set(x, y, z, labelValue(img, bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	}
	return vol, nil
}

// labelValue reads the segment label stored at (x, y). Gray and paletted
// images keep their raw value or palette index, so 16-bit label maps keep
// labels above 255. Colour pixels pack their 8-bit channels into one label,
// which is non-zero whenever any channel is.
func labelValue(img image.Image, x, y int) float64 {
	switch m := img.(type) {
	case *image.Gray16:
		return float64(m.Gray16At(x, y).Y)
	case *image.Gray:
		return float64(m.GrayAt(x, y).Y)
	case *image.Paletted:
		return float64(m.ColorIndexAt(x, y))
	}
	r, g, b, _ := img.At(x, y).RGBA()
	r, g, b = r>>8, g>>8, b>>8
	if r == g && g == b {
		return float64(r)
	}
	return float64(r<<16 | g<<8 | b)
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// loadImage decodes a PNG or JPEG file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}
