package volumeio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"segcompare/internal/models"
)

// Options control how volumes are interpreted
type Options struct {
	// AssumeLabelMap flags every loaded volume as a label map
	AssumeLabelMap bool

	// SliceGap is the z spacing in mm for slice directories
	SliceGap float64
}

// Load reads a label volume from a NRRD file or a slice directory
func Load(path string, opts Options) (*models.LabelVolume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	var vol *models.LabelVolume
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		vol, err = LoadSliceDir(path, opts.SliceGap)
	case ext == ".nrrd" || ext == ".nhdr":
		vol, err = LoadNRRD(path)
	default:
		return nil, errors.Errorf("unsupported volume format %q for %s", ext, path)
	}
	if err != nil {
		return nil, err
	}
	if opts.AssumeLabelMap {
		vol.IsLabelMap = true
	}
	return vol, nil
}
