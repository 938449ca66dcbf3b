// Package comparison runs one pairwise comparison: it loads the selected
// samples, fills the score matrix with the engine for the chosen metric and
// derives the statistics table.
package comparison

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"segcompare/internal/models"
	"segcompare/pkg/config"
	"segcompare/pkg/metrics"
	"segcompare/pkg/overlap"
	"segcompare/pkg/pairwise"
	"segcompare/pkg/stats"
	"segcompare/pkg/stl"
	"segcompare/pkg/surface"
	"segcompare/pkg/volumeio"
)

// ErrInsufficientSamples is returned when fewer than two slots hold a sample
var ErrInsufficientSamples = errors.New("at least two samples are required for a comparison")

// AbsentPath marks an empty slot in the sample list
const AbsentPath = "-"

// Params holds the comparison parameters
type Params struct {
	// Paths lists the sample slots in matrix order. An empty string or
	// AbsentPath leaves the slot without a sample.
	Paths []string

	// Metric is config.MetricDice or config.MetricHausdorff
	Metric string

	// NumCores bounds the number of pairs computed concurrently
	NumCores int

	// FailOnLoadError aborts on the first unreadable sample. Otherwise the
	// sample is logged and its slot treated as absent.
	FailOnLoadError bool

	// AssumeLabelMap flags every loaded volume as a label map
	AssumeLabelMap bool

	// SliceGap is the z spacing in mm for slice directory inputs
	SliceGap float64

	// SurfaceFromLabels lets the Hausdorff metric read label volumes and
	// compare their boundary voxels
	SurfaceFromLabels bool

	// KeepZeroDistance keeps 0.0 Hausdorff distances between distinct samples
	KeepZeroDistance bool

	// Statistics selects the rows of the statistics table
	Statistics stats.Selection

	// ExportDir receives every loaded label volume as NRRD plus its voxel
	// surface as STL. Empty disables the export.
	ExportDir string
}

// ParamsFromConfig builds comparison parameters from a loaded configuration
func ParamsFromConfig(cfg *config.Config, paths []string) *Params {
	return &Params{
		Paths:             paths,
		Metric:            cfg.Processing.Metric,
		NumCores:          cfg.Processing.NumCores,
		FailOnLoadError:   cfg.Processing.FailOnLoadError,
		AssumeLabelMap:    cfg.Input.AssumeLabelMap,
		SliceGap:          cfg.Processing.SliceGap,
		SurfaceFromLabels: cfg.Hausdorff.SurfaceFromLabels,
		KeepZeroDistance:  cfg.Hausdorff.KeepZeroDistance,
		Statistics:        cfg.Statistics,
		ExportDir:         cfg.Output.ExportDir,
	}
}

// Result is the outcome of one comparison run
type Result struct {
	RunID  string
	Metric string

	// Names holds one label per slot, empty for absent samples
	Names []string

	// Present is the number of slots that held a sample
	Present int

	Matrix *pairwise.Matrix
	Stats  *stats.Table

	LoadDuration    time.Duration
	ComputeDuration time.Duration
}

// Comparator drives a single comparison run
type Comparator struct {
	params  *Params
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewComparator creates a comparator. m may be nil to skip metrics.
func NewComparator(params *Params, logger logrus.FieldLogger, m *metrics.Metrics) *Comparator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Comparator{params: params, logger: logger, metrics: m}
}

// Process loads the samples and computes the score matrix and statistics
func (c *Comparator) Process(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:  uuid.New().String(),
		Metric: c.params.Metric,
		Names:  make([]string, len(c.params.Paths)),
	}
	logger := c.logger.WithField("run_id", res.RunID).WithField("metric", res.Metric)

	start := time.Now()
	var err error
	switch c.params.Metric {
	case config.MetricDice:
		err = c.runDice(ctx, logger, res)
	case config.MetricHausdorff:
		err = c.runHausdorff(ctx, logger, res)
	default:
		return nil, errors.Errorf("unknown metric %q", c.params.Metric)
	}
	if err != nil {
		return nil, err
	}

	res.Stats = stats.NewTable(res.Matrix, c.params.Statistics)
	c.metrics.Observe(res.Metric, res.Matrix, res.Present, res.ComputeDuration)

	counts := res.Matrix.Counts()
	logger.WithField("action", "compare").
		WithField("samples", res.Present).
		WithField("valid_pairs", counts[pairwise.Valid]).
		WithField("took", time.Since(start)).
		Info("comparison finished")
	return res, nil
}

func (c *Comparator) runDice(ctx context.Context, logger logrus.FieldLogger, res *Result) error {
	loadStart := time.Now()
	volumes := make([]*models.LabelVolume, len(c.params.Paths))
	err := c.loadAll(ctx, logger, func(i int, path string) error {
		if isMeshPath(path) {
			return errors.Errorf("%s is a surface mesh; dice needs label volumes", path)
		}
		vol, err := volumeio.Load(path, c.volumeOptions())
		if err != nil {
			return err
		}
		volumes[i] = vol
		res.Names[i] = vol.Name
		return nil
	})
	if err != nil {
		return err
	}
	res.LoadDuration = time.Since(loadStart)

	if err := c.exportSamples(logger, volumes); err != nil {
		return err
	}
	for _, vol := range volumes {
		if vol != nil {
			res.Present++
		}
	}
	if err := checkPresent(logger, res.Present); err != nil {
		return err
	}

	computeStart := time.Now()
	m, err := overlap.NewEngine(c.params.NumCores, logger).ComputeDice(ctx, volumes)
	if err != nil {
		return err
	}
	res.ComputeDuration = time.Since(computeStart)
	res.Matrix = m
	return nil
}

func (c *Comparator) runHausdorff(ctx context.Context, logger logrus.FieldLogger, res *Result) error {
	loadStart := time.Now()
	meshes := make([]*models.SurfaceMesh, len(c.params.Paths))
	volumes := make([]*models.LabelVolume, len(c.params.Paths))
	err := c.loadAll(ctx, logger, func(i int, path string) error {
		if isMeshPath(path) {
			mesh, err := stl.LoadMesh(path)
			if err != nil {
				return err
			}
			meshes[i] = mesh
			res.Names[i] = mesh.Name
			return nil
		}

		if !c.params.SurfaceFromLabels {
			return errors.Errorf("%s is not an STL mesh; enable surfaceFromLabels to compare label volumes", path)
		}
		vol, err := volumeio.Load(path, c.volumeOptions())
		if err != nil {
			return err
		}
		volumes[i] = vol
		res.Names[i] = vol.Name
		return nil
	})
	if err != nil {
		return err
	}

	// Label volumes are compared through their boundary voxels; volumes
	// that are not label maps have no boundary and stay absent
	for i, mesh := range surface.BoundaryMeshes(volumes) {
		if volumes[i] == nil {
			continue
		}
		if mesh == nil {
			logger.WithField("action", "load_sample").
				WithField("path", c.params.Paths[i]).
				Warn("volume is not a label map, slot left empty")
		}
		meshes[i] = mesh
	}
	res.LoadDuration = time.Since(loadStart)

	if err := c.exportSamples(logger, volumes); err != nil {
		return err
	}
	for _, mesh := range meshes {
		if mesh != nil {
			res.Present++
		}
	}
	if err := checkPresent(logger, res.Present); err != nil {
		return err
	}

	computeStart := time.Now()
	engine := surface.NewEngine(c.params.NumCores, logger)
	engine.KeepZeroDistance = c.params.KeepZeroDistance
	m, err := engine.ComputeHausdorff(ctx, meshes)
	if err != nil {
		return err
	}
	res.ComputeDuration = time.Since(computeStart)
	res.Matrix = m
	return nil
}

// exportSamples writes each loaded volume to ExportDir as <slot>_<name>.nrrd
// and, for label maps, its voxel surface as <slot>_<name>.stl
func (c *Comparator) exportSamples(logger logrus.FieldLogger, volumes []*models.LabelVolume) error {
	if c.params.ExportDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.params.ExportDir, 0755); err != nil {
		return errors.Wrapf(err, "create export directory %s", c.params.ExportDir)
	}
	for i, vol := range volumes {
		if vol == nil {
			continue
		}
		name := vol.Name
		if name == "" {
			name = "sample"
		}
		base := filepath.Join(c.params.ExportDir, fmt.Sprintf("%d_%s", i+1, name))

		if err := volumeio.SaveNRRD(base+".nrrd", vol, true); err != nil {
			return err
		}
		triangles := stl.VoxelSurface(vol)
		if triangles != nil {
			if err := stl.SaveToSTL(base+".stl", triangles); err != nil {
				return err
			}
		}
		logger.WithField("action", "export_sample").
			WithField("path", base).
			WithField("triangles", len(triangles)).
			Debug("sample exported")
	}
	return nil
}

// loadAll calls load for every non-absent slot, at most NumCores at a time
func (c *Comparator) loadAll(ctx context.Context, logger logrus.FieldLogger, load func(i int, path string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if c.params.NumCores > 0 {
		g.SetLimit(c.params.NumCores)
	}
	for i, path := range c.params.Paths {
		if IsAbsent(path) {
			continue
		}
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := load(i, path)
			if err == nil {
				return nil
			}
			if c.params.FailOnLoadError {
				return errors.Wrapf(err, "load sample %d", i+1)
			}
			logger.WithField("action", "load_sample").
				WithField("path", path).
				WithError(err).
				Warn("sample could not be loaded, slot left empty")
			return nil
		})
	}
	return g.Wait()
}

func (c *Comparator) volumeOptions() volumeio.Options {
	return volumeio.Options{AssumeLabelMap: c.params.AssumeLabelMap, SliceGap: c.params.SliceGap}
}

func checkPresent(logger logrus.FieldLogger, present int) error {
	if present < 2 {
		logger.WithField("samples", present).Error(ErrInsufficientSamples.Error())
		return ErrInsufficientSamples
	}
	return nil
}

// IsAbsent reports whether a sample path marks an empty slot
func IsAbsent(path string) bool {
	path = strings.TrimSpace(path)
	return path == "" || path == AbsentPath
}

func isMeshPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".stl")
}

// Summary is a one-line description of a result for console output
func (r *Result) Summary() string {
	counts := r.Matrix.Counts()
	return fmt.Sprintf("%s: %d of %d samples present, %d valid pairs, %d not computable (load %v, compute %v)",
		r.Metric, r.Present, len(r.Names), counts[pairwise.Valid],
		r.Matrix.Size()*(r.Matrix.Size()+1)/2-counts[pairwise.Valid],
		r.LoadDuration.Round(time.Millisecond), r.ComputeDuration.Round(time.Millisecond))
}
