// Package config provides configuration loading and management for segcompare.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"segcompare/pkg/stats"
)

// Metric names accepted in configuration files
const (
	MetricDice      = "dice"
	MetricHausdorff = "hausdorff"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many pairs are computed concurrently
		NumCores int `yaml:"numCores"`

		// Metric is either "dice" (label maps) or "hausdorff" (surfaces)
		Metric string `yaml:"metric"`

		// FailOnLoadError aborts the run when a sample cannot be read.
		// When false the sample is logged and treated as absent.
		FailOnLoadError bool `yaml:"failOnLoadError"`

		// SliceGap is the z spacing in mm given to image slice directories
		SliceGap float64 `yaml:"sliceGap"`
	} `yaml:"processing"`

	// Statistics toggles the per-sample statistics rows. A statistics
	// section in a file replaces the defaults, so unlisted rows are off.
	Statistics stats.Selection `yaml:"statistics"`

	// Hausdorff distance parameters
	Hausdorff struct {
		// KeepZeroDistance reports 0.0 between distinct coinciding surfaces
		// instead of the not-computable sentinel
		KeepZeroDistance bool `yaml:"keepZeroDistance"`

		// SurfaceFromLabels extracts boundary points from label map inputs
		SurfaceFromLabels bool `yaml:"surfaceFromLabels"`
	} `yaml:"hausdorff"`

	// Input parameters
	Input struct {
		// AssumeLabelMap flags every loaded volume as a label map
		AssumeLabelMap bool `yaml:"assumeLabelMap"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// CSV is the path of the score matrix CSV, empty to skip
		CSV string `yaml:"csv"`

		// StatsCSV is the path of the statistics CSV, empty to skip
		StatsCSV string `yaml:"statsCsv"`

		// JSON is the path of the JSON report, empty to skip
		JSON string `yaml:"json"`

		// SentinelText is written in place of not-computable cells
		SentinelText string `yaml:"sentinelText"`

		// Precision is the number of decimals written for scores
		Precision int `yaml:"precision"`

		// ExportDir receives each loaded label volume as NRRD and STL, empty to skip
		ExportDir string `yaml:"exportDir"`

		// MetricsFile receives Prometheus metrics in text format, empty to skip
		MetricsFile string `yaml:"metricsFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Metric = MetricDice
	cfg.Processing.FailOnLoadError = true
	cfg.Processing.SliceGap = 1.0

	cfg.Statistics = stats.All()

	cfg.Hausdorff.KeepZeroDistance = false
	cfg.Hausdorff.SurfaceFromLabels = false

	cfg.Input.AssumeLabelMap = false

	cfg.Output.SentinelText = "NA"
	cfg.Output.Precision = 3
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Processing.Metric {
	case MetricDice, MetricHausdorff:
	default:
		return fmt.Errorf("unknown metric %q (must be %s or %s)", c.Processing.Metric, MetricDice, MetricHausdorff)
	}
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("numCores must be non-negative, got %d", c.Processing.NumCores)
	}
	if !(c.Processing.SliceGap > 0) {
		return fmt.Errorf("sliceGap must be positive, got %v", c.Processing.SliceGap)
	}
	if c.Output.Precision < 0 || c.Output.Precision > 17 {
		return fmt.Errorf("precision must be between 0 and 17, got %d", c.Output.Precision)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var sections struct {
		Statistics *yaml.Node `yaml:"statistics"`
	}
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if sections.Statistics != nil {
		cfg.Statistics = stats.Selection{}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
