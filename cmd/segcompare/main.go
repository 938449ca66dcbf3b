package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"segcompare/pkg/comparison"
	"segcompare/pkg/config"
	"segcompare/pkg/metrics"
	"segcompare/pkg/report"
	"segcompare/pkg/stats"
)

type options struct {
	Config            string  `short:"c" long:"config" description:"YAML configuration file"`
	InitConfig        bool    `long:"init-config" description:"Write a default configuration to --config and exit"`
	Metric            string  `short:"m" long:"metric" choice:"dice" choice:"hausdorff" description:"Comparison metric"`
	Workers           int     `short:"w" long:"workers" description:"Pairs computed concurrently (default: all CPUs)"`
	Stats             string  `long:"stats" description:"Comma separated statistics: average,stddev,min,max"`
	CSV               string  `long:"csv" description:"Write the score matrix as CSV"`
	StatsCSV          string  `long:"stats-csv" description:"Write the statistics table as CSV"`
	JSON              string  `long:"json" description:"Write a JSON report"`
	MetricsFile       string  `long:"metrics-file" description:"Write Prometheus metrics in text format"`
	Sentinel          string  `long:"sentinel" description:"Text written for not computable cells"`
	Precision         int     `long:"precision" description:"Decimals written for scores"`
	KeepZeroDistance  bool    `long:"keep-zero-distance" description:"Report 0 Hausdorff distances instead of the sentinel"`
	SurfaceFromLabels bool    `long:"surface-from-labels" description:"Compare label volume boundaries with the Hausdorff metric"`
	AssumeLabelMap    bool    `long:"assume-labelmap" description:"Treat every volume as a label map"`
	ContinueOnError   bool    `long:"continue-on-error" description:"Treat unreadable samples as absent"`
	SliceGap          float64 `long:"slice-gap" description:"Slice spacing in mm for image directories (default: 1)"`
	ExportDir         string  `long:"export-dir" description:"Write each label volume as NRRD and STL into this directory"`
	Verbose           bool    `short:"v" long:"verbose" description:"Enable debug logging"`

	Args struct {
		Samples []string `positional-arg-name:"SAMPLE" description:"NRRD file, slice directory or STL mesh; - leaves the slot empty"`
	} `positional-args:"yes"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] SAMPLE SAMPLE [SAMPLE...]"
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if opts.InitConfig {
		if opts.Config == "" {
			logger.Error("--init-config needs --config")
			return 1
		}
		if err := config.CreateDefaultConfigFile(opts.Config); err != nil {
			logger.WithError(err).Error("could not write default configuration")
			return 1
		}
		fmt.Fprintf(stdout, "Default configuration written to %s\n", opts.Config)
		return 0
	}

	cfg, err := loadConfig(parser, &opts)
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return 1
	}
	if cfg.Output.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if len(opts.Args.Samples) < 2 {
		logger.Error(comparison.ErrInsufficientSamples.Error())
		return 2
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	params := comparison.ParamsFromConfig(cfg, opts.Args.Samples)
	res, err := comparison.NewComparator(params, logger, m).Process(ctx)
	if err != nil {
		logger.WithError(err).Error("comparison failed")
		if errors.Is(err, comparison.ErrInsufficientSamples) {
			return 2
		}
		return 1
	}

	if err := writeOutputs(cfg, res, m, stdout); err != nil {
		logger.WithError(err).Error("could not write results")
		return 1
	}
	return 0
}

// loadConfig reads the configuration file and applies the flags the user set
func loadConfig(parser *flags.Parser, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.Config != "" {
		loaded, err := config.LoadConfig(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	isSet := func(long string) bool {
		opt := parser.FindOptionByLongName(long)
		return opt != nil && opt.IsSet()
	}

	if isSet("metric") {
		cfg.Processing.Metric = opts.Metric
	}
	if isSet("workers") {
		cfg.Processing.NumCores = opts.Workers
	}
	if isSet("slice-gap") {
		cfg.Processing.SliceGap = opts.SliceGap
	}
	if isSet("continue-on-error") {
		cfg.Processing.FailOnLoadError = !opts.ContinueOnError
	}
	if isSet("stats") {
		sel, err := stats.ParseSelection(opts.Stats)
		if err != nil {
			return nil, err
		}
		cfg.Statistics = sel
	}
	if isSet("keep-zero-distance") {
		cfg.Hausdorff.KeepZeroDistance = opts.KeepZeroDistance
	}
	if isSet("surface-from-labels") {
		cfg.Hausdorff.SurfaceFromLabels = opts.SurfaceFromLabels
	}
	if isSet("assume-labelmap") {
		cfg.Input.AssumeLabelMap = opts.AssumeLabelMap
	}
	if isSet("csv") {
		cfg.Output.CSV = opts.CSV
	}
	if isSet("stats-csv") {
		cfg.Output.StatsCSV = opts.StatsCSV
	}
	if isSet("json") {
		cfg.Output.JSON = opts.JSON
	}
	if isSet("export-dir") {
		cfg.Output.ExportDir = opts.ExportDir
	}
	if isSet("metrics-file") {
		cfg.Output.MetricsFile = opts.MetricsFile
	}
	if isSet("sentinel") {
		cfg.Output.SentinelText = opts.Sentinel
	}
	if isSet("precision") {
		cfg.Output.Precision = opts.Precision
	}
	if isSet("verbose") {
		cfg.Output.Verbose = opts.Verbose
	}
	return cfg, cfg.Validate()
}

func writeOutputs(cfg *config.Config, res *comparison.Result, m *metrics.Metrics, stdout io.Writer) error {
	ropts := report.Options{
		Names:        res.Names,
		SentinelText: cfg.Output.SentinelText,
		Precision:    cfg.Output.Precision,
	}

	fmt.Fprintln(stdout, res.Summary())
	fmt.Fprintln(stdout)
	if err := report.WriteText(stdout, res.Matrix, res.Stats, ropts); err != nil {
		return err
	}

	if cfg.Output.CSV != "" {
		err := report.WriteFile(cfg.Output.CSV, func(w io.Writer) error {
			return report.WriteMatrixCSV(w, res.Matrix, ropts)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Output.StatsCSV != "" {
		err := report.WriteFile(cfg.Output.StatsCSV, func(w io.Writer) error {
			return report.WriteStatsCSV(w, res.Stats, ropts)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Output.JSON != "" {
		doc := report.NewDocument(res.RunID, res.Metric, res.Matrix, res.Stats, ropts)
		err := report.WriteFile(cfg.Output.JSON, func(w io.Writer) error {
			return report.WriteJSON(w, doc)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Output.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}
