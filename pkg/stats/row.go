// Package stats derives per-sample descriptive statistics from a pairwise
// score matrix. Each statistic is taken over one column, skipping the
// diagonal and every sentinel cell.
package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"segcompare/pkg/pairwise"
)

// Kind selects a column statistic
type Kind int

const (
	Average Kind = iota
	StdDev
	Min
	Max
)

// Kinds lists every statistic in table order
var Kinds = []Kind{Average, StdDev, Min, Max}

func (k Kind) String() string {
	switch k {
	case Average:
		return "Average"
	case StdDev:
		return "StdDev"
	case Min:
		return "Min"
	case Max:
		return "Max"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the names used in configuration files and on the
// command line (case-insensitive): average/mean, stddev/std, min, max.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "avg", "mean":
		return Average, nil
	case "stddev", "std", "sd":
		return StdDev, nil
	case "min", "minimum":
		return Min, nil
	case "max", "maximum":
		return Max, nil
	}
	return 0, fmt.Errorf("unknown statistic %q", s)
}

// Included returns the cells of column that take part in statistics: every
// row except the diagonal, minus sentinel cells. Out-of-range columns yield
// nil.
func Included(m *pairwise.Matrix, column int) []float64 {
	if m == nil || column < 0 || column >= m.Size() {
		return nil
	}
	var values []float64
	for row := 0; row < m.Size(); row++ {
		if row == column || m.IsSentinel(row, column) {
			continue
		}
		values = append(values, m.At(row, column))
	}
	return values
}

// Compute returns one statistic for one column. Columns without any
// included cell report pairwise.Sentinel for every kind.
func Compute(m *pairwise.Matrix, column int, kind Kind) float64 {
	values := Included(m, column)
	switch kind {
	case Average:
		return average(values)
	case StdDev:
		return stdDev(values, average(values))
	case Min:
		if len(values) == 0 {
			return pairwise.Sentinel
		}
		return floats.Min(values)
	case Max:
		if len(values) == 0 {
			return pairwise.Sentinel
		}
		return floats.Max(values)
	}
	return pairwise.Sentinel
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return pairwise.Sentinel
	}
	return stat.Mean(values, nil)
}

// stdDev is the population standard deviation about an average already
// computed for the same column.
func stdDev(values []float64, avg float64) float64 {
	if avg == pairwise.Sentinel || len(values) == 0 {
		return pairwise.Sentinel
	}
	return math.Sqrt(stat.MomentAbout(2, values, avg, nil))
}
