// Package report renders score matrices and statistics tables as text,
// CSV and JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"

	"segcompare/pkg/pairwise"
	"segcompare/pkg/stats"
)

// Options control number formatting
type Options struct {
	// Names label the samples; an empty name falls back to the 1-based index
	Names []string

	// SentinelText replaces not-computable cells
	SentinelText string

	// Precision is the number of decimals written
	Precision int
}

func (o Options) label(i int) string {
	if i < len(o.Names) && o.Names[i] != "" {
		return o.Names[i]
	}
	return strconv.Itoa(i + 1)
}

func (o Options) format(v float64) string {
	if v == pairwise.Sentinel {
		return o.SentinelText
	}
	return strconv.FormatFloat(v, 'f', o.Precision, 64)
}

// WriteText prints the matrix and, when t is not nil, the statistics table
// as aligned columns. Diagonal cells are bracketed and not-computable cells
// show SentinelText, so both read differently from valid scores.
func WriteText(w io.Writer, m *pairwise.Matrix, t *stats.Table, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	n := m.Size()

	fmt.Fprint(tw, "\t")
	for j := 0; j < n; j++ {
		fmt.Fprintf(tw, "%s\t", opts.label(j))
	}
	fmt.Fprintln(tw)
	for i := 0; i < n; i++ {
		fmt.Fprintf(tw, "%s\t", opts.label(i))
		for j := 0; j < n; j++ {
			cell := opts.format(m.At(i, j))
			if i == j && !m.IsSentinel(i, j) {
				cell = "[" + cell + "]"
			}
			fmt.Fprintf(tw, "%s\t", cell)
		}
		fmt.Fprintln(tw)
	}

	if t != nil && len(t.Kinds) > 0 {
		fmt.Fprintln(tw)
		for r, kind := range t.Kinds {
			fmt.Fprintf(tw, "%s\t", kind)
			for _, v := range t.Values[r] {
				fmt.Fprintf(tw, "%s\t", opts.format(v))
			}
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

// WriteMatrixCSV writes a header row of sample labels followed by one row
// per sample
func WriteMatrixCSV(w io.Writer, m *pairwise.Matrix, opts Options) error {
	cw := csv.NewWriter(w)
	n := m.Size()

	header := make([]string, 0, n+1)
	header = append(header, "")
	for j := 0; j < n; j++ {
		header = append(header, opts.label(j))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		row := make([]string, 0, n+1)
		row = append(row, opts.label(i))
		for j := 0; j < n; j++ {
			row = append(row, opts.format(m.At(i, j)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatsCSV writes a header row of sample labels followed by one row per
// statistic
func WriteStatsCSV(w io.Writer, t *stats.Table, opts Options) error {
	cw := csv.NewWriter(w)
	n := 0
	if len(t.Values) > 0 {
		n = len(t.Values[0])
	}

	header := make([]string, 0, n+1)
	header = append(header, "")
	for j := 0; j < n; j++ {
		header = append(header, opts.label(j))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for r, kind := range t.Kinds {
		row := make([]string, 0, n+1)
		row = append(row, kind.String())
		for _, v := range t.Values[r] {
			row = append(row, opts.format(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON form of one comparison run
type Document struct {
	RunID      string               `json:"run_id"`
	Metric     string               `json:"metric"`
	Samples    []string             `json:"samples"`
	Matrix     [][]float64          `json:"matrix"`
	Reasons    [][]string           `json:"reasons"`
	Statistics map[string][]float64 `json:"statistics,omitempty"`
}

// NewDocument collects a matrix and its statistics into a Document
func NewDocument(runID, metric string, m *pairwise.Matrix, t *stats.Table, opts Options) *Document {
	n := m.Size()
	doc := &Document{
		RunID:   runID,
		Metric:  metric,
		Samples: make([]string, n),
		Matrix:  m.Rows(),
		Reasons: make([][]string, n),
	}
	for i := 0; i < n; i++ {
		finiteOrSentinel(doc.Matrix[i])
		doc.Samples[i] = opts.label(i)
		doc.Reasons[i] = make([]string, n)
		for j := 0; j < n; j++ {
			doc.Reasons[i][j] = m.Reason(i, j).String()
		}
	}
	if t != nil && len(t.Kinds) > 0 {
		doc.Statistics = make(map[string][]float64, len(t.Kinds))
		for r, kind := range t.Kinds {
			row := append([]float64(nil), t.Values[r]...)
			finiteOrSentinel(row)
			doc.Statistics[kind.String()] = row
		}
	}
	return doc
}

// finiteOrSentinel replaces NaN and ±Inf, which JSON cannot carry
func finiteOrSentinel(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = pairwise.Sentinel
		}
	}
}

// WriteJSON encodes doc with indentation
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteFile creates path and hands it to write
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
