// Package pairwise holds the symmetric N×N score matrix shared by the
// overlap and surface distance engines, and the driver that fills it.
package pairwise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sentinel marks a cell whose score could not be computed
const Sentinel = -1.0

// Reason tells why a cell holds the value it holds. Every reason except
// Valid is reported numerically as Sentinel.
type Reason uint8

const (
	// Valid cells hold a score in the metric's natural range
	Valid Reason = iota
	// Missing means one of the two samples was not provided
	Missing
	// NotLabelMap means a volume is not flagged as a label map
	NotLabelMap
	// Empty means a sample has no non-zero voxels or no points
	Empty
	// ShapeMismatch means two grids do not share dimensions
	ShapeMismatch
	// ZeroDistance means two distinct surfaces coincide at every point
	ZeroDistance
)

var reasonNames = [...]string{
	Valid:         "valid",
	Missing:       "missing",
	NotLabelMap:   "not_label_map",
	Empty:         "empty",
	ShapeMismatch: "shape_mismatch",
	ZeroDistance:  "zero_distance",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", r)
}

// Cell is the outcome of one pair computation
type Cell struct {
	Value  float64
	Reason Reason
}

// Score builds a valid cell
func Score(v float64) Cell {
	return Cell{Value: v, Reason: Valid}
}

// NotComputable builds a sentinel cell carrying the reason
func NotComputable(r Reason) Cell {
	return Cell{Value: Sentinel, Reason: r}
}

// Matrix is a square grid of scores, symmetric by construction. Values live
// in a gonum SymDense so M[i][j] and M[j][i] always refer to the same cell.
type Matrix struct {
	n       int
	values  *mat.SymDense
	reasons []Reason
}

// New creates an n×n matrix with every cell set to Sentinel
func New(n int) *Matrix {
	if n < 0 {
		panic("pairwise: negative matrix size")
	}
	m := &Matrix{n: n, reasons: make([]Reason, n*n)}
	if n > 0 {
		data := make([]float64, n*n)
		for i := range data {
			data[i] = Sentinel
		}
		m.values = mat.NewSymDense(n, data)
	}
	for i := range m.reasons {
		m.reasons[i] = Missing
	}
	return m
}

// Size returns N
func (m *Matrix) Size() int {
	return m.n
}

// At returns the score stored at (i, j)
func (m *Matrix) At(i, j int) float64 {
	return m.values.At(i, j)
}

// Reason returns the reason recorded for (i, j)
func (m *Matrix) Reason(i, j int) Reason {
	return m.reasons[i*m.n+j]
}

// Set stores a valid score in both (i, j) and (j, i)
func (m *Matrix) Set(i, j int, v float64) {
	m.SetCell(i, j, Score(v))
}

// SetNotComputable stores the sentinel with its reason in both (i, j) and (j, i)
func (m *Matrix) SetNotComputable(i, j int, r Reason) {
	m.SetCell(i, j, NotComputable(r))
}

// SetCell stores c symmetrically
func (m *Matrix) SetCell(i, j int, c Cell) {
	m.values.SetSym(i, j, c.Value)
	m.reasons[i*m.n+j] = c.Reason
	m.reasons[j*m.n+i] = c.Reason
}

// Cell returns the value and reason at (i, j)
func (m *Matrix) Cell(i, j int) Cell {
	return Cell{Value: m.At(i, j), Reason: m.Reason(i, j)}
}

// IsSentinel reports whether (i, j) holds the not-computable marker
func (m *Matrix) IsSentinel(i, j int) bool {
	return m.At(i, j) == Sentinel
}

// Column returns a copy of column j
func (m *Matrix) Column(j int) []float64 {
	col := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		col[i] = m.At(i, j)
	}
	return col
}

// Rows returns the matrix as a fresh [][]float64
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, m.n)
	for i := range rows {
		rows[i] = make([]float64, m.n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

// Counts tallies the cells of the upper triangle (diagonal included) by reason
func (m *Matrix) Counts() map[Reason]int {
	counts := make(map[Reason]int)
	for i := 0; i < m.n; i++ {
		for j := i; j < m.n; j++ {
			counts[m.Reason(i, j)]++
		}
	}
	return counts
}
