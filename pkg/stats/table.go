package stats

import (
	"strings"

	"segcompare/pkg/pairwise"
)

// Selection toggles which statistics end up in a Table
type Selection struct {
	Average bool `yaml:"average"`
	StdDev  bool `yaml:"stddev"`
	Min     bool `yaml:"min"`
	Max     bool `yaml:"max"`
}

// All selects every statistic
func All() Selection {
	return Selection{Average: true, StdDev: true, Min: true, Max: true}
}

// ParseSelection reads a comma separated list such as "average,max"
func ParseSelection(list string) (Selection, error) {
	var sel Selection
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := ParseKind(name)
		if err != nil {
			return Selection{}, err
		}
		sel = sel.With(k)
	}
	return sel, nil
}

// With returns a copy of s with kind enabled
func (s Selection) With(kind Kind) Selection {
	switch kind {
	case Average:
		s.Average = true
	case StdDev:
		s.StdDev = true
	case Min:
		s.Min = true
	case Max:
		s.Max = true
	}
	return s
}

// Kinds returns the table rows for the selection in fixed order. The
// standard deviation is derived from the column average, so selecting it
// also emits the average row.
func (s Selection) Kinds() []Kind {
	var kinds []Kind
	if s.Average || s.StdDev {
		kinds = append(kinds, Average)
	}
	if s.StdDev {
		kinds = append(kinds, StdDev)
	}
	if s.Min {
		kinds = append(kinds, Min)
	}
	if s.Max {
		kinds = append(kinds, Max)
	}
	return kinds
}

// Table holds one row per requested statistic and one column per sample
type Table struct {
	Kinds  []Kind
	Values [][]float64
}

// NewTable computes the statistics table of m from scratch
func NewTable(m *pairwise.Matrix, sel Selection) *Table {
	kinds := sel.Kinds()
	t := &Table{Kinds: kinds, Values: make([][]float64, len(kinds))}
	n := 0
	if m != nil {
		n = m.Size()
	}
	for r := range kinds {
		t.Values[r] = make([]float64, n)
	}
	for col := 0; col < n; col++ {
		values := Included(m, col)
		avg := average(values)
		for r, kind := range kinds {
			switch kind {
			case Average:
				t.Values[r][col] = avg
			case StdDev:
				t.Values[r][col] = stdDev(values, avg)
			default:
				t.Values[r][col] = Compute(m, col, kind)
			}
		}
	}
	return t
}

// Row returns the values computed for kind and whether the table has it
func (t *Table) Row(kind Kind) ([]float64, bool) {
	for r, k := range t.Kinds {
		if k == kind {
			return t.Values[r], true
		}
	}
	return nil, false
}
