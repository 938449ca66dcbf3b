package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segcompare/pkg/pairwise"
)

func threeSampleMatrix() *pairwise.Matrix {
	// Sample 2 missing: three valid cells (two diagonal, one pair), three missing
	m := pairwise.New(3)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1)
	m.Set(0, 1, 0.8)
	return m
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe("dice", threeSampleMatrix(), 2, 20*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PairsTotal.WithLabelValues("dice", "valid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PairsTotal.WithLabelValues("dice", "missing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Samples.WithLabelValues("dice", "present")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("dice", "missing")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ComputeDuration))

	m.Observe("dice", threeSampleMatrix(), 2, time.Millisecond)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.PairsTotal.WithLabelValues("dice", "valid")))
}

func TestObserveNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("dice", threeSampleMatrix(), 2, time.Second)
	})

	m = NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.Observe("dice", nil, 0, time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics(nil)
	m.Observe("hausdorff", threeSampleMatrix(), 2, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "segcompare.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `segcompare_pairs_total{metric="hausdorff",reason="valid"} 3`)
	assert.Contains(t, string(data), "segcompare_compute_duration_seconds_count")

	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "nope", "x.prom")))
}
