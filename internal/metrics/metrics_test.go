package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveVerdict(t *testing.T) {
	m := New()
	m.ObserveVerdict("vulnerable", 5)
	m.ObserveVerdict("vulnerable", 3)
	m.ObserveVerdict("not-vulnerable", 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Batches.WithLabelValues("vulnerable")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.Ballots.WithLabelValues("vulnerable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches.WithLabelValues("not-vulnerable")))
}

func TestCandidatesAndLatency(t *testing.T) {
	m := New()
	m.AddCandidates("shuffle", 457)
	m.AddCandidates("", 10)
	m.ObserveDetect("shuffle", 20*time.Millisecond)

	assert.Equal(t, 457.0, testutil.ToFloat64(m.Candidates.WithLabelValues("shuffle")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Candidates))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DetectLatency))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveVerdict("vulnerable", 1)
	m.AddCandidates("shuffle", 1)
	m.ObserveDetect("shuffle", time.Second)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveVerdict("undetermined", 4)

	path := filepath.Join(t.TempDir(), "dvsorder.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dvsorder_batches_total{status="undetermined"} 1`)
	assert.Contains(t, string(data), `dvsorder_ballots_total{status="undetermined"} 4`)
}

func TestRunsDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.ObserveVerdict("vulnerable", 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Batches.WithLabelValues("vulnerable")))
}
