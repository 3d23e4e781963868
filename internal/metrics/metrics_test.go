package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRecord(t *testing.T) {
	m := New(prometheus.Labels{"run_id": "r1"})
	m.ObserveRecord("analyze", nil, 10*time.Millisecond)
	m.ObserveRecord("analyze", nil, 20*time.Millisecond)
	m.ObserveRecord("analyze", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("analyze", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("analyze", OutcomeError)))
}

func TestCheckpointCounters(t *testing.T) {
	m := New(nil)
	m.CheckpointWritten(100)
	m.CheckpointWritten(50)
	m.CheckpointFailed()
	m.AddEngineSteps("chunk_analyze", 4)
	m.AddEngineSteps("chunk_analyze", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkpointsWritten))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.checkpointBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpointFailures))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.engineSteps.WithLabelValues("chunk_analyze")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRecord("x", nil, time.Second)
	m.CheckpointWritten(1)
	m.CheckpointFailed()
	m.AddEngineSteps("x", 1)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile("/nonexistent/dir/file.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New(prometheus.Labels{"run_id": "abc"})
	m.ObserveRecord("initialize", nil, time.Millisecond)

	path := filepath.Join(t.TempDir(), "xcat.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `xcat_records_total{operation="initialize",outcome="ok",run_id="abc"} 1`))

	assert.NoError(t, m.WriteTextfile(""))
}
