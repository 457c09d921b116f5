package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordStepLatency(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.recordStepLatency("nodeA", 42*time.Millisecond, "success")

	count := testutil.CollectAndCount(m.stepLatency)
	require.Equal(t, 1, count)
}

func TestMetrics_IncrementRetries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.incrementRetries("nodeA", "timeout")
	m.incrementRetries("nodeA", "timeout")

	got := testutil.ToFloat64(m.retries.WithLabelValues("nodeA", "timeout"))
	require.Equal(t, float64(2), got)
}

func TestMetrics_SetInflightAndQueueDepth(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.setInflight(3)
	m.setQueueDepth(7)

	require.Equal(t, float64(3), testutil.ToFloat64(m.inflightNodes))
	require.Equal(t, float64(7), testutil.ToFloat64(m.queueDepth))
}

func TestMetrics_Disable_StopsRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.Disable()

	m.setInflight(5)
	m.incrementRetries("nodeA", "timeout")
	m.recordStepLatency("nodeA", time.Millisecond, "success")

	require.Equal(t, float64(0), testutil.ToFloat64(m.inflightNodes))
	require.Equal(t, float64(0), testutil.ToFloat64(m.retries.WithLabelValues("nodeA", "timeout")))
	require.Equal(t, 0, testutil.CollectAndCount(m.stepLatency))

	m.Enable()
	m.setInflight(5)
	require.Equal(t, float64(5), testutil.ToFloat64(m.inflightNodes))
}

func TestMetrics_NilReceiver_NeverPanics(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.setInflight(1)
		m.setQueueDepth(1)
		m.incrementRetries("nodeA", "timeout")
		m.recordStepLatency("nodeA", time.Millisecond, "success")
		m.Disable()
		m.Enable()
	})
}
