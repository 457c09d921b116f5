package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible execution metrics, generalized
// from the teacher's PrometheusMetrics (graph/metrics.go) down to the
// subset this engine's fixed five-node-kind scheduler can actually
// produce: per-run concurrency and queue depth, per-node latency, and
// retry counts. Namespace is "agentgraph" rather than the teacher's
// "langgraph".
type Metrics struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers the engine's metrics with registry (pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Name:      "inflight_nodes",
			Help:      "Current number of nodes executing concurrently across all runs",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Name:      "queue_depth",
			Help:      "Number of work items waiting in a run's frontier",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Name:      "step_latency_ms",
			Help:      "Node evaluation duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "retries_total",
			Help:      "Cumulative node retry attempts",
		}, []string{"node_id", "reason"}),
	}
}

func (m *Metrics) recordStepLatency(nodeID string, latency time.Duration, status string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) incrementRetries(nodeID, reason string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.retries.WithLabelValues(nodeID, reason).Inc()
}

func (m *Metrics) setInflight(n int) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.inflightNodes.Set(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) isEnabled() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops metric recording, useful in tests that share a process
// registry across cases.
func (m *Metrics) Disable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *Metrics) Enable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
