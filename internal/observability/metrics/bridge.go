package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics contains the Prometheus collectors for bridges, their
// real-time cycles and the managed-side operations.
type BridgeMetrics struct {
	cyclesTotal       *prometheus.CounterVec
	readyWait         *prometheus.HistogramVec
	processDuration   *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	inputLevel        *prometheus.GaugeVec
	recorderDropped   prometheus.Counter
	activeContexts    prometheus.Gauge
}

// NewBridgeMetrics creates the collectors and registers them with registry.
func NewBridgeMetrics(registry prometheus.Registerer) (*BridgeMetrics, error) {
	m := &BridgeMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BridgeMetrics) initMetrics() {
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbridge_cycles_total",
			Help: "Real-time cycles by outcome",
		},
		[]string{"bridge_id", "outcome"}, // outcome: completed, aborted, skipped
	)

	m.readyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtbridge_ready_wait_seconds",
			Help:    "Time the real-time side waited for the consumer to hand a cycle back",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
		},
		[]string{"bridge_id"},
	)

	m.processDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtbridge_process_duration_seconds",
			Help:    "Time the consumer spent processing one cycle",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
		},
		[]string{"bridge_id"},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbridge_operations_total",
			Help: "Bridge operations by status",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtbridge_operation_duration_seconds",
			Help:    "Duration of bridge lifecycle operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbridge_errors_total",
			Help: "Bridge errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	m.inputLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtbridge_input_level_dbfs",
			Help: "Input level seen by the consumer in dBFS",
		},
		[]string{"bridge_id", "kind"}, // kind: rms, peak
	)

	m.recorderDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtbridge_recorder_dropped_blocks_total",
		Help: "Blocks the WAV recorder dropped because its writer fell behind",
	})

	m.activeContexts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtbridge_active_contexts",
		Help: "Configured and not yet released rendezvous contexts",
	})
}

// Describe implements the Collector interface
func (m *BridgeMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cyclesTotal.Describe(ch)
	m.readyWait.Describe(ch)
	m.processDuration.Describe(ch)
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.inputLevel.Describe(ch)
	m.recorderDropped.Describe(ch)
	m.activeContexts.Describe(ch)
}

// Collect implements the Collector interface
func (m *BridgeMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cyclesTotal.Collect(ch)
	m.readyWait.Collect(ch)
	m.processDuration.Collect(ch)
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.inputLevel.Collect(ch)
	m.recorderDropped.Collect(ch)
	m.activeContexts.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *BridgeMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *BridgeMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *BridgeMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetActiveContexts sets the number of live rendezvous contexts.
func (m *BridgeMetrics) SetActiveContexts(n int) {
	m.activeContexts.Set(float64(n))
}

// RecorderDropped returns the counter for blocks dropped by the recorder.
func (m *BridgeMetrics) RecorderDropped() prometheus.Counter {
	return m.recorderDropped
}

// Bridge returns collectors bound to one bridge. Label lookups happen here
// so the returned value is safe to use on a real-time thread.
func (m *BridgeMetrics) Bridge(bridgeID string) *BridgeCollectors {
	return &BridgeCollectors{
		completed: m.cyclesTotal.WithLabelValues(bridgeID, OutcomeCompleted),
		aborted:   m.cyclesTotal.WithLabelValues(bridgeID, OutcomeAborted),
		skipped:   m.cyclesTotal.WithLabelValues(bridgeID, OutcomeSkipped),
		wait:      m.readyWait.WithLabelValues(bridgeID),
		process:   m.processDuration.WithLabelValues(bridgeID),
		levelRMS:  m.inputLevel.WithLabelValues(bridgeID, LevelRMS),
		levelPeak: m.inputLevel.WithLabelValues(bridgeID, LevelPeak),
	}
}

// Forget removes every series labelled with bridgeID.
func (m *BridgeMetrics) Forget(bridgeID string) {
	labels := prometheus.Labels{"bridge_id": bridgeID}
	m.cyclesTotal.DeletePartialMatch(labels)
	m.readyWait.DeletePartialMatch(labels)
	m.processDuration.DeletePartialMatch(labels)
	m.inputLevel.DeletePartialMatch(labels)
}

// BridgeCollectors are pre-bound collectors for one bridge. The cycle
// methods satisfy rendezvous.CycleObserver: they only touch atomics and
// never allocate.
type BridgeCollectors struct {
	completed prometheus.Counter
	aborted   prometheus.Counter
	skipped   prometheus.Counter
	wait      prometheus.Observer
	process   prometheus.Observer
	levelRMS  prometheus.Gauge
	levelPeak prometheus.Gauge
}

// CycleCompleted counts a cycle handed back by the consumer.
func (c *BridgeCollectors) CycleCompleted(wait time.Duration) {
	c.completed.Inc()
	c.wait.Observe(wait.Seconds())
}

// CycleAborted counts a cycle cut short by shutdown.
func (c *BridgeCollectors) CycleAborted() { c.aborted.Inc() }

// CycleSkipped counts a cycle that arrived after shutdown.
func (c *BridgeCollectors) CycleSkipped() { c.skipped.Inc() }

// ObserveProcess records consumer processing time for one cycle.
func (c *BridgeCollectors) ObserveProcess(d time.Duration) {
	c.process.Observe(d.Seconds())
}

// SetLevel publishes input levels in dBFS.
func (c *BridgeCollectors) SetLevel(rmsDBFS, peakDBFS float64) {
	c.levelRMS.Set(rmsDBFS)
	c.levelPeak.Set(peakDBFS)
}
