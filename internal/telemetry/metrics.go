package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the ring's event stream as prometheus collectors so a
// scrape of /metrics sees the same tick/publish/receive/overrun activity
// the dashboard's websocket feed sees, without either depending on the
// other.
type Metrics struct {
	TickDuration    *prometheus.HistogramVec
	PublishLatency  *prometheus.HistogramVec
	ReceiveLatency  *prometheus.HistogramVec
	Overruns        *prometheus.CounterVec
	TickOverruns    *prometheus.CounterVec
	DroppedRecords  prometheus.Counter
	ThrottledWrites *prometheus.CounterVec
	TopicBacklog    *prometheus.GaugeVec
	NodeState       *prometheus.GaugeVec
}

// NewMetrics constructs and registers every collector against reg.
// Callers typically pass prometheus.NewRegistry() for test isolation or
// prometheus.DefaultRegisterer for the dashboard process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "horus",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a node's tick call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		PublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "horus",
			Subsystem: "bus",
			Name:      "publish_latency_seconds",
			Help:      "Time spent inside a Publish call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		ReceiveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "horus",
			Subsystem: "bus",
			Name:      "receive_latency_seconds",
			Help:      "Time spent inside a TryRecv call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		Overruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horus",
			Subsystem: "bus",
			Name:      "overruns_total",
			Help:      "Skipped ring slots reported to subscribers, by topic.",
		}, []string{"topic"}),
		TickOverruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horus",
			Subsystem: "scheduler",
			Name:      "tick_overruns_total",
			Help:      "Tick cycles whose wall-clock duration exceeded the target period, by scheduler.",
		}, []string{"scheduler"}),
		DroppedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horus",
			Subsystem: "telemetry",
			Name:      "dropped_records_total",
			Help:      "Telemetry ring entries discarded by ring overflow.",
		}),
		ThrottledWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horus",
			Subsystem: "telemetry",
			Name:      "throttled_writes_total",
			Help:      "Telemetry writes suppressed by the per-node throttle.",
		}, []string{"node"}),
		TopicBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "horus",
			Subsystem: "bus",
			Name:      "topic_backlog",
			Help:      "latest_seq minus read_seq observed at a subscriber's most recent TryRecv, by topic.",
		}, []string{"topic"}),
		NodeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "horus",
			Subsystem: "scheduler",
			Name:      "node_state",
			Help:      "1 if the node is currently in the given lifecycle state, else 0.",
		}, []string{"node", "state"}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.PublishLatency,
		m.ReceiveLatency,
		m.Overruns,
		m.TickOverruns,
		m.DroppedRecords,
		m.ThrottledWrites,
		m.TopicBacklog,
		m.NodeState,
	)
	return m
}
