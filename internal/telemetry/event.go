// Package telemetry implements the runtime's observability surface: a
// bounded, non-blocking ring of lifecycle/publish/receive/overrun events,
// a prometheus exporter over the same counters, and a per-node write
// throttle so a stuck node cannot flood the ring.
package telemetry

// Severity classifies a telemetry event for filtering in the dashboard.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind identifies the shape of event in the ring.
type Kind int

const (
	KindLifecycleInit Kind = iota
	KindLifecycleTick
	KindLifecycleShutdown
	KindLifecycleFailed
	KindPublish
	KindSubscribe
	KindTickOverrun
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindLifecycleInit:
		return "lifecycle.init"
	case KindLifecycleTick:
		return "lifecycle.tick"
	case KindLifecycleShutdown:
		return "lifecycle.shutdown"
	case KindLifecycleFailed:
		return "lifecycle.failed"
	case KindPublish:
		return "publish"
	case KindSubscribe:
		return "subscribe"
	case KindTickOverrun:
		return "tick_overrun"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is one entry in the telemetry ring:
// (timestamp_ns, node_name, severity, kind, topic_name?, duration_ns?, text?).
type Event struct {
	TimestampNs int64
	NodeName    string
	Severity    Severity
	Kind        Kind
	TopicName   string // empty when not applicable
	DurationNs  int64  // zero when not applicable
	Text        string // empty when not applicable
}
