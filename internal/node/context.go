package node

import (
	"time"
	"unsafe"

	"github.com/horus-robotics/horus/internal/bus"
	"github.com/horus-robotics/horus/internal/telemetry"
)

// Context is the per-callback handle passed into Init, Tick, and Shutdown:
// the NodeContext of spec.md §4.2. It exposes bus access, logging, and
// identity, and is the only way a node may reach the bus or the ring.
type Context struct {
	node     *Node
	registry *bus.Registry
	ring     *telemetry.Ring
	throttle *telemetry.Throttler
	metrics  *telemetry.Metrics
}

// NewContext builds a Context bound to one node and the shared runtime
// facilities a scheduler constructs once.
func NewContext(n *Node, registry *bus.Registry, ring *telemetry.Ring, throttle *telemetry.Throttler, metrics *telemetry.Metrics) *Context {
	return &Context{node: n, registry: registry, ring: ring, throttle: throttle, metrics: metrics}
}

// NodeName returns the owning node's name.
func (c *Context) NodeName() string { return c.node.Name() }

// TickCount returns the owning node's successful-tick counter.
func (c *Context) TickCount() uint64 { return c.node.TickCount() }

// emit appends a Message event, subject to the node's logging-enabled flag
// and the per-node write throttle. The throttle exists to bound a stuck
// node's own log storm (one call site per LogDebug/Info/Warn/Error), not
// the bus's mandatory Publish/Subscribe events below.
func (c *Context) emit(severity telemetry.Severity, kind telemetry.Kind, topic string, duration time.Duration, text string) {
	if !c.node.LoggingEnabled() {
		return
	}
	if c.throttle != nil && !c.throttle.Allow(c.node.Name()) {
		if c.metrics != nil {
			c.metrics.ThrottledWrites.WithLabelValues(c.node.Name()).Inc()
		}
		return
	}
	c.append(severity, kind, topic, duration, text)
}

// emitMandatory appends a Publish/Subscribe/TickOverrun event whenever the
// node has logging enabled. spec.md §4.2 requires send and recv to emit
// these unconditionally; only ring overflow is a documented drop policy
// for them, never the write throttle.
func (c *Context) emitMandatory(severity telemetry.Severity, kind telemetry.Kind, topic string, duration time.Duration, text string) {
	if !c.node.LoggingEnabled() {
		return
	}
	c.append(severity, kind, topic, duration, text)
}

func (c *Context) append(severity telemetry.Severity, kind telemetry.Kind, topic string, duration time.Duration, text string) {
	c.ring.Append(telemetry.Event{
		TimestampNs: time.Now().UnixNano(),
		NodeName:    c.node.Name(),
		Severity:    severity,
		Kind:        kind,
		TopicName:   topic,
		DurationNs:  duration.Nanoseconds(),
		Text:        text,
	})
}

// LogDebug/LogInfo/LogWarn/LogError append a Message event to the
// telemetry ring, subject to the node's logging-enabled flag and the
// per-node write throttle.
func (c *Context) LogDebug(message string) { c.emit(telemetry.SeverityDebug, telemetry.KindMessage, "", 0, message) }
func (c *Context) LogInfo(message string)  { c.emit(telemetry.SeverityInfo, telemetry.KindMessage, "", 0, message) }
func (c *Context) LogWarn(message string)  { c.emit(telemetry.SeverityWarn, telemetry.KindMessage, "", 0, message) }
func (c *Context) LogError(message string) { c.emit(telemetry.SeverityError, telemetry.KindMessage, "", 0, message) }

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func toBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// Publisher is a typed, owning handle from a node to a topic. T must be a
// fixed-layout (POD) struct: its in-memory representation is copied
// byte-for-byte into the ring, matching the C ABI's "payload is opaque
// bytes to the bus" contract.
type Publisher[T any] struct {
	ctx    *Context
	handle *bus.PublisherHandle
}

// CreatePublisher creates (or attaches to) a topic named topicName sized
// for T and returns a typed publisher owned by this context's node.
func CreatePublisher[T any](ctx *Context, topicName string) (*Publisher[T], error) {
	topic, err := ctx.registry.CreateTopic(topicName, sizeOf[T](), bus.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	handle := topic.AttachPublisher(ctx.node.Name())
	ctx.node.attachPublisher(handle)
	return &Publisher[T]{ctx: ctx, handle: handle}, nil
}

// Send publishes msg, emitting a Publish telemetry event with measured
// duration when the node has logging enabled.
func (p *Publisher[T]) Send(msg *T) (seq uint64, err error) {
	topicName := p.handle.Topic().Name()
	start := time.Now()
	seq, err = p.handle.Topic().Publish(p.handle, toBytes(msg))
	elapsed := time.Since(start)
	if p.ctx.metrics != nil {
		p.ctx.metrics.PublishLatency.WithLabelValues(topicName).Observe(elapsed.Seconds())
	}
	p.ctx.emitMandatory(telemetry.SeverityDebug, telemetry.KindPublish, topicName, elapsed, "")
	return seq, err
}

// Subscriber is a typed reference from a node to a topic plus a private
// read cursor.
type Subscriber[T any] struct {
	ctx    *Context
	handle *bus.SubscriberHandle
}

// CreateSubscriber creates (or attaches to) a topic named topicName sized
// for T and returns a typed subscriber owned by this context's node. Its
// cursor starts at the topic's current latest sequence: it never sees
// history published before this call.
func CreateSubscriber[T any](ctx *Context, topicName string) (*Subscriber[T], error) {
	topic, err := ctx.registry.CreateTopic(topicName, sizeOf[T](), bus.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	handle := topic.AttachSubscriber(ctx.node.Name())
	ctx.node.attachSubscriber(handle)
	return &Subscriber[T]{ctx: ctx, handle: handle}, nil
}

// TryRecv copies the freshest published message into out without
// blocking. ok is false when nothing has been published since the last
// call. overrun is nonzero when the writer lapped this subscriber's
// cursor since the last call.
func (s *Subscriber[T]) TryRecv(out *T) (ok bool, overrun uint64, err error) {
	topicName := s.handle.Topic().Name()
	backlogBefore := s.handle.Backlog()

	start := time.Now()
	status, skipped, _, _, err := s.handle.Topic().TryRecv(s.handle, toBytes(out))
	elapsed := time.Since(start)
	if err != nil {
		return false, 0, err
	}

	if s.ctx.metrics != nil {
		s.ctx.metrics.ReceiveLatency.WithLabelValues(topicName).Observe(elapsed.Seconds())
		s.ctx.metrics.TopicBacklog.WithLabelValues(topicName).Set(float64(backlogBefore))
	}

	s.ctx.emitMandatory(telemetry.SeverityDebug, telemetry.KindSubscribe, topicName, elapsed, "")
	if status == bus.Delivered && skipped > 0 {
		if s.ctx.metrics != nil {
			s.ctx.metrics.Overruns.WithLabelValues(topicName).Add(float64(skipped))
		}
		s.ctx.emitMandatory(telemetry.SeverityWarn, telemetry.KindTickOverrun, topicName, 0, "")
	}
	return status == bus.Delivered, skipped, nil
}
