// Package scheduler implements the fixed-rate cooperative tick loop: node
// registration in priority order, a best-effort periodic tick, cooperative
// stop, and totality-guaranteed reverse-priority shutdown.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/horus-robotics/horus/internal/bus"
	"github.com/horus-robotics/horus/internal/hfail"
	"github.com/horus-robotics/horus/internal/node"
	"github.com/horus-robotics/horus/internal/telemetry"
)

// DefaultHz is the target tick rate used when a caller does not override
// it: best-effort 60 Hz.
const DefaultHz = 60

// registration is one entry in the scheduler's priority-ordered node list:
// the node record plus the insertion index, so nodes of equal priority
// keep registration order (stable priority sort).
type registration struct {
	n     *node.Node
	index int
}

// Scheduler owns the node table, the tick loop, and the shared bus
// registry and telemetry facilities every node's Context reaches through.
type Scheduler struct {
	name           string
	runID          uuid.UUID
	targetPeriod   time.Duration
	errorThreshold int

	registry *bus.Registry
	ring     *telemetry.Ring
	throttle *telemetry.Throttler
	metrics  *telemetry.Metrics

	mu        sync.Mutex
	nodeNames map[string]struct{}
	nodes     []registration
	contexts  map[string]*node.Context

	running     atomic.Bool
	startedAt   time.Time
	tickSeq     atomic.Uint64
	lastDropped uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithRegistry overrides the process-wide bus.Default() registry, used by
// tests that need isolation between scheduler instances.
func WithRegistry(r *bus.Registry) Option {
	return func(s *Scheduler) { s.registry = r }
}

// WithRing overrides the default-sized telemetry ring.
func WithRing(r *telemetry.Ring) Option {
	return func(s *Scheduler) { s.ring = r }
}

// WithMetrics attaches a prometheus-backed Metrics collector; nil (the
// default) leaves metrics unexported.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTargetHz overrides DefaultHz.
func WithTargetHz(hz float64) Option {
	return func(s *Scheduler) {
		if hz > 0 {
			s.targetPeriod = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithErrorThreshold overrides node.DefaultErrorThreshold for every node
// this scheduler registers.
func WithErrorThreshold(n int) Option {
	return func(s *Scheduler) { s.errorThreshold = n }
}

// New constructs a Scheduler. It does not start ticking until Run is
// called.
func New(name string, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:           name,
		runID:          uuid.New(),
		targetPeriod:   time.Second / DefaultHz,
		errorThreshold: node.DefaultErrorThreshold,
		registry:       bus.Default(),
		ring:           telemetry.NewRing(telemetry.DefaultRingSize),
		throttle:       telemetry.NewThrottler(0, 0),
		nodeNames:      make(map[string]struct{}),
		contexts:       make(map[string]*node.Context),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler's configured name.
func (s *Scheduler) Name() string { return s.name }

// RunID returns the uuid assigned at construction, reported in the
// dashboard's /v1/status response. Telemetry events do not carry it.
func (s *Scheduler) RunID() uuid.UUID { return s.runID }

// Ring returns the telemetry ring this scheduler's nodes write into.
func (s *Scheduler) Ring() *telemetry.Ring { return s.ring }

// Registry returns the bus registry this scheduler's nodes publish and
// subscribe through.
func (s *Scheduler) Registry() *bus.Registry { return s.registry }

// Uptime returns the time elapsed since Run was called, or zero if it has
// not started.
func (s *Scheduler) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// TickSeq returns the number of tick cycles completed so far.
func (s *Scheduler) TickSeq() uint64 { return s.tickSeq.Load() }

// Nodes returns every registered node, in registration order.
func (s *Scheduler) Nodes() []*node.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*node.Node, len(s.nodes))
	for i, r := range s.nodes {
		out[i] = r.n
	}
	return out
}

// Node returns a registered node by name, or hfail.ErrNodeNotFound if no
// node with that name was ever registered.
func (s *Scheduler) Node(name string) (*node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.nodes {
		if r.n.Name() == name {
			return r.n, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", hfail.ErrNodeNotFound, name)
}

// Add registers a node's Capability set with a priority and a
// logging-enabled flag. Returns hfail.ErrDuplicateNode if name is already
// registered, or hfail.ErrAlreadyRunning once Run has started: nodes may
// only be added before the tick loop begins.
func (s *Scheduler) Add(name string, priority node.Priority, enableLogging bool, impl node.Capability) (*node.Node, error) {
	if s.running.Load() {
		return nil, hfail.ErrAlreadyRunning
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodeNames[name]; exists {
		return nil, fmt.Errorf("%w: %q", hfail.ErrDuplicateNode, name)
	}

	n := node.New(name, priority, enableLogging, impl, s.errorThreshold)
	s.nodeNames[name] = struct{}{}
	s.nodes = append(s.nodes, registration{n: n, index: len(s.nodes)})
	s.contexts[name] = node.NewContext(n, s.registry, s.ring, s.throttle, s.metrics)
	return n, nil
}

func (s *Scheduler) sortedByPriority() []registration {
	s.mu.Lock()
	ordered := make([]registration, len(s.nodes))
	copy(ordered, s.nodes)
	s.mu.Unlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].n.Priority() < ordered[j].n.Priority()
	})
	return ordered
}

func (s *Scheduler) emitLifecycle(n *node.Node, kind telemetry.Kind, severity telemetry.Severity, text string) {
	if !n.LoggingEnabled() {
		return
	}
	s.ring.Append(telemetry.Event{
		TimestampNs: time.Now().UnixNano(),
		NodeName:    n.Name(),
		Severity:    severity,
		Kind:        kind,
		Text:        text,
	})
}

// emitTickError reports a single tick's failure. Unlike emitLifecycle, it
// is gated by the per-node write throttle: a node that keeps failing below
// its error threshold would otherwise emit one KindLifecycleTick event
// every tick forever, the structured-log storm the throttle exists for.
func (s *Scheduler) emitTickError(n *node.Node, text string) {
	if !n.LoggingEnabled() {
		return
	}
	if s.throttle != nil && !s.throttle.Allow(n.Name()) {
		if s.metrics != nil {
			s.metrics.ThrottledWrites.WithLabelValues(n.Name()).Inc()
		}
		return
	}
	s.ring.Append(telemetry.Event{
		TimestampNs: time.Now().UnixNano(),
		NodeName:    n.Name(),
		Severity:    telemetry.SeverityError,
		Kind:        telemetry.KindLifecycleTick,
		Text:        text,
	})
}

// setNodeState updates the node's lifecycle gauge, when metrics are
// attached: 1 for the state the node is now in, 0 for every other state.
func (s *Scheduler) setNodeState(n *node.Node, st node.State) {
	if s.metrics == nil {
		return
	}
	for _, candidate := range []node.State{node.Created, node.Ready, node.Ticking, node.Failed, node.ShuttingDown, node.Terminated} {
		v := 0.0
		if candidate == st {
			v = 1.0
		}
		s.metrics.NodeState.WithLabelValues(n.Name(), candidate.String()).Set(v)
	}
}

// Run executes the full lifecycle: priority-ordered init (with per-node
// failure isolation), the tick loop at the configured target rate, and
// reverse-priority shutdown of every node that ever reached Ready. It
// blocks until Stop is called; the tick loop never exits on its own.
func (s *Scheduler) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return hfail.ErrAlreadyRunning
	}
	s.startedAt = time.Now()

	ordered := s.sortedByPriority()

	for _, r := range ordered {
		ctx := s.contexts[r.n.Name()]
		if err := r.n.Init(ctx); err != nil {
			s.emitLifecycle(r.n, telemetry.KindLifecycleFailed, telemetry.SeverityError, err.Error())
			s.setNodeState(r.n, r.n.State())
			continue
		}
		s.emitLifecycle(r.n, telemetry.KindLifecycleInit, telemetry.SeverityInfo, "")
		s.setNodeState(r.n, r.n.State())
	}

	s.tickLoop(ordered)
	s.shutdownPhase(ordered)

	return nil
}

func (s *Scheduler) tickLoop(ordered []registration) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		t0 := time.Now()

		for _, r := range ordered {
			if r.n.State() != node.Ready {
				continue
			}
			ctx := s.contexts[r.n.Name()]

			tickStart := time.Now()
			err := r.n.RunTick(ctx)
			if s.metrics != nil {
				s.metrics.TickDuration.WithLabelValues(r.n.Name()).Observe(time.Since(tickStart).Seconds())
			}

			if err != nil {
				s.emitTickError(r.n, err.Error())
				if r.n.State() == node.Failed {
					s.emitLifecycle(r.n, telemetry.KindLifecycleFailed, telemetry.SeverityError, "consecutive tick error threshold exceeded")
				}
			}
			s.setNodeState(r.n, r.n.State())
		}

		s.tickSeq.Add(1)
		elapsed := time.Since(t0)

		if s.metrics != nil {
			dropped := s.ring.Dropped()
			if delta := dropped - s.lastDropped; delta > 0 {
				s.metrics.DroppedRecords.Add(float64(delta))
			}
			s.lastDropped = dropped
		}

		if elapsed >= s.targetPeriod {
			if s.metrics != nil {
				s.metrics.TickOverruns.WithLabelValues(s.name).Inc()
			}
			s.ring.Append(telemetry.Event{
				TimestampNs: time.Now().UnixNano(),
				NodeName:    s.name,
				Severity:    telemetry.SeverityWarn,
				Kind:        telemetry.KindTickOverrun,
				DurationNs:  (elapsed - s.targetPeriod).Nanoseconds(),
			})
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(s.targetPeriod - elapsed):
		}
	}
}

func (s *Scheduler) shutdownPhase(ordered []registration) {
	for i := len(ordered) - 1; i >= 0; i-- {
		r := ordered[i]
		if !r.n.EverReachedReady() {
			continue
		}
		ctx := s.contexts[r.n.Name()]
		if err := r.n.Shutdown(ctx); err != nil {
			s.emitLifecycle(r.n, telemetry.KindLifecycleShutdown, telemetry.SeverityError, err.Error())
		} else {
			s.emitLifecycle(r.n, telemetry.KindLifecycleShutdown, telemetry.SeverityInfo, "")
		}
		s.setNodeState(r.n, r.n.State())
		r.n.ReleaseHandles()
	}
}

// Stop cooperatively breaks the tick loop. It is idempotent and safe to
// call from any goroutine, including a signal handler or an HTTP request
// handler on the dashboard server.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
