package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/horus-robotics/horus/internal/bus"
)

// State is a node's position in the lifecycle spec.md §3 names:
// Created → (Ready | Failed) → Ticking ↔ Ready → ShuttingDown → Terminated.
type State int32

const (
	Created State = iota
	Ready
	Ticking
	Failed
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Ticking:
		return "ticking"
	case Failed:
		return "failed"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultErrorThreshold is the number of consecutive tick failures that
// marks a node Failed and stops it being ticked again.
const DefaultErrorThreshold = 10

// Capability is the set of lifecycle entry points a node implements. It is
// the native-API mirror of the three FFI function pointers (init_fn,
// tick_fn, shutdown_fn): both shapes collapse to the same internal record.
type Capability interface {
	Init(ctx *Context) error
	Tick(ctx *Context) error
	Shutdown(ctx *Context) error
}

// Node is the scheduler's bookkeeping record for one registered
// Capability: its priority, lifecycle state, counters, and the set of bus
// handles it owns.
type Node struct {
	name           string
	priority       Priority
	loggingEnabled bool
	impl           Capability

	state      atomic.Int32
	everReady  atomic.Bool
	tickSeq    atomic.Uint64
	breaker    *gobreaker.CircuitBreaker[struct{}]
	failedAt   time.Time

	handleMu    sync.Mutex
	publishers  []*bus.PublisherHandle
	subscribers []*bus.SubscriberHandle
}

// New builds a Node record. errorThreshold <= 0 selects
// DefaultErrorThreshold.
func New(name string, priority Priority, enableLogging bool, impl Capability, errorThreshold int) *Node {
	if errorThreshold <= 0 {
		errorThreshold = DefaultErrorThreshold
	}

	n := &Node{
		name:           name,
		priority:       priority,
		loggingEnabled: enableLogging,
		impl:           impl,
	}
	n.state.Store(int32(Created))

	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,              // never reset counts on a timer; only a full run restarts them
		Timeout:     365 * 24 * time.Hour, // effectively never half-open: Failed is terminal, the scheduler enforces that by simply never calling Execute again
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(errorThreshold)
		},
	})
	return n
}

func (n *Node) Name() string            { return n.name }
func (n *Node) Priority() Priority       { return n.priority }
func (n *Node) LoggingEnabled() bool     { return n.loggingEnabled }
func (n *Node) State() State             { return State(n.state.Load()) }
func (n *Node) TickCount() uint64        { return n.tickSeq.Load() }
func (n *Node) ConsecutiveErrors() uint32 { return n.breaker.Counts().ConsecutiveFailures }

func (n *Node) setState(s State) { n.state.Store(int32(s)) }

// Init runs the node's init callback once, transitioning Created → Ready
// on success or Created → Failed on error. It is only ever called once,
// before the tick loop begins.
func (n *Node) Init(ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("horus: node %q panicked during init: %v", n.name, r)
		}
		if err != nil {
			n.setState(Failed)
			n.failedAt = time.Now()
		} else {
			n.setState(Ready)
			n.everReady.Store(true)
		}
	}()
	return n.impl.Init(ctx)
}

// RunTick invokes the node's tick callback through its circuit breaker,
// recovering panics into errors. On success it increments tick_count and
// returns to Ready. On failure it leaves the node Ready (retried next
// tick) unless consecutive failures have crossed the threshold, in which
// case the node is marked Failed and will not be ticked again.
func (n *Node) RunTick(ctx *Context) error {
	n.setState(Ticking)

	_, err := n.breaker.Execute(func() (out struct{}, tickErr error) {
		defer func() {
			if r := recover(); r != nil {
				tickErr = fmt.Errorf("horus: node %q panicked during tick: %v", n.name, r)
			}
		}()
		tickErr = n.impl.Tick(ctx)
		return struct{}{}, tickErr
	})

	if err != nil {
		if n.breaker.State() == gobreaker.StateOpen {
			n.setState(Failed)
			n.failedAt = time.Now()
		} else {
			n.setState(Ready)
		}
		return err
	}

	n.tickSeq.Add(1)
	n.setState(Ready)
	return nil
}

// Shutdown runs the node's shutdown callback, transitioning
// ShuttingDown → Terminated regardless of whether it returns an error: the
// scheduler's shutdown phase must call every Ready-reached node exactly
// once and complete regardless of individual failures.
func (n *Node) Shutdown(ctx *Context) (err error) {
	n.setState(ShuttingDown)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("horus: node %q panicked during shutdown: %v", n.name, r)
		}
		n.setState(Terminated)
	}()
	return n.impl.Shutdown(ctx)
}

// EverReachedReady reports whether this node successfully initialised at
// least once, i.e. whether the shutdown phase owes it a Shutdown call.
func (n *Node) EverReachedReady() bool {
	return n.everReady.Load()
}

func (n *Node) attachPublisher(p *bus.PublisherHandle) {
	n.handleMu.Lock()
	n.publishers = append(n.publishers, p)
	n.handleMu.Unlock()
}

func (n *Node) attachSubscriber(s *bus.SubscriberHandle) {
	n.handleMu.Lock()
	n.subscribers = append(n.subscribers, s)
	n.handleMu.Unlock()
}

// ReleaseHandles detaches every publisher/subscriber this node owns from
// their topics, called once the node has terminated.
func (n *Node) ReleaseHandles() {
	n.handleMu.Lock()
	defer n.handleMu.Unlock()
	for _, p := range n.publishers {
		p.Topic().DetachPublisher(p)
	}
	for _, s := range n.subscribers {
		s.Topic().DetachSubscriber(s)
	}
	n.publishers = nil
	n.subscribers = nil
}
