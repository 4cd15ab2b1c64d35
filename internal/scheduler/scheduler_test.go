package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/horus-robotics/horus/internal/bus"
	"github.com/horus-robotics/horus/internal/node"
)

// recorder is a node.Capability that appends its name to a shared,
// mutex-guarded log every time a callback runs, so tests can assert on
// call order.
type recorder struct {
	name string
	log  *callLog

	initErr     error
	tickErr     error
	afterNTicks int // once TickCount reaches this, Tick starts returning tickErr; 0 means always
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (r *recorder) Init(ctx *node.Context) error {
	r.log.add("init:" + r.name)
	return r.initErr
}

func (r *recorder) Tick(ctx *node.Context) error {
	r.log.add("tick:" + r.name)
	if r.tickErr != nil && (r.afterNTicks == 0 || ctx.TickCount() >= uint64(r.afterNTicks)) {
		return r.tickErr
	}
	return nil
}

func (r *recorder) Shutdown(ctx *node.Context) error {
	r.log.add("shutdown:" + r.name)
	return nil
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return New("test", WithRegistry(bus.NewRegistry()), WithTargetHz(1000))
}

func TestPriorityOrderingWithinATick(t *testing.T) {
	log := &callLog{}
	s := newTestScheduler(t)

	lowNode := &recorder{name: "low", log: log}
	highNode := &recorder{name: "high", log: log}
	critNode := &recorder{name: "crit", log: log}

	if _, err := s.Add("low", node.Low, false, lowNode); err != nil {
		t.Fatalf("Add(low): %v", err)
	}
	if _, err := s.Add("high", node.High, false, highNode); err != nil {
		t.Fatalf("Add(high): %v", err)
	}
	if _, err := s.Add("crit", node.Critical, false, critNode); err != nil {
		t.Fatalf("Add(crit): %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Stop()
	}()
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := log.snapshot()
	// Find the first full tick round and assert its relative order.
	var firstTicks []string
	for _, c := range calls {
		if len(c) >= 5 && c[:5] == "tick:" {
			firstTicks = append(firstTicks, c)
		}
		if len(firstTicks) == 3 {
			break
		}
	}
	if len(firstTicks) != 3 {
		t.Fatalf("expected at least one full tick round, got %v", calls)
	}
	if firstTicks[0] != "tick:crit" || firstTicks[1] != "tick:high" || firstTicks[2] != "tick:low" {
		t.Fatalf("expected priority order crit,high,low, got %v", firstTicks)
	}
}

func TestFailingInitDoesNotBlockPeers(t *testing.T) {
	log := &callLog{}
	s := newTestScheduler(t)

	failing := &recorder{name: "failing", log: log, initErr: errors.New("boom")}
	healthy := &recorder{name: "healthy", log: log}

	if _, err := s.Add("failing", node.Normal, false, failing); err != nil {
		t.Fatalf("Add(failing): %v", err)
	}
	healthyNode, err := s.Add("healthy", node.Normal, false, healthy)
	if err != nil {
		t.Fatalf("Add(healthy): %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Stop()
	}()
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if healthyNode.TickCount() == 0 {
		t.Fatalf("healthy node should have ticked despite its peer's init failure")
	}

	for _, r := range s.Nodes() {
		if r.Name() == "failing" && r.State() != node.Failed {
			t.Fatalf("node with failing init must end up Failed, got %v", r.State())
		}
	}
}

func TestCooperativeStopWithinOneTick(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{name: "n", log: &callLog{}}
	if _, err := s.Add("n", node.Normal, false, r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return within a reasonable bound after Stop")
	}

	// Stop must be safe to call again.
	s.Stop()
}

func TestShutdownTotalityInReversePriorityOrder(t *testing.T) {
	log := &callLog{}
	s := newTestScheduler(t)

	a := &recorder{name: "a", log: log}
	b := &recorder{name: "b", log: log}
	c := &recorder{name: "c", log: log}

	s.Add("a", node.Critical, false, a)
	s.Add("b", node.Normal, false, b)
	s.Add("c", node.Background, false, c)

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Stop()
	}()
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := log.snapshot()
	var shutdowns []string
	for _, call := range calls {
		if len(call) >= 9 && call[:9] == "shutdown:" {
			shutdowns = append(shutdowns, call)
		}
	}
	if len(shutdowns) != 3 {
		t.Fatalf("expected shutdown called for every node that reached Ready, got %v", shutdowns)
	}
	if shutdowns[0] != "shutdown:c" || shutdowns[1] != "shutdown:b" || shutdowns[2] != "shutdown:a" {
		t.Fatalf("expected reverse-priority shutdown order c,b,a, got %v", shutdowns)
	}
}

func TestConsecutiveTickErrorsMarkNodeFailed(t *testing.T) {
	log := &callLog{}
	s := newTestScheduler(t)

	flaky := &recorder{name: "flaky", log: log, tickErr: errors.New("tick failed")}
	flakyNode, err := s.Add("flaky", node.Normal, false, flaky)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Stop()
	}()
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if flakyNode.State() != node.Failed {
		t.Fatalf("expected node to be marked Failed after repeated tick errors, got %v", flakyNode.State())
	}
}

// selfStoppingNode holds a reference to the scheduler it will be
// registered with (injected at construction, outside Context) and calls
// Stop() from within its own Tick once it has completed stopAfter-1 prior
// ticks, exercising cooperative stop triggered from inside a tick rather
// than from an external goroutine.
type selfStoppingNode struct {
	sched     *Scheduler
	stopAfter int
}

func (n *selfStoppingNode) Init(ctx *node.Context) error { return nil }

func (n *selfStoppingNode) Tick(ctx *node.Context) error {
	if int(ctx.TickCount())+1 == n.stopAfter {
		n.sched.Stop()
	}
	return nil
}

func (n *selfStoppingNode) Shutdown(ctx *node.Context) error { return nil }

func TestCooperativeStopFromInsideATick(t *testing.T) {
	s := newTestScheduler(t)
	z := &selfStoppingNode{sched: s, stopAfter: 5}
	zNode, err := s.Add("z", node.Normal, false, z)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after a node called Stop from inside its own Tick")
	}

	if zNode.TickCount() != 5 {
		t.Fatalf("expected tick_count 5 when the node stopped the scheduler on its 5th tick, got %d", zNode.TickCount())
	}
	if zNode.State() != node.Terminated {
		t.Fatalf("expected full reverse-priority shutdown to still run, got state %v", zNode.State())
	}
}

func TestDuplicateNodeNameRejected(t *testing.T) {
	s := newTestScheduler(t)
	log := &callLog{}
	if _, err := s.Add("dup", node.Normal, false, &recorder{name: "dup", log: log}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("dup", node.Normal, false, &recorder{name: "dup", log: log}); err == nil {
		t.Fatalf("expected an error registering a duplicate node name")
	}
}
