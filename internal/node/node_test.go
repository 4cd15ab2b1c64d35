package node

import (
	"errors"
	"testing"
)

type scriptedCapability struct {
	initErr     error
	tickErrs    []error // consumed in order; once exhausted, Tick succeeds
	tickCalls   int
	shutdownErr error
	panicOnTick bool
}

func (s *scriptedCapability) Init(ctx *Context) error { return s.initErr }

func (s *scriptedCapability) Tick(ctx *Context) error {
	if s.panicOnTick {
		panic("scripted panic")
	}
	defer func() { s.tickCalls++ }()
	if s.tickCalls < len(s.tickErrs) {
		return s.tickErrs[s.tickCalls]
	}
	return nil
}

func (s *scriptedCapability) Shutdown(ctx *Context) error { return s.shutdownErr }

func TestInitFailureMarksNodeFailed(t *testing.T) {
	n := New("n", Normal, false, &scriptedCapability{initErr: errors.New("boom")}, 0)
	if err := n.Init(nil); err == nil {
		t.Fatalf("expected Init to return an error")
	}
	if n.State() != Failed {
		t.Fatalf("expected Failed after init error, got %v", n.State())
	}
	if n.EverReachedReady() {
		t.Fatalf("a node whose init failed must never have reached Ready")
	}
}

func TestInitSuccessMarksNodeReady(t *testing.T) {
	n := New("n", Normal, false, &scriptedCapability{}, 0)
	if err := n.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if n.State() != Ready {
		t.Fatalf("expected Ready after successful init, got %v", n.State())
	}
	if !n.EverReachedReady() {
		t.Fatalf("expected EverReachedReady true after successful init")
	}
}

func TestTickSuccessIncrementsTickCount(t *testing.T) {
	n := New("n", Normal, false, &scriptedCapability{}, 0)
	_ = n.Init(nil)

	ctx := &Context{node: n}
	if err := n.RunTick(ctx); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if n.TickCount() != 1 {
		t.Fatalf("expected tick_count 1, got %d", n.TickCount())
	}
	if n.State() != Ready {
		t.Fatalf("expected Ready after a successful tick, got %v", n.State())
	}
}

func TestTickFailureLeavesNodeReadyUntilThreshold(t *testing.T) {
	cap := &scriptedCapability{tickErrs: []error{errors.New("e1"), errors.New("e2")}}
	n := New("n", Normal, false, cap, 5)
	_ = n.Init(nil)
	ctx := &Context{node: n}

	if err := n.RunTick(ctx); err == nil {
		t.Fatalf("expected the first tick error to propagate")
	}
	if n.State() != Ready {
		t.Fatalf("expected node to stay Ready below the error threshold, got %v", n.State())
	}
}

func TestConsecutiveTickErrorsExceedingThresholdMarksFailed(t *testing.T) {
	cap := &scriptedCapability{tickErrs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	n := New("n", Normal, false, cap, 2)
	_ = n.Init(nil)
	ctx := &Context{node: n}

	_ = n.RunTick(ctx) // 1st consecutive failure
	_ = n.RunTick(ctx) // 2nd consecutive failure, threshold 2 -> Failed

	if n.State() != Failed {
		t.Fatalf("expected Failed once consecutive failures reach the threshold, got %v", n.State())
	}
}

func TestPanicDuringTickIsRecoveredAsError(t *testing.T) {
	n := New("n", Normal, false, &scriptedCapability{panicOnTick: true}, 5)
	_ = n.Init(nil)
	ctx := &Context{node: n}

	if err := n.RunTick(ctx); err == nil {
		t.Fatalf("expected a panic inside tick to surface as an error")
	}
	if n.State() != Ready {
		t.Fatalf("a single recovered panic must not immediately fail the node, got %v", n.State())
	}
}

func TestShutdownAlwaysReachesTerminated(t *testing.T) {
	n := New("n", Normal, false, &scriptedCapability{shutdownErr: errors.New("shutdown failed")}, 0)
	_ = n.Init(nil)
	ctx := &Context{node: n}

	_ = n.Shutdown(ctx)
	if n.State() != Terminated {
		t.Fatalf("expected Terminated regardless of a shutdown error, got %v", n.State())
	}
}
