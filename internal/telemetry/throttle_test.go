package telemetry

import "testing"

func TestThrottlerAllowsWithinBurstThenSuppresses(t *testing.T) {
	th := NewThrottler(1, 2) // 1 rps, burst 2

	allowed := 0
	for i := 0; i < 5; i++ {
		if th.Allow("node-a") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("expected exactly burst (2) writes allowed immediately, got %d", allowed)
	}
	if th.DroppedFor("node-a") != 3 {
		t.Fatalf("expected 3 suppressed writes counted, got %d", th.DroppedFor("node-a"))
	}
}

func TestThrottlerKeysAreIndependentPerNode(t *testing.T) {
	th := NewThrottler(1, 1)

	if !th.Allow("a") {
		t.Fatalf("expected node a's first write to be allowed")
	}
	if !th.Allow("b") {
		t.Fatalf("expected node b's independent bucket to allow its first write")
	}
	if th.Allow("a") {
		t.Fatalf("expected node a's second immediate write to be suppressed")
	}
}

func TestThrottlerReset(t *testing.T) {
	th := NewThrottler(1, 1)
	th.Allow("a")
	if th.Allow("a") {
		t.Fatalf("expected the bucket to be empty before reset")
	}
	th.Reset("a")
	if !th.Allow("a") {
		t.Fatalf("expected a fresh bucket immediately after Reset")
	}
}
