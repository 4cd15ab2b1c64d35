package telemetry

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultThrottleRPS and DefaultThrottleBurst bound how many telemetry
// writes a single node may push per second before Throttler starts
// reporting them as dropped-by-throttle instead of appending them to the
// ring — protection against a stuck node's tick emitting one TickError
// every tick and drowning everything else.
const (
	DefaultThrottleRPS   = 20
	DefaultThrottleBurst = 40
)

// Throttler rate-limits telemetry writes per node name. It is adapted from
// a host-keyed HTTP outbound limiter: the same token-bucket-per-key shape,
// keyed here by the emitting node instead of a remote host.
type Throttler struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int

	droppedMu sync.Mutex
	dropped   map[string]uint64
}

// NewThrottler builds a throttler with the given per-node rate and burst.
// rps <= 0 selects DefaultThrottleRPS; burst <= 0 selects
// DefaultThrottleBurst.
func NewThrottler(rps float64, burst int) *Throttler {
	if rps <= 0 {
		rps = DefaultThrottleRPS
	}
	if burst <= 0 {
		burst = DefaultThrottleBurst
	}
	return &Throttler{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		dropped:  make(map[string]uint64),
	}
}

func (t *Throttler) limiterFor(node string) *rate.Limiter {
	t.mu.RLock()
	l, ok := t.limiters[node]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.limiters[node]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(t.rps), t.burst)
	t.limiters[node] = l
	return l
}

// Allow reports whether a telemetry write from node may proceed right now.
// When it returns false, the caller must not append to the ring; Allow has
// already counted the suppressed write, so the total loss stays observable
// through DroppedFor.
func (t *Throttler) Allow(node string) bool {
	if t.limiterFor(node).Allow() {
		return true
	}
	t.droppedMu.Lock()
	t.dropped[node]++
	t.droppedMu.Unlock()
	return false
}

// DroppedFor returns how many writes from node have been suppressed by the
// throttle since construction.
func (t *Throttler) DroppedFor(node string) uint64 {
	t.droppedMu.Lock()
	defer t.droppedMu.Unlock()
	return t.dropped[node]
}

// SetRate adjusts the rate and burst for a single node, e.g. from a run
// manifest override.
func (t *Throttler) SetRate(node string, rps float64, burst int) {
	l := t.limiterFor(node)
	l.SetLimit(rate.Limit(rps))
	l.SetBurst(burst)
}

// Reset clears a node's accumulated token-bucket and dropped-write state.
func (t *Throttler) Reset(node string) {
	t.mu.Lock()
	delete(t.limiters, node)
	t.mu.Unlock()

	t.droppedMu.Lock()
	delete(t.dropped, node)
	t.droppedMu.Unlock()
}

// NextAllowedAt reports when node's next write would be allowed if none of
// its current tokens are spent in the meantime; used for diagnostics.
func (t *Throttler) NextAllowedAt(node string) time.Time {
	r := t.limiterFor(node).Reserve()
	defer r.Cancel()
	if r.Delay() == 0 {
		return time.Now()
	}
	return time.Now().Add(r.Delay())
}
