// Package bus implements the HORUS topic bus: named, typed, single-host
// shared-memory-shaped publish/subscribe channels. Each Topic is a ring
// buffer with a short reservation critical section on the writer path and
// per-subscriber cursors so readers never contend with each other.
package bus

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/horus-robotics/horus/internal/hfail"
)

// DefaultCapacity is the ring length used when a caller does not specify
// one. It is a power of two so index arithmetic stays branch-free.
const DefaultCapacity = 64

// RecvStatus is the outcome of a TryRecv call.
type RecvStatus int

const (
	// Empty means no message has been published since the subscriber's
	// cursor position; latest_seq == read_seq.
	Empty RecvStatus = iota
	// Delivered means the freshest message was copied into the caller's
	// buffer and the cursor advanced to latest_seq.
	Delivered
)

func (s RecvStatus) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "empty"
}

type ringSlot struct {
	seq         atomic.Uint64 // sequence number currently occupying this slot, 0 = never written
	sourceNode  string
	timestampNs int64
	payload     []byte
}

// Topic is a named, fixed-element-size ring shared by every publisher and
// subscriber attached to it. Exactly one Topic backs a given name across
// the process.
type Topic struct {
	name        string
	elementSize int
	capacity    int
	mask        uint64

	reserveSeq atomic.Uint64 // last reservation handed out
	latestSeq  atomic.Uint64 // last committed (visible) sequence
	slots      []ringSlot

	mu          sync.Mutex // guards publisher/subscriber identity sets only
	publishers  map[string]struct{}
	subscribers map[string]struct{}
}

func newTopic(name string, elementSize, capacity int) *Topic {
	t := &Topic{
		name:        name,
		elementSize: elementSize,
		capacity:    capacity,
		mask:        uint64(capacity - 1),
		slots:       make([]ringSlot, capacity),
		publishers:  make(map[string]struct{}),
		subscribers: make(map[string]struct{}),
	}
	for i := range t.slots {
		t.slots[i].payload = make([]byte, elementSize)
	}
	return t
}

// Name returns the topic's unique name.
func (t *Topic) Name() string { return t.name }

// ElementSize returns the fixed payload size, in bytes, every publish on
// this topic must match.
func (t *Topic) ElementSize() int { return t.elementSize }

// Capacity returns the ring length.
func (t *Topic) Capacity() int { return t.capacity }

// LatestSeq returns the most recently committed sequence number.
func (t *Topic) LatestSeq() uint64 { return t.latestSeq.Load() }

// Counts returns the current publisher and subscriber counts, for
// telemetry and the dashboard's topic-metadata endpoint.
func (t *Topic) Counts() (publishers, subscribers int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.publishers), len(t.subscribers)
}

// PublisherHandle is an owning, opaque reference from a node to a topic.
type PublisherHandle struct {
	topic  *Topic
	nodeID string
}

// Topic returns the topic this handle publishes to.
func (p *PublisherHandle) Topic() *Topic { return p.topic }

// SubscriberHandle is a reference from a node to a topic plus a private
// read cursor. read_seq <= latest_seq is the cursor invariant.
type SubscriberHandle struct {
	topic   *Topic
	nodeID  string
	readSeq uint64
}

// Topic returns the topic this handle reads from.
func (s *SubscriberHandle) Topic() *Topic { return s.topic }

// Backlog returns latest_seq - read_seq, the number of unread publishes.
func (s *SubscriberHandle) Backlog() uint64 {
	return s.topic.LatestSeq() - s.readSeq
}

// AttachPublisher creates a publisher handle owned by nodeID.
func (t *Topic) AttachPublisher(nodeID string) *PublisherHandle {
	t.mu.Lock()
	t.publishers[nodeID] = struct{}{}
	t.mu.Unlock()
	return &PublisherHandle{topic: t, nodeID: nodeID}
}

// AttachSubscriber creates a subscriber handle owned by nodeID. Its read
// cursor starts at the topic's current latest sequence: new subscribers
// never see history.
func (t *Topic) AttachSubscriber(nodeID string) *SubscriberHandle {
	t.mu.Lock()
	t.subscribers[nodeID] = struct{}{}
	t.mu.Unlock()
	return &SubscriberHandle{topic: t, nodeID: nodeID, readSeq: t.latestSeq.Load()}
}

// DetachPublisher releases a publisher's identity from the topic.
func (t *Topic) DetachPublisher(p *PublisherHandle) {
	t.mu.Lock()
	delete(t.publishers, p.nodeID)
	t.mu.Unlock()
}

// DetachSubscriber releases a subscriber's identity from the topic.
func (t *Topic) DetachSubscriber(s *SubscriberHandle) {
	t.mu.Lock()
	delete(t.subscribers, s.nodeID)
	t.mu.Unlock()
}

// Publish reserves the next slot, copies payload into it, and commits by
// atomically advancing latest_seq only after the payload and header are
// written. Sequence numbers are strictly increasing per topic.
//
// Fails with hfail.ErrPayloadSizeMismatch if len(payload) != ElementSize();
// the ring is left untouched in that case.
func (t *Topic) Publish(p *PublisherHandle, payload []byte) (seq uint64, err error) {
	if len(payload) != t.elementSize {
		return 0, fmt.Errorf("%w: topic %q wants %d bytes, got %d", hfail.ErrPayloadSizeMismatch, t.name, t.elementSize, len(payload))
	}

	seq = t.reserveSeq.Add(1)
	idx := (seq - 1) & t.mask
	slot := &t.slots[idx]

	copy(slot.payload, payload)

	// Commits must become visible in sequence order: spin until it's this
	// reservation's turn, matching the "short critical section on
	// reservation, payload copy outside it" design.
	for t.latestSeq.Load() != seq-1 {
		runtime.Gosched()
	}

	ts := time.Now().UnixNano()
	slot.sourceNode = p.nodeID
	slot.timestampNs = ts
	slot.seq.Store(seq)
	t.latestSeq.Store(seq)

	return seq, nil
}

// TryRecv delivers the freshest published message, if any, into out (which
// must be exactly ElementSize() bytes). If the writer lapped the reader's
// cursor since the last call, the skipped-slot count (excluding the
// freshest slot just delivered) is returned as overrun; the cursor still
// resynchronises to latest_seq so the next call starts clean.
func (t *Topic) TryRecv(s *SubscriberHandle, out []byte) (status RecvStatus, overrun uint64, sourceNode string, timestampNs int64, err error) {
	if len(out) != t.elementSize {
		return Empty, 0, "", 0, fmt.Errorf("%w: topic %q wants %d bytes, got %d", hfail.ErrPayloadSizeMismatch, t.name, t.elementSize, len(out))
	}

	for {
		latest := t.latestSeq.Load()
		if latest == s.readSeq {
			return Empty, 0, "", 0, nil
		}

		idx := (latest - 1) & t.mask
		slot := &t.slots[idx]

		seqBefore := slot.seq.Load()
		if seqBefore != latest {
			// A newer publish is mid-flight for this slot; retry.
			continue
		}
		copy(out, slot.payload)
		node := slot.sourceNode
		ts := slot.timestampNs
		if slot.seq.Load() != seqBefore {
			// Torn read: the slot was overwritten while we copied it out.
			continue
		}

		backlog := latest - s.readSeq
		skipped := uint64(0)
		if backlog > uint64(t.capacity) {
			skipped = backlog - uint64(t.capacity)
		}

		s.readSeq = latest
		return Delivered, skipped, node, ts, nil
	}
}
