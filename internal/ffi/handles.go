package ffi

import (
	"sync"

	"github.com/horus-robotics/horus/internal/hfail"
)

// Handle is the 32-bit opaque identifier that crosses the C ABI: the low
// 16 bits are a slot index, the high 16 bits a generation counter. Packing
// both into one value means a handle from a destroyed slot is rejected
// rather than silently reused once that slot is recycled.
type Handle uint32

func makeHandle(slot, generation uint16) Handle {
	return Handle(uint32(generation)<<16 | uint32(slot))
}

func (h Handle) slot() uint16       { return uint16(h & 0xFFFF) }
func (h Handle) generation() uint16 { return uint16(h >> 16) }

// slotTable is a generic generation-stamped handle table: a reusable slice
// of slots, each either free or holding a value plus the generation it was
// issued under. It never hands a raw pointer across the boundary — only
// the packed Handle — so foreign code can never forge a dereferenceable
// reference, only a stale or out-of-range index we can detect and reject.
type slotTable[T any] struct {
	mu    sync.Mutex
	slots []slotEntry[T]
	free  []uint16
}

type slotEntry[T any] struct {
	value      T
	generation uint16
	occupied   bool
}

func newSlotTable[T any]() *slotTable[T] {
	return &slotTable[T]{}
}

// Insert stores value in a free slot (recycling one if available) and
// returns the handle for it.
func (t *slotTable[T]) Insert(value T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		e := &t.slots[idx]
		e.value = value
		e.occupied = true
		return makeHandle(idx, e.generation)
	}

	idx := uint16(len(t.slots))
	t.slots = append(t.slots, slotEntry[T]{value: value, occupied: true})
	return makeHandle(idx, 0)
}

// Get resolves a handle to its value, failing with hfail.ErrUnknownHandle
// if the slot is out of range, free, or the generation does not match
// (i.e. the handle refers to a value that has since been destroyed).
func (t *slotTable[T]) Get(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	slot := h.slot()
	if int(slot) >= len(t.slots) {
		return zero, hfail.ErrUnknownHandle
	}
	e := &t.slots[slot]
	if !e.occupied || e.generation != h.generation() {
		return zero, hfail.ErrUnknownHandle
	}
	return e.value, nil
}

// Remove frees a handle's slot, bumping its generation so any copy of the
// old handle still floating around in foreign code is rejected by a
// subsequent Get rather than resolving to whatever gets inserted next.
func (t *slotTable[T]) Remove(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := h.slot()
	if int(slot) >= len(t.slots) {
		return hfail.ErrUnknownHandle
	}
	e := &t.slots[slot]
	if !e.occupied || e.generation != h.generation() {
		return hfail.ErrUnknownHandle
	}
	var zero T
	e.value = zero
	e.occupied = false
	e.generation++
	t.free = append(t.free, slot)
	return nil
}
