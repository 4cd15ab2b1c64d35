package bus

import (
	"fmt"
	"sync"

	"github.com/horus-robotics/horus/internal/hfail"
)

// Registry is the process-wide table of topics. create_topic is idempotent:
// calling it again with the same name and shape returns the existing
// Topic; calling it with a different element size or capacity fails with
// hfail.ErrTopicShapeMismatch and never mutates the existing topic.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*Topic
}

// NewRegistry returns an empty registry. Most callers want Default, the
// process-wide singleton every Scheduler shares; NewRegistry exists for
// tests that need isolation from it.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, lazily constructed on first
// use. Every Scheduler running in the same process shares this registry,
// which is how two schedulers end up talking over the same topics.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// CreateTopic returns the named topic, creating it with the given shape if
// it does not already exist. capacity must be a power of two; 0 selects
// DefaultCapacity.
func (r *Registry) CreateTopic(name string, elementSize, capacity int) (*Topic, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("horus: topic %q capacity %d is not a positive power of two", name, capacity)
	}
	if elementSize <= 0 {
		return nil, fmt.Errorf("horus: topic %q element size %d must be positive", name, elementSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.topics[name]; ok {
		if existing.ElementSize() != elementSize || existing.Capacity() != capacity {
			return nil, fmt.Errorf("%w: topic %q exists with element size %d capacity %d, requested %d/%d",
				hfail.ErrTopicShapeMismatch, name, existing.ElementSize(), existing.Capacity(), elementSize, capacity)
		}
		return existing, nil
	}

	t := newTopic(name, elementSize, capacity)
	r.topics[name] = t
	return t, nil
}

// Lookup returns an already-created topic by name, without creating it.
func (r *Registry) Lookup(name string) (*Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	return t, ok
}

// Topics returns a snapshot of every topic currently registered, for the
// dashboard's /v1/topics endpoint.
func (r *Registry) Topics() []*Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	return out
}
