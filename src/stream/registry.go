package stream

import (
	"fmt"
	"sync"

	"trading-console/src/events"
)

// Observer receives envelopes of the kind it subscribed to
type Observer func(env events.Envelope)

type registration struct {
	id uint64
	fn Observer
}

// -----------------------------------------------------------------------------

// Registry maps event kinds to observers. Per-kind lists are copy-on-write,
// so a dispatch keeps iterating the list it started with while observers
// subscribe or unsubscribe underneath it.
type Registry struct {
	mu        sync.RWMutex
	nextID    uint64
	observers map[events.Kind][]registration
}

func NewRegistry() *Registry {
	return &Registry{observers: make(map[events.Kind][]registration)}
}

// -----------------------------------------------------------------------------

// Subscribe registers fn for kind. The returned func removes exactly this
// registration and may be called any number of times.
func (r *Registry) Subscribe(kind events.Kind, fn Observer) func() {
	if !kind.Valid() {
		panic(fmt.Sprintf("stream: subscribe to unknown kind %q", kind))
	}
	if fn == nil {
		panic("stream: nil observer")
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	current := r.observers[kind]
	next := make([]registration, len(current), len(current)+1)
	copy(next, current)
	r.observers[kind] = append(next, registration{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(kind, id) })
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) remove(kind events.Kind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.observers[kind]
	next := make([]registration, 0, len(current))
	for _, reg := range current {
		if reg.id != id {
			next = append(next, reg)
		}
	}
	if len(next) == 0 {
		delete(r.observers, kind)
		return
	}
	r.observers[kind] = next
}

// -----------------------------------------------------------------------------

// snapshot returns the observers registered for kind right now.
// The slice is never mutated afterwards.
func (r *Registry) snapshot(kind events.Kind) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observers[kind]
}

// -----------------------------------------------------------------------------

// Count returns the number of observers for kind
func (r *Registry) Count(kind events.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers[kind])
}
