package channel

import (
	"errors"
	"sync"
)

var ErrAdapterNotFound = errors.New("channel adapter not found")

// Registry holds the registered adapters keyed by channel type.
// Registration happens during startup; lookups run on every inbound
// and outbound message.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Type]Adapter)}
}

// Register stores the adapter under its own declared type, replacing
// any previous registration for that channel.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Get returns the adapter for t.
func (r *Registry) Get(t Type) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	if !ok {
		return nil, ErrAdapterNotFound
	}
	return a, nil
}

// Sender returns the adapter for t if it can deliver outbound
// messages.
func (r *Registry) Sender(t Type) (Sender, error) {
	a, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	s, ok := a.(Sender)
	if !ok {
		return nil, ErrAdapterNotFound
	}
	return s, nil
}

// Registered lists the channel types with an adapter installed.
func (r *Registry) Registered() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.adapters))
	for _, t := range Types() {
		if _, ok := r.adapters[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
