package eventsourcing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Registry maps event type names to factories so durable stores can decode
// persisted payloads back into concrete Event values.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Event
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Event)}
}

// DefaultRegistry is used by the package level helpers and by the bundled stores
// unless they are given a registry of their own.
var DefaultRegistry = NewRegistry()

// Register adds a factory under the EventType() of the event it produces.
// The factory should return a pointer so the payload can be unmarshalled into it.
//
// Panics if fn is nil, returns nil, or if the name is already registered.
func (r *Registry) Register(fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}
	ev := fn()
	if ev == nil {
		panic("factory returned nil event")
	}
	name := ev.EventType()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}
	r.factories[name] = fn
}

// New creates a fresh instance of a registered event.
func (r *Registry) New(name string) (Event, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotRegistered, name)
	}
	return factory(), nil
}

// Encode serialises the event payload as JSON. Unregistered types are refused
// because nothing could decode them later.
func (r *Registry) Encode(ev Event) (string, []byte, error) {
	r.mu.RLock()
	_, ok := r.factories[ev.EventType()]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrEventNotRegistered, ev.EventType())
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("encode event %q: %w", ev.EventType(), err)
	}
	return ev.EventType(), data, nil
}

// Decode rebuilds an event from its type name and JSON payload. Pointer factories
// are dereferenced so callers always see the value type that was encoded.
func (r *Registry) Decode(name string, data []byte) (Event, error) {
	ev, err := r.New(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode event %q: %w", name, err)
	}

	v := reflect.ValueOf(ev)
	if v.Kind() == reflect.Pointer {
		if value, ok := v.Elem().Interface().(Event); ok {
			return value, nil
		}
	}
	return ev, nil
}

// RegisterEvent registers a factory in DefaultRegistry.
func RegisterEvent(fn func() Event) {
	DefaultRegistry.Register(fn)
}

// TypeName returns the registered name of an event.
func TypeName(ev Event) string {
	if ev == nil {
		return "<nil>"
	}
	return ev.EventType()
}
