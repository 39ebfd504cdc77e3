package eventsourcing

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// decodeFunc turns a serialized payload into a value of the registered type.
type decodeFunc func(s Serializer, data []byte) (Event, error)

// Registry owns the mapping between stored event type names and Go types.
// It is the only place event types are made known; a name that was never
// registered cannot be decoded.
//
// Registration happens during program setup. Registering the same name twice
// panics.
type Registry struct {
	mu      sync.RWMutex
	decoder map[string]decodeFunc
	names   map[reflect.Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoder: make(map[string]decodeFunc),
		names:   make(map[reflect.Type]string),
	}
}

// DefaultRegistry is used by DefaultCodec.
var DefaultRegistry = NewRegistry()

// RegisterEvent registers T under the name returned by its EventType method.
//
// Example Usage:
//
//	RegisterEvent[FamilyCreated](registry)
func RegisterEvent[T Event](r *Registry) {
	var zero T
	RegisterEventAs[T](r, zero.EventType())
}

// RegisterEventAs registers T under a custom name. Use it to keep decoding
// events that were stored under a former name.
//
// Panics:
//   - If the name is empty.
//   - If an event with the same name is already registered.
func RegisterEventAs[T Event](r *Registry, name string) {
	if name == "" {
		panic(fmt.Sprintf("cannot register %T under an empty name", *new(T)))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoder[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	r.decoder[name] = func(s Serializer, data []byte) (Event, error) {
		var ev T
		if err := s.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}

	typ := reflect.TypeFor[T]()
	if _, ok := r.names[typ]; !ok {
		r.names[typ] = name
	}
}

// Registered reports whether name can be decoded.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoder[name]
	return ok
}

// NameOf returns the name ev's type was first registered under.
func (r *Registry) NameOf(ev Event) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[reflect.TypeOf(ev)]
	return name, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.decoder))
	for name := range r.decoder {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) decode(name string, s Serializer, data []byte) (Event, error) {
	r.mu.RLock()
	dec, ok := r.decoder[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownEventTypeError{EventType: name}
	}
	ev, err := dec(s, data)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal event %q: %w", name, err)
	}
	return ev, nil
}
