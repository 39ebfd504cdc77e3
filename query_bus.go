package eventsourcing

import (
	"fmt"
	"reflect"
	"sync"
)

// QueryBus acts as a central registry for query handlers. It stores
// handlers keyed by their query and result types, allowing multiple
// query types to be registered in a single bus.
//
// Handlers are executed through a typed GenericQueryGateway. Queries run on
// the caller's goroutine; unlike commands they are not serialized per
// aggregate.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[GetFamily, *Family](bus, NewQueryHandlerFunc(getFamily))
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[string]any
}

// NewQueryBus creates a new, empty QueryBus.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[string]any),
	}
}

// RegisterQueryHandler registers a QueryHandler for a specific query and
// result type on the provided QueryBus. It panics with ErrDuplicateHandler if
// a handler is already registered for the pair.
func RegisterQueryHandler[T Query, R any](bus *QueryBus, handler QueryHandler[T, R]) {
	key := queryKey[T, R]()
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, exists := bus.handlers[key]; exists {
		panic(fmt.Errorf("query %s: %w", key, ErrDuplicateHandler))
	}
	bus.handlers[key] = handler
}

func (b *QueryBus) lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[key]
	return h, ok
}

// queryKey names the handler slot of T and R. reflect keeps interface result
// types apart, where %T of their zero value would print <nil>.
func queryKey[T Query, R any]() string {
	return reflect.TypeFor[T]().String() + "|" + reflect.TypeFor[R]().String()
}
