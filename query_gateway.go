package eventsourcing

import (
	"context"
	"fmt"
)

// GenericQueryGateway provides a typed interface for executing queries
// registered on a QueryBus. It implements QueryHandler[T,R], allowing
// it to be used wherever a QueryHandler is expected.
//
// Example Usage:
//
//	gateway := NewQueryGateway[GetFamily, *Family](bus)
//	f, err := gateway.HandleQuery(ctx, GetFamily{FamilyID: "F1"})
type GenericQueryGateway[T Query, R any] struct {
	bus *QueryBus
}

// NewQueryGateway creates a typed gateway for a specific query type
// backed by a QueryBus.
func NewQueryGateway[T Query, R any](bus *QueryBus) GenericQueryGateway[T, R] {
	return GenericQueryGateway[T, R]{bus: bus}
}

// HandleQuery executes the registered handler for a given query. The handler
// is looked up on every call, so handlers registered after the gateway was
// created are found.
func (g GenericQueryGateway[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	var zero R
	key := queryKey[T, R]()

	h, ok := g.bus.lookup(key)
	if !ok {
		return zero, fmt.Errorf("no handler registered for query %s: %w", key, ErrHandlerNotFound)
	}

	handler, ok := h.(QueryHandler[T, R])
	if !ok {
		return zero, fmt.Errorf("handler type mismatch for query %s", key)
	}

	return handler.HandleQuery(ctx, qry)
}
