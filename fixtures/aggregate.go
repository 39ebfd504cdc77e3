package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"maps"

	es "github.com/familyorganizer/eventsourcing"
)

const ListType = "List"

// List is a small aggregate used to exercise the core: a named list of items
// with quantities.
type List struct {
	es.AggregateRoot

	Name  string
	Items map[string]int
}

var listHandlers = es.NewHandlers(ListType,
	es.On(func(l *List, e ListCreated, _ es.DomainEvent) { l.Name = e.Name }),
	es.On(func(l *List, e ItemAdded, _ es.DomainEvent) { l.Items[e.Item] += e.Qty }),
	es.On(func(l *List, e ItemRemoved, _ es.DomainEvent) { delete(l.Items, e.Item) }),
)

// NewList constructs an empty List.
func NewList(id string) *List {
	l := &List{Items: make(map[string]int)}
	l.AggregateRoot = es.NewAggregateRoot(id, ListType, listHandlers.Bind(l), l.reset)
	return l
}

func (l *List) reset() {
	l.Name = ""
	l.Items = make(map[string]int)
}

// Create raises ListCreated.
func (l *List) Create(ctx context.Context, name string) error {
	if l.Version() > 0 {
		return errors.New("list already created")
	}
	return l.Raise(ctx, ListCreated{Name: name})
}

// Add raises ItemAdded.
func (l *List) Add(ctx context.Context, item string, qty int) error {
	if l.Version() == 0 {
		return errors.New("list not created")
	}
	return l.Raise(ctx, ItemAdded{Item: item, Qty: qty})
}

// Remove raises ItemRemoved.
func (l *List) Remove(ctx context.Context, item string) error {
	if _, ok := l.Items[item]; !ok {
		return errors.New("no such item")
	}
	return l.Raise(ctx, ItemRemoved{Item: item})
}

type listState struct {
	Name  string         `json:"name"`
	Items map[string]int `json:"items"`
}

func (l *List) Snapshot() ([]byte, error) {
	return json.Marshal(listState{Name: l.Name, Items: maps.Clone(l.Items)})
}

func (l *List) RestoreSnapshot(data []byte) error {
	var s listState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	l.Name = s.Name
	l.Items = s.Items
	if l.Items == nil {
		l.Items = make(map[string]int)
	}
	return nil
}
