package family

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	es "github.com/familyorganizer/eventsourcing"
)

// Directory is a read model answering which families a user owns or belongs
// to. It is fed with committed events and can be rebuilt from the store.
type Directory struct {
	mu      sync.RWMutex
	owners  map[string]map[string]struct{}
	members map[string]map[string]struct{}

	group *es.EventGroupProcessor
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	d := &Directory{
		owners:  make(map[string]map[string]struct{}),
		members: make(map[string]map[string]struct{}),
	}
	d.group = es.NewEventGroupProcessor(
		es.OnEvent(func(ctx context.Context, ev FamilyCreated, env es.DomainEvent) error {
			d.add(d.owners, ev.OwnerID, env.AggregateID)
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev FamilyMemberAdded, env es.DomainEvent) error {
			d.add(d.members, ev.MemberUserID, env.AggregateID)
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev FamilyMemberRemoved, env es.DomainEvent) error {
			d.remove(d.members, ev.MemberUserID, env.AggregateID)
			return nil
		}),
	)
	return d
}

// Handle implements es.EventHandler. Events the directory does not index
// return *es.ErrSkippedEvent.
func (d *Directory) Handle(ctx context.Context, ev es.DomainEvent) error {
	return d.group.Handle(ctx, ev)
}

// Rebuild clears the directory and replays every indexed event type from r.
func (d *Directory) Rebuild(ctx context.Context, r es.EventReader) error {
	var events []es.DomainEvent
	for _, name := range d.group.StreamFilter() {
		evs, err := r.GetEventsByType(ctx, name, es.TimeWindow{})
		if err != nil {
			return fmt.Errorf("rebuild family directory: %w", err)
		}
		events = append(events, evs...)
	}
	slices.SortStableFunc(events, func(a, b es.DomainEvent) int {
		if c := cmp.Compare(a.AggregateID, b.AggregateID); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})

	d.mu.Lock()
	clear(d.owners)
	clear(d.members)
	d.mu.Unlock()

	for _, ev := range events {
		if err := d.Handle(ctx, ev); err != nil {
			return fmt.Errorf("rebuild family directory: %s: %w", ev, err)
		}
	}
	return nil
}

// OwnedBy returns the ids of the families owned by userID, sorted.
func (d *Directory) OwnedBy(userID string) []string {
	return d.lookup(d.owners, userID)
}

// MemberOf returns the ids of the families userID belongs to, sorted.
func (d *Directory) MemberOf(userID string) []string {
	return d.lookup(d.members, userID)
}

func (d *Directory) add(index map[string]map[string]struct{}, userID, familyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := index[userID]
	if !ok {
		set = make(map[string]struct{})
		index[userID] = set
	}
	set[familyID] = struct{}{}
}

func (d *Directory) remove(index map[string]map[string]struct{}, userID, familyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(index[userID], familyID)
	if len(index[userID]) == 0 {
		delete(index, userID)
	}
}

func (d *Directory) lookup(index map[string]map[string]struct{}, userID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(index[userID]))
	for id := range index[userID] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
