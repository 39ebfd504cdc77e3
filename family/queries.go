package family

import (
	"context"
	"fmt"
	"strconv"

	es "github.com/familyorganizer/eventsourcing"
)

// GetFamily loads the current state of one family.
type GetFamily struct {
	FamilyID string
}

func (q GetFamily) ID() []byte { return []byte(q.FamilyID) }

// FamiliesByOwner lists the families owned by a user.
type FamiliesByOwner struct {
	UserID string
}

func (q FamiliesByOwner) ID() []byte { return []byte(q.UserID) }

// FamiliesByMember lists the families a user belongs to.
type FamiliesByMember struct {
	UserID string
}

func (q FamiliesByMember) ID() []byte { return []byte(q.UserID) }

// FamilyAt rebuilds a family from its events up to and including Version.
// Version 0 replays the full history. Nothing is saved.
type FamilyAt struct {
	FamilyID string
	Version  uint64
}

func (q FamilyAt) ID() []byte {
	return strconv.AppendUint([]byte(q.FamilyID+"@"), q.Version, 10)
}

func getFamily(repo es.Repository[*Family]) func(context.Context, GetFamily) (*Family, error) {
	return func(ctx context.Context, q GetFamily) (*Family, error) {
		f, found, err := repo.GetByID(ctx, q.FamilyID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("family %q: %w", q.FamilyID, es.ErrAggregateNotFound)
		}
		return f, nil
	}
}

func familiesByOwner(get es.QueryHandler[GetFamily, *Family], directory *Directory) func(context.Context, FamiliesByOwner) ([]*Family, error) {
	return func(ctx context.Context, q FamiliesByOwner) ([]*Family, error) {
		return loadAll(ctx, get, directory.OwnedBy(q.UserID))
	}
}

func familiesByMember(get es.QueryHandler[GetFamily, *Family], directory *Directory) func(context.Context, FamiliesByMember) ([]*Family, error) {
	return func(ctx context.Context, q FamiliesByMember) ([]*Family, error) {
		return loadAll(ctx, get, directory.MemberOf(q.UserID))
	}
}

func loadAll(ctx context.Context, get es.QueryHandler[GetFamily, *Family], ids []string) ([]*Family, error) {
	out := make([]*Family, 0, len(ids))
	for _, id := range ids {
		f, err := get.HandleQuery(ctx, GetFamily{FamilyID: id})
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func familyAt(replay *es.ReplayService[*Family]) func(context.Context, FamilyAt) (*Family, error) {
	return func(ctx context.Context, q FamilyAt) (*Family, error) {
		f, found, err := replay.ReplayUntil(ctx, q.FamilyID, q.Version)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("family %q: %w", q.FamilyID, es.ErrAggregateNotFound)
		}
		return f, nil
	}
}
