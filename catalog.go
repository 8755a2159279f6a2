package ecomap

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Compile-time interface check to ensure proper implementation.
var _ Catalog = (*client)(nil)

// Catalog reads the entity catalog. Reads are copies.
type Catalog interface {
	// Entity returns an entity, following merges to the surviving entity
	Entity(ctx context.Context, id string) (*entity.Entity, error)

	// Entities returns the entities matching q, ranked by growth score
	Entities(ctx context.Context, q Query) ([]*entity.Entity, error)

	// Members returns the source records merged into an entity
	Members(ctx context.Context, id string) ([]entity.NormalizedRecord, error)
}

// Query filters the catalog. Zero values match everything except absorbed
// entities.
type Query struct {
	Statuses        []entity.Status
	Types           []entity.Type
	MinScore        *float64
	MaxScore        *float64
	Country         string
	IncludeAbsorbed bool
	Limit           int
}

func (q Query) matches(e *entity.Entity) bool {
	if e.Absorbed() && !q.IncludeAbsorbed {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, e.Status) {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, e.Type) {
		return false
	}
	if q.Country != "" && !strings.EqualFold(q.Country, e.Country) {
		return false
	}
	if q.MinScore != nil || q.MaxScore != nil {
		if e.GrowthScore == nil {
			return false
		}
		if q.MinScore != nil && *e.GrowthScore < *q.MinScore {
			return false
		}
		if q.MaxScore != nil && *e.GrowthScore > *q.MaxScore {
			return false
		}
	}
	return true
}

// Entity returns an entity, following merges to the surviving entity.
func (c *client) Entity(ctx context.Context, id string) (*entity.Entity, error) {
	for hops := 0; hops < 16; hops++ {
		e, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !e.Absorbed() {
			return e, nil
		}
		id = e.MergedInto
	}
	return nil, errors.NewValidationError("merged_into", id, "merge chain too long")
}

// Entities returns the entities matching q, highest growth score first.
// Unscored entities follow, by name.
func (c *client) Entities(ctx context.Context, q Query) ([]*entity.Entity, error) {
	var candidates []*entity.Entity
	var err error
	switch {
	case q.MinScore != nil || q.MaxScore != nil:
		lo, hi := 0.0, 100.0
		if q.MinScore != nil {
			lo = *q.MinScore
		}
		if q.MaxScore != nil {
			hi = *q.MaxScore
		}
		candidates, err = c.store.FindByScore(ctx, lo, hi)
	case len(q.Statuses) > 0:
		candidates, err = c.store.FindByStatus(ctx, q.Statuses...)
	default:
		candidates, err = c.store.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := slices.DeleteFunc(candidates, func(e *entity.Entity) bool { return !q.matches(e) })
	slices.SortStableFunc(out, rank)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// rank orders by growth score descending with unscored last, then by name
// and ID.
func rank(a, b *entity.Entity) int {
	switch {
	case a.GrowthScore != nil && b.GrowthScore == nil:
		return -1
	case a.GrowthScore == nil && b.GrowthScore != nil:
		return 1
	case a.GrowthScore != nil && *a.GrowthScore != *b.GrowthScore:
		return cmp.Compare(*b.GrowthScore, *a.GrowthScore)
	}
	if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Members returns the source records merged into an entity.
func (c *client) Members(ctx context.Context, id string) ([]entity.NormalizedRecord, error) {
	e, err := c.Entity(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.store.Members(ctx, e.ID)
}
