package ecomap

import (
	"context"

	"github.com/agentstation/utc"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/save"
)

// Compile-time interface check to ensure proper implementation.
var _ Persistence = (*client)(nil)

// Persistence exports catalog snapshots.
type Persistence interface {
	// Save writes the entities matching q as a snapshot
	Save(ctx context.Context, q Query, opts ...save.Option) error
}

// Snapshot is an exported view of the catalog.
type Snapshot struct {
	GeneratedAt utc.Time         `json:"generated_at" yaml:"generated_at"`
	Count       int              `json:"count" yaml:"count"`
	Entities    []*entity.Entity `json:"entities" yaml:"entities"`
}

// Save writes the ranked entities matching q as a JSON or YAML snapshot.
func (c *client) Save(ctx context.Context, q Query, opts ...save.Option) error {
	entities, err := c.Entities(ctx, q)
	if err != nil {
		return errors.WrapResource("list", "entities", "", err)
	}
	snap := Snapshot{
		GeneratedAt: utc.Now(),
		Count:       len(entities),
		Entities:    entities,
	}
	if entities == nil {
		snap.Entities = []*entity.Entity{}
	}
	return save.Write(snap, opts...)
}
