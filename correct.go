package ecomap

import (
	"context"

	"github.com/agentstation/ecomap/pkg/entity"
)

// Compile-time interface check to ensure proper implementation.
var _ Corrector = (*client)(nil)

// Corrector applies user feedback to the catalog.
type Corrector interface {
	// Correct merges a user correction into its entity
	Correct(ctx context.Context, c entity.UserCorrection) (*entity.Entity, error)

	// Report files a user dispute of an entity field
	Report(ctx context.Context, r entity.UserReport) (entity.UserReport, error)

	// Review clears the flags of an entity after manual review
	Review(ctx context.Context, entityID, reviewer string) (*entity.Entity, error)
}

// Correct merges a user correction into its entity.
func (c *client) Correct(ctx context.Context, uc entity.UserCorrection) (*entity.Entity, error) {
	return c.quality.ApplyCorrection(ctx, uc)
}

// Report files a user dispute of an entity field.
func (c *client) Report(ctx context.Context, r entity.UserReport) (entity.UserReport, error) {
	return c.quality.FileReport(ctx, r)
}

// Review clears the flags of an entity after manual review.
func (c *client) Review(ctx context.Context, entityID, reviewer string) (*entity.Entity, error) {
	return c.quality.Review(ctx, entityID, reviewer)
}
