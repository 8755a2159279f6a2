// Package store defines the canonical entity store shared by every pipeline
// stage. The store is the only shared mutable resource: every write is a
// version-checked commit, so concurrent resolver, aggregator and quality runs
// serialize per entity without a global lock.
package store

import (
	"context"
	"time"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Store is a handle to the canonical entity store.
type Store interface {
	// Get returns a copy of the entity or a NotFoundError.
	Get(ctx context.Context, id string) (*entity.Entity, error)

	// List returns every entity ordered by ID.
	List(ctx context.Context) ([]*entity.Entity, error)

	// FindBySource returns the entities that own any of the given source IDs.
	FindBySource(ctx context.Context, sourceIDs ...string) ([]*entity.Entity, error)

	// FindByBlockingKey returns the entities indexed under any of the keys.
	FindByBlockingKey(ctx context.Context, keys ...string) ([]*entity.Entity, error)

	// FindByStatus returns the entities in any of the statuses, ordered by ID.
	FindByStatus(ctx context.Context, statuses ...entity.Status) ([]*entity.Entity, error)

	// FindByScore returns scored entities with min <= score <= max, highest first.
	FindByScore(ctx context.Context, min, max float64) ([]*entity.Entity, error)

	// Members returns the normalized records merged into an entity.
	Members(ctx context.Context, entityID string) ([]entity.NormalizedRecord, error)

	// Commit applies a batch atomically. Every entity's Version must match the
	// stored version (0 for new entities); on success versions are bumped on
	// the batch's entities. A mismatch returns a StoreWriteConflict and
	// applies nothing.
	Commit(ctx context.Context, batch *Batch) error

	// AddReport stores a user dispute, replacing any report with the same ID.
	AddReport(ctx context.Context, report entity.UserReport) error

	// Reports returns the disputes filed against an entity, oldest first.
	Reports(ctx context.Context, entityID string) ([]entity.UserReport, error)

	// Close releases the store.
	Close() error
}

// Batch is a set of writes applied atomically.
type Batch struct {
	// Entities to create or update.
	Entities []*entity.Entity

	// Members replaces the member records of the given entity IDs.
	Members map[string][]entity.NormalizedRecord
}

// Put adds an entity write to the batch.
func (b *Batch) Put(e *entity.Entity) {
	b.Entities = append(b.Entities, e)
}

// SetMembers replaces the member records for an entity.
func (b *Batch) SetMembers(entityID string, members []entity.NormalizedRecord) {
	if b.Members == nil {
		b.Members = make(map[string][]entity.NormalizedRecord)
	}
	b.Members[entityID] = members
}

// Empty reports whether the batch has nothing to write.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Entities) == 0 && len(b.Members) == 0)
}

// MutateFunc changes an entity in place and reports whether anything changed.
type MutateFunc func(e *entity.Entity) (changed bool, err error)

// Update performs a read-merge-write of one entity, retrying on write
// conflicts up to constants.MaxWriteAttempts with a fresh read each time.
// It returns the entity as written, or as read when fn reported no change.
func Update(ctx context.Context, s Store, id string, fn MutateFunc) (*entity.Entity, error) {
	backoff := constants.RetryBackoff
	var lastConflict error

	for attempt := 1; attempt <= constants.MaxWriteAttempts; attempt++ {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(e)
		if err != nil {
			return nil, err
		}
		if !changed {
			return e, nil
		}

		err = s.Commit(ctx, &Batch{Entities: []*entity.Entity{e}})
		if err == nil {
			return e, nil
		}
		if !errors.IsWriteConflict(err) {
			return nil, err
		}
		lastConflict = err

		if attempt < constants.MaxWriteAttempts {
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = min(backoff*2, constants.MaxRetryBackoff)
		}
	}

	var conflict *errors.StoreWriteConflict
	if errors.As(lastConflict, &conflict) {
		exhausted := *conflict
		exhausted.Attempts = constants.MaxWriteAttempts
		return nil, &exhausted
	}
	return nil, lastConflict
}

// Backoff sleeps for the retry delay of the given attempt (1-based).
func Backoff(ctx context.Context, attempt int) error {
	d := constants.RetryBackoff
	for i := 1; i < attempt; i++ {
		d = min(d*2, constants.MaxRetryBackoff)
	}
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(errors.ErrCanceled, ctx.Err())
	case <-t.C:
		return nil
	}
}
