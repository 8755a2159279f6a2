// Package storetest holds the behaviour every store.Store implementation must
// share. Implementations run it from their own tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// TestEntity creates an active entity with sensible defaults.
func TestEntity(t testing.TB, id, name string) *entity.Entity {
	t.Helper()
	now := utc.Time{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &entity.Entity{
		ID:                  id,
		Type:                entity.TypeStartup,
		Name:                name,
		ContributingSources: []string{"src-" + id},
		BlockingKeys:        []string{"name:" + id},
		Status:              entity.StatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
		SourcesUpdatedAt:    now,
	}
}

// TestRecord creates a web-crawled member record.
func TestRecord(t testing.TB, sourceID, name string) entity.NormalizedRecord {
	t.Helper()
	return entity.NormalizedRecord{
		SourceID:   sourceID,
		SourceType: entity.SourceWebCrawl,
		FetchedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Confidence: entity.SourceWebCrawl.Confidence(),
		Type:       entity.TypeStartup,
		Name:       name,
	}
}

// Run exercises the store.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("commit and read back", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		e := TestEntity(t, "e1", "Acme")
		e.BlockingKeys = []string{"domain:acme.io", "name:acme"}
		rec := TestRecord(t, "src-e1", "Acme")

		b := &store.Batch{}
		b.Put(e)
		b.SetMembers(e.ID, []entity.NormalizedRecord{rec})
		require.NoError(t, s.Commit(ctx, b))
		assert.Equal(t, int64(1), e.Version)

		got, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, []string{"src-e1"}, got.ContributingSources)

		byKey, err := s.FindByBlockingKey(ctx, "domain:acme.io")
		require.NoError(t, err)
		require.Len(t, byKey, 1)
		assert.Equal(t, "e1", byKey[0].ID)

		bySource, err := s.FindBySource(ctx, "src-e1", "unknown")
		require.NoError(t, err)
		require.Len(t, bySource, 1)

		members, err := s.Members(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "src-e1", members[0].SourceID)
		assert.Equal(t, "Acme", members[0].Name)
	})

	t.Run("reads are copies", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{TestEntity(t, "e1", "Acme")}}))

		got, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		got.Name = "Changed"
		got.ContributingSources[0] = "changed"

		again, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", again.Name)
		assert.Equal(t, "src-e1", again.ContributingSources[0])
	})

	t.Run("stale version conflicts and applies nothing", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{
			TestEntity(t, "e1", "Acme"),
			TestEntity(t, "e2", "Beta"),
		}}))

		stale := TestEntity(t, "e1", "Acme Stale") // version 0, stored is 1
		fresh, err := s.Get(ctx, "e2")
		require.NoError(t, err)
		fresh.Name = "Beta Renamed"

		err = s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{fresh, stale}})
		require.Error(t, err)
		assert.True(t, errors.IsWriteConflict(err))

		var conflict *errors.StoreWriteConflict
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "e1", conflict.EntityID)
		assert.Equal(t, int64(1), conflict.Actual)

		e2, err := s.Get(ctx, "e2")
		require.NoError(t, err)
		assert.Equal(t, "Beta", e2.Name, "a failed batch must not partially apply")
		assert.Equal(t, int64(1), e2.Version)
	})

	t.Run("blocking keys are reindexed", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := TestEntity(t, "e1", "Acme")
		e.BlockingKeys = []string{"name:acme"}
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{e}}))

		e.BlockingKeys = []string{"domain:acme.io"}
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{e}}))

		old, err := s.FindByBlockingKey(ctx, "name:acme")
		require.NoError(t, err)
		assert.Empty(t, old)

		cur, err := s.FindByBlockingKey(ctx, "domain:acme.io")
		require.NoError(t, err)
		assert.Len(t, cur, 1)
	})

	t.Run("members move between entities", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		a, b := TestEntity(t, "a", "A"), TestEntity(t, "b", "B")
		rec := TestRecord(t, "shared", "A")

		batch := &store.Batch{Entities: []*entity.Entity{a, b}}
		batch.SetMembers("a", []entity.NormalizedRecord{rec})
		require.NoError(t, s.Commit(ctx, batch))

		batch = &store.Batch{Entities: []*entity.Entity{a, b}}
		batch.SetMembers("a", nil)
		batch.SetMembers("b", []entity.NormalizedRecord{rec})
		require.NoError(t, s.Commit(ctx, batch))

		owners, err := s.FindBySource(ctx, "shared")
		require.NoError(t, err)
		require.Len(t, owners, 1)
		assert.Equal(t, "b", owners[0].ID)

		members, err := s.Members(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("status and score queries", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		low, high, none := TestEntity(t, "low", "Low"), TestEntity(t, "high", "High"), TestEntity(t, "none", "None")
		low.GrowthScore = entity.Ptr(12.5)
		high.GrowthScore = entity.Ptr(88.0)
		none.Status = entity.StatusArchived
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{low, high, none}}))

		scored, err := s.FindByScore(ctx, 0, 100)
		require.NoError(t, err)
		require.Len(t, scored, 2)
		assert.Equal(t, "high", scored[0].ID)
		assert.Equal(t, "low", scored[1].ID)

		ranged, err := s.FindByScore(ctx, 50, 100)
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.Equal(t, "high", ranged[0].ID)

		archived, err := s.FindByStatus(ctx, entity.StatusArchived)
		require.NoError(t, err)
		require.Len(t, archived, 1)
		assert.Equal(t, "none", archived[0].ID)

		all, err := s.List(ctx)
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, e := range all {
			ids[i] = e.ID
		}
		assert.Equal(t, []string{"high", "low", "none"}, ids)
	})

	t.Run("reports", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		err := s.AddReport(ctx, entity.UserReport{ID: "r0", EntityID: "missing", Field: "name"})
		assert.True(t, errors.IsNotFound(err))

		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{TestEntity(t, "e1", "Acme")}}))
		t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.AddReport(ctx, entity.UserReport{ID: "r2", EntityID: "e1", Field: "name", SubmittedAt: t0.Add(time.Hour), SubmitterRef: "bob"}))
		require.NoError(t, s.AddReport(ctx, entity.UserReport{ID: "r1", EntityID: "e1", Field: "name", SubmittedAt: t0, SubmitterRef: "alice"}))

		reports, err := s.Reports(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, "r1", reports[0].ID)
		assert.False(t, reports[0].Resolved())

		resolved := reports[0]
		resolved.ResolvedAt = entity.Ptr(t0.Add(2 * time.Hour))
		require.NoError(t, s.AddReport(ctx, resolved))

		reports, err = s.Reports(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.True(t, reports[0].Resolved())
	})

	t.Run("concurrent updates serialize", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{TestEntity(t, "e1", "Acme")}}))

		var wg sync.WaitGroup
		var ok, failed atomic.Int32
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Update(ctx, s, "e1", func(e *entity.Entity) (bool, error) {
					e.QualityFlags = append(e.QualityFlags, "touched")
					return true, nil
				})
				if err != nil {
					failed.Add(1)
					return
				}
				ok.Add(1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(2), ok.Load()+failed.Load())
		got, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, int64(1+ok.Load()), got.Version)
		assert.Len(t, got.QualityFlags, int(ok.Load()))
	})

	t.Run("closed store is unavailable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())
		_, err := s.List(context.Background())
		require.Error(t, err)
	})
}
