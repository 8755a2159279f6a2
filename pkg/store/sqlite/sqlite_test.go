package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/store"
	"github.com/agentstation/ecomap/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ecomap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ecomap.db")

	s, err := Open(path)
	require.NoError(t, err)
	e := storetest.TestEntity(t, "e1", "Acme")
	e.GrowthScore = entity.Ptr(42.0)
	b := &store.Batch{Entities: []*entity.Entity{e}}
	b.SetMembers("e1", []entity.NormalizedRecord{storetest.TestRecord(t, "src-e1", "Acme")})
	require.NoError(t, s.Commit(ctx, b))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	require.NotNil(t, got.GrowthScore)
	assert.InDelta(t, 42.0, *got.GrowthScore, 1e-9)

	members, err := s.Members(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "ecomap.db"))
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
