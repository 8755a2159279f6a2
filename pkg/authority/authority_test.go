package authority_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/authority"
	"github.com/agentstation/ecomap/pkg/entity"
)

func TestRankDefaultsToSourceTypeOrder(t *testing.T) {
	a := authority.New()

	assert.Greater(t, a.Rank(entity.FieldName, entity.SourceGovernment), a.Rank(entity.FieldName, entity.SourceWebCrawl))
	assert.Greater(t, a.Rank(entity.FieldName, entity.SourcePermissionedAPI), a.Rank(entity.FieldName, entity.SourceGovernment))
	assert.Greater(t, a.Rank(entity.FieldName, entity.SourceWebCrawl), a.Rank(entity.FieldName, entity.SourceInferred))
	assert.Empty(t, a.List())
}

func TestOverrides(t *testing.T) {
	a := authority.New(
		authority.Field{Path: "location", Source: entity.SourceGovernment, Priority: 10},
		authority.Field{Path: "funding_*", Source: entity.SourceWebCrawl, Priority: 9},
		authority.Field{Path: "*", Source: entity.SourceUserCorrection, Priority: 0},
	)

	t.Run("exact override", func(t *testing.T) {
		assert.Greater(t, a.Rank(entity.FieldLocation, entity.SourceGovernment), a.Rank(entity.FieldLocation, entity.SourcePermissionedAPI))
		assert.Less(t, a.Rank(entity.FieldName, entity.SourceGovernment), a.Rank(entity.FieldName, entity.SourcePermissionedAPI))
	})

	t.Run("wildcard override", func(t *testing.T) {
		f := a.Find(entity.FieldFundingRounds, entity.SourceWebCrawl)
		require.NotNil(t, f)
		assert.Equal(t, "funding_*", f.Path)
		assert.Nil(t, a.Find(entity.FieldName, entity.SourceWebCrawl))
	})

	t.Run("correction always wins", func(t *testing.T) {
		assert.Greater(t, a.Rank(entity.FieldLocation, entity.SourceUserCorrection), a.Rank(entity.FieldLocation, entity.SourceGovernment))
	})

	assert.Len(t, a.List(), 3)
}

func TestByFieldPrefersSpecificPattern(t *testing.T) {
	fields := []authority.Field{
		{Path: "*", Priority: 7},
		{Path: "funding_*", Priority: 2},
		{Path: "funding_rounds", Priority: 1},
	}
	f := authority.ByField("funding_rounds", fields)
	require.NotNil(t, f)
	assert.Equal(t, "funding_rounds", f.Path)

	f = authority.ByField("city", fields)
	require.NotNil(t, f)
	assert.Equal(t, "*", f.Path)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		path, pattern string
		want          bool
	}{
		{"name", "name", true},
		{"funding_rounds", "funding_*", true},
		{"name", "funding_*", false},
		{"hiring_roles", "hiring_?oles", true},
		{"name", "[", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, authority.MatchesPattern(tt.path, tt.pattern), "%s ~ %s", tt.path, tt.pattern)
	}
}
