package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/authority"
	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/provenance"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMerger(overrides ...authority.Field) *merger {
	return &merger{
		authorities: authority.New(overrides...),
		tolerance:   constants.DefaultFundingDateTolerance,
		tracker:     provenance.NewTracker(false),
	}
}

func rec(sourceID string, st entity.SourceType, fetched time.Time, name string) entity.NormalizedRecord {
	return entity.NormalizedRecord{
		SourceID:   sourceID,
		SourceType: st,
		FetchedAt:  fetched,
		Confidence: st.Confidence(),
		Type:       entity.TypeStartup,
		Name:       name,
	}
}

func mergeAll(t *testing.T, m *merger, members ...entity.NormalizedRecord) (identity, int) {
	t.Helper()
	sortMembers(members)
	id, conflicts := m.merge("e1", members)
	return id, len(conflicts)
}

func TestMergeScalars(t *testing.T) {
	tests := []struct {
		name          string
		members       []entity.NormalizedRecord
		wantName      string
		wantConflicts int
	}{
		{
			name: "authority beats recency",
			members: []entity.NormalizedRecord{
				rec("gov", entity.SourceGovernment, t0, "Acme Inc."),
				rec("crawl", entity.SourceWebCrawl, t0.Add(time.Hour), "ACME"),
			},
			wantName: "Acme Inc.",
		},
		{
			name: "recency breaks equal authority",
			members: []entity.NormalizedRecord{
				rec("crawl-a", entity.SourceWebCrawl, t0, "Acme Old"),
				rec("crawl-b", entity.SourceWebCrawl, t0.Add(time.Hour), "Acme New"),
			},
			wantName: "Acme New",
		},
		{
			name: "full tie goes to the smaller source and is reported",
			members: []entity.NormalizedRecord{
				rec("crawl-b", entity.SourceWebCrawl, t0, "Acme B"),
				rec("crawl-a", entity.SourceWebCrawl, t0, "Acme A"),
			},
			wantName:      "Acme A",
			wantConflicts: 1,
		},
		{
			name: "tie on equal values is no conflict",
			members: []entity.NormalizedRecord{
				rec("crawl-b", entity.SourceWebCrawl, t0, "Acme"),
				rec("crawl-a", entity.SourceWebCrawl, t0, "Acme"),
			},
			wantName: "Acme",
		},
		{
			name: "correction outranks everything",
			members: []entity.NormalizedRecord{
				rec("api", entity.SourcePermissionedAPI, t0.Add(time.Hour), "Acme API"),
				rec("fix", entity.SourceUserCorrection, t0, "Acme Fixed"),
			},
			wantName: "Acme Fixed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, conflicts := mergeAll(t, newMerger(), tt.members...)
			assert.Equal(t, tt.wantName, id.Name)
			assert.Equal(t, tt.wantConflicts, conflicts)
		})
	}
}

func TestMergeMissingValuesNeverWin(t *testing.T) {
	api := rec("api", entity.SourcePermissionedAPI, t0, "Acme")
	crawl := rec("crawl", entity.SourceWebCrawl, t0, "Acme")
	crawl.Description = "AI logistics"
	crawl.IsHiring = entity.Ptr(false)

	id, _ := mergeAll(t, newMerger(), api, crawl)
	assert.Equal(t, "AI logistics", id.Description)
	require.NotNil(t, id.IsHiring)
	assert.False(t, *id.IsHiring, "an explicit false is a value")
	assert.Nil(t, id.RemoteRatio)
}

func TestMergeLocationIsAPair(t *testing.T) {
	api := rec("api", entity.SourcePermissionedAPI, t0, "Nova")
	api.Lat, api.Lon = entity.Ptr(37.5), entity.Ptr(127.0)
	crawl := rec("crawl", entity.SourceWebCrawl, t0.Add(time.Hour), "Nova")
	crawl.Lat, crawl.Lon = entity.Ptr(35.1), entity.Ptr(129.0)

	id, _ := mergeAll(t, newMerger(), api, crawl)
	require.NotNil(t, id.Lat)
	assert.Equal(t, 37.5, *id.Lat)
	assert.Equal(t, 127.0, *id.Lon)

	override := newMerger(authority.Field{Path: "location", Source: entity.SourceWebCrawl, Priority: 10})
	id, _ = mergeAll(t, override, api, crawl)
	assert.Equal(t, 35.1, *id.Lat)
	assert.Equal(t, 129.0, *id.Lon)
	assert.Equal(t, "Nova", id.Name)
}

func TestMergeLists(t *testing.T) {
	crawl := rec("crawl", entity.SourceWebCrawl, t0, "Acme")
	crawl.Domains = []string{"AI", "Logistics"}
	gov := rec("gov", entity.SourceGovernment, t0.Add(time.Hour), "Acme")
	gov.Domains = []string{"ai", " Robotics "}

	id, _ := mergeAll(t, newMerger(), crawl, gov)
	assert.Equal(t, []string{"AI", "Logistics", "Robotics"}, id.Domains)

	fix := rec("fix", entity.SourceUserCorrection, t0.Add(2*time.Hour), "")
	fix.Domains = []string{"Fintech"}
	id, _ = mergeAll(t, newMerger(), crawl, gov, fix)
	assert.Equal(t, []string{"Fintech"}, id.Domains, "a correction replaces the list")
}

func TestMergeLinks(t *testing.T) {
	crawl := rec("crawl", entity.SourceWebCrawl, t0, "Acme")
	crawl.Links = map[string]string{"github": "acme-old", "twitter": "acme"}
	api := rec("api", entity.SourcePermissionedAPI, t0, "Acme")
	api.Links = map[string]string{"github": "acme"}

	id, _ := mergeAll(t, newMerger(), crawl, api)
	assert.Equal(t, map[string]string{"github": "acme", "twitter": "acme"}, id.Links)
}

func TestMergeFundingRounds(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	round := func(rt entity.RoundType, amount float64, date time.Time, src string) entity.FundingRound {
		return entity.FundingRound{RoundType: rt, Amount: entity.Ptr(amount), Date: date, SourceID: src}
	}

	gov := rec("gov", entity.SourceGovernment, t0, "Acme")
	gov.FundingRounds = []entity.FundingRound{round(entity.RoundSeriesA, 1e6, day(10), "gov")}
	crawl := rec("crawl", entity.SourceWebCrawl, t0.Add(time.Hour), "Acme")
	crawl.FundingRounds = []entity.FundingRound{
		round(entity.RoundSeed, 2e5, time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), "crawl"),
		round(entity.RoundSeriesA, 1.2e6, day(20), "crawl"),
	}

	t.Run("duplicates collapse onto the most confident source", func(t *testing.T) {
		id, _ := mergeAll(t, newMerger(), gov, crawl)
		require.Len(t, id.FundingRounds, 2)
		assert.Equal(t, entity.RoundSeed, id.FundingRounds[0].RoundType)
		assert.Equal(t, "gov", id.FundingRounds[1].SourceID)
		assert.Equal(t, 1e6, *id.FundingRounds[1].Amount)
	})

	t.Run("rounds outside the tolerance are kept apart", func(t *testing.T) {
		m := newMerger()
		m.tolerance = 5 * 24 * time.Hour
		id, _ := mergeAll(t, m, gov, crawl)
		assert.Len(t, id.FundingRounds, 3)
	})

	t.Run("correction replaces the rounds", func(t *testing.T) {
		fix := rec("fix", entity.SourceUserCorrection, t0.Add(2*time.Hour), "")
		fix.FundingRounds = []entity.FundingRound{}
		id, _ := mergeAll(t, newMerger(), gov, crawl, fix)
		assert.Empty(t, id.FundingRounds)
	})
}

func TestMergeMembership(t *testing.T) {
	a := rec("b-src", entity.SourceWebCrawl, t0.Add(time.Hour), "Acme")
	a.Website = "https://acme.com"
	b := rec("a-src", entity.SourceGovernment, t0, "Acme Inc")

	id, _ := mergeAll(t, newMerger(), a, b)
	assert.Equal(t, []string{"a-src", "b-src"}, id.ContributingSources, "first sighting order")
	assert.Equal(t, t0.Add(time.Hour), id.SourcesUpdatedAt)
	assert.Equal(t, []string{"domain:acme.com", "name:acme", "token:acme"}, id.BlockingKeys)
}

func TestMergeRecordsProvenance(t *testing.T) {
	m := newMerger()
	m.tracker = provenance.NewTracker(true)
	gov := rec("gov", entity.SourceGovernment, t0, "Acme Inc.")
	crawl := rec("crawl", entity.SourceWebCrawl, t0, "ACME")

	mergeAll(t, m, gov, crawl)
	got := m.tracker.FindByField("e1", entity.FieldName)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, "gov", last.SourceID)
	assert.Equal(t, "Acme Inc.", last.Value)
	assert.Equal(t, []string{"crawl"}, last.Candidates)
}

func TestIdentitySameAsIgnoresSourceTime(t *testing.T) {
	a := identity{Name: "Acme", SourcesUpdatedAt: t0}
	b := identity{Name: "Acme", SourcesUpdatedAt: t0.Add(time.Nanosecond)}
	assert.True(t, a.sameAs(b))
	b.Name = "Acme Inc"
	assert.False(t, a.sameAs(b))
}
