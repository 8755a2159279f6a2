package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTypePriority(t *testing.T) {
	for i := 1; i < len(SourceTypes); i++ {
		hi, lo := SourceTypes[i-1], SourceTypes[i]
		assert.Greater(t, hi.Priority(), lo.Priority(), "%s should outrank %s", hi, lo)
		assert.Greater(t, hi.Confidence(), lo.Confidence())
	}
	assert.False(t, SourceType("rumor").Valid())
}

func TestParseSourceType(t *testing.T) {
	tests := map[string]SourceType{
		"gov":         SourceGovernment,
		" Web_Crawl ": SourceWebCrawl,
		"api":         SourcePermissionedAPI,
		"user":        SourceUserCorrection,
		"derived":     SourceInferred,
	}
	for in, want := range tests {
		got, ok := ParseSourceType(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseSourceType("newsletter")
	assert.False(t, ok)
}

func TestParseRoundType(t *testing.T) {
	assert.Equal(t, RoundSeriesA, ParseRoundType("Series A"))
	assert.Equal(t, RoundSeriesA, ParseRoundType("series-a"))
	assert.Equal(t, RoundPreSeed, ParseRoundType("Pre-Seed"))
	assert.Equal(t, RoundIPO, ParseRoundType("IPO"))
	assert.Equal(t, RoundOther, ParseRoundType("convertible"))
}

func TestSameRound(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := FundingRound{RoundType: RoundSeed, Date: day}
	b := FundingRound{RoundType: RoundSeed, Date: day.Add(10 * 24 * time.Hour)}
	c := FundingRound{RoundType: RoundSeriesA, Date: day}

	assert.True(t, a.SameRound(b, 30*24*time.Hour))
	assert.True(t, b.SameRound(a, 30*24*time.Hour))
	assert.False(t, a.SameRound(b, 5*24*time.Hour))
	assert.False(t, a.SameRound(c, 30*24*time.Hour))
}

func TestSignalBundleMerge(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(24 * time.Hour)

	base := SignalBundle{
		"github_stars": {Value: 100, ObservedAt: fresh},
		"hiring_posts": {Value: 3, ObservedAt: old},
	}
	merged := base.Merge(SignalBundle{
		"github_stars":       {Value: 50, ObservedAt: old},
		"hiring_posts":       {Value: 0, ObservedAt: fresh},
		"press_mentions_90d": {Value: 2, ObservedAt: fresh},
	})

	assert.Equal(t, 100.0, merged["github_stars"].Value, "older observation must not win")
	assert.Equal(t, 0.0, merged["hiring_posts"].Value, "zero is a real value")
	assert.True(t, merged.Has("press_mentions_90d"))
	assert.Equal(t, 3.0, base["hiring_posts"].Value, "merge must not mutate the receiver")
}

func TestEntityClone(t *testing.T) {
	e := &Entity{
		ID:                  "e-1",
		Domains:             []string{"AI"},
		Lat:                 Ptr(37.5),
		Links:               map[string]string{"github": "acme"},
		FundingRounds:       []FundingRound{{RoundType: RoundSeed, Amount: Ptr(1.0)}},
		ContributingSources: []string{"a"},
		Signals:             SignalBundle{"x": {Value: 1}},
	}
	c := e.Clone()
	c.Domains[0] = "Fintech"
	*c.Lat = 0
	c.Links["github"] = "other"
	*c.FundingRounds[0].Amount = 2
	c.ContributingSources = append(c.ContributingSources, "b")
	c.Signals["x"] = Signal{Value: 2}

	assert.Equal(t, "AI", e.Domains[0])
	assert.Equal(t, 37.5, *e.Lat)
	assert.Equal(t, "acme", e.Links["github"])
	assert.Equal(t, 1.0, *e.FundingRounds[0].Amount)
	assert.Equal(t, []string{"a"}, e.ContributingSources)
	assert.Equal(t, 1.0, e.Signals["x"].Value)
}

func TestMissingDisplayFields(t *testing.T) {
	assert.True(t, (&Entity{Name: "Acme"}).MissingDisplayFields())
	assert.False(t, (&Entity{Name: "Acme", Domains: []string{"ai"}}).MissingDisplayFields())
	assert.False(t, (&Entity{Name: "Acme", Website: "https://acme.com"}).MissingDisplayFields())
}

func TestSupersedes(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := func(fetched time.Time, confidence float64, name string) *NormalizedRecord {
		return &NormalizedRecord{SourceID: "crawl:acme", FetchedAt: fetched, Confidence: confidence, Name: name}
	}

	assert.True(t, rec(at.Add(time.Hour), 0.1, "Acme").Supersedes(rec(at, 0.9, "Acme")))
	assert.True(t, rec(at, 0.9, "Acme").Supersedes(rec(at, 0.6, "Acme")))

	a, b := rec(at, 0.6, "Acme"), rec(at, 0.6, "Acme Inc")
	assert.NotEqual(t, a.Supersedes(b), b.Supersedes(a), "ties break on content")
	assert.False(t, a.Supersedes(rec(at, 0.6, "Acme")), "identical records never supersede")
}
