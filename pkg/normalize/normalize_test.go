package normalize

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
)

var fetched = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func raw(sourceType string, payload map[string]any) entity.RawRecord {
	return entity.RawRecord{SourceID: "src-1", SourceType: sourceType, FetchedAt: fetched, Payload: payload}
}

func TestNormalizeFullRecord(t *testing.T) {
	rec, err := Normalize(raw("government", map[string]any{
		"name":         "  Acme&#39;s   Inc. ",
		"type":         "Coworking Space",
		"website":      "WWW.Acme.com/about/",
		"description":  "Shared desks &amp; offices",
		"tags":         "AI, logistics ,",
		"country":      "kr",
		"city":         " Seoul ",
		"latitude":     "37.56",
		"longitude":    126.97,
		"founded":      2019,
		"employees":    "42",
		"is_hiring":    "true",
		"hiring_roles": []any{"Backend", "Design"},
		"remote_ratio": 0.25,
		"links":        map[string]any{"github": "acme"},
		"funding_rounds": []any{
			map[string]any{"round_type": "Series A", "amount": 5e6, "currency": "usd", "date": "2023-05-01"},
			map[string]any{"type": "Seed", "amount": "1000000", "date": "2021-02"},
			"garbage",
		},
	}))
	require.NoError(t, err)

	assert.Equal(t, "Acmes Inc.", rec.Name)
	assert.Equal(t, entity.TypeSpace, rec.Type)
	assert.Equal(t, "https://www.acme.com/about", rec.Website)
	assert.Equal(t, "Shared desks & offices", rec.Description)
	assert.Equal(t, []string{"AI", "logistics"}, rec.Domains)
	assert.Equal(t, "KR", rec.Country)
	assert.Equal(t, "Seoul", rec.City)
	require.True(t, rec.HasCoordinates())
	assert.InDelta(t, 37.56, *rec.Lat, 1e-9)
	assert.Equal(t, 2019, rec.FoundedYear)
	assert.Equal(t, 42, rec.HeadcountEstimate)
	require.NotNil(t, rec.IsHiring)
	assert.True(t, *rec.IsHiring)
	assert.Equal(t, []string{"Backend", "Design"}, rec.HiringRoles)
	assert.Equal(t, "acme", rec.Links["github"])
	assert.Equal(t, entity.SourceGovernment, rec.SourceType)
	assert.Equal(t, 0.8, rec.Confidence)

	require.Len(t, rec.FundingRounds, 2)
	assert.Equal(t, entity.RoundSeed, rec.FundingRounds[0].RoundType, "rounds are chronological")
	assert.Equal(t, entity.RoundSeriesA, rec.FundingRounds[1].RoundType)
	assert.Equal(t, "USD", rec.FundingRounds[1].Currency)
	assert.Equal(t, "src-1", rec.FundingRounds[1].SourceID)
}

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		payload    map[string]any
		want       Reason
	}{
		{"empty name", "web_crawl", map[string]any{"name": "   ", "type": "startup"}, MissingName},
		{"entity-only name", "web_crawl", map[string]any{"name": "&#8203;", "type": "startup"}, MissingName},
		{"unknown type", "web_crawl", map[string]any{"name": "Acme", "type": "restaurant"}, UnknownType},
		{"missing type", "web_crawl", map[string]any{"name": "Acme"}, UnknownType},
		{"bad scheme", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "website": "ftp://acme.com"}, MalformedURL},
		{"no host", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "website": "https://"}, MalformedURL},
		{"dotless host", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "website": "acme"}, MalformedURL},
		{"half pair", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "lat": 1.0}, MalformedCoordinate},
		{"lat range", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "lat": 91.0, "lon": 0.0}, MalformedCoordinate},
		{"lon text", "web_crawl", map[string]any{"name": "Acme", "type": "startup", "lat": 1.0, "lon": "east"}, MalformedCoordinate},
		{"lat NaN text", "government", map[string]any{"name": "Acme", "type": "startup", "lat": "NaN", "lon": 10.0}, MalformedCoordinate},
		{"lat NaN", "government", map[string]any{"name": "Acme", "type": "startup", "lat": math.NaN(), "lon": 10.0}, MalformedCoordinate},
		{"lon infinite", "government", map[string]any{"name": "Acme", "type": "startup", "lat": 1.0, "lon": "+Inf"}, MalformedCoordinate},
		{"source type", "newsletter", map[string]any{"name": "Acme", "type": "startup"}, UnknownSourceType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(raw(tt.sourceType, tt.payload))
			require.Error(t, err)
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, reason)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestNormalizeMissingSourceID(t *testing.T) {
	_, err := Normalize(entity.RawRecord{SourceType: "gov", Payload: map[string]any{"name": "x", "type": "startup"}})
	reason, _ := ReasonOf(err)
	assert.Equal(t, MissingSourceID, reason)
}

func TestLookupTypeNeverGuesses(t *testing.T) {
	for _, label := range []string{"startup", "VC", "incubator", "coworking-space", "Demo Day"} {
		_, ok := LookupType(label)
		assert.True(t, ok, label)
	}
	for _, label := range []string{"startups", "co-working", "", "other"} {
		_, ok := LookupType(label)
		assert.False(t, ok, label)
	}
}

func TestCleanTextLimits(t *testing.T) {
	long := strings.Repeat("가", 300)
	assert.Equal(t, 200, len([]rune(CleanText(long, 200))))
	assert.Equal(t, "a b", CleanText(" a \n\t b ", 0))
}

func TestNonFiniteNumbersDropped(t *testing.T) {
	rec, err := Normalize(raw("government", map[string]any{
		"name":                     "Acme",
		"type":                     "startup",
		"headcount_growth_12m_pct": "NaN",
		"remote_ratio":             math.Inf(1),
		"confidence":               math.NaN(),
		"funding_rounds": []any{
			map[string]any{"type": "seed", "amount": "Inf", "currency": "usd"},
		},
	}))
	require.NoError(t, err)
	assert.Nil(t, rec.HeadcountGrowth12mPct)
	assert.Nil(t, rec.RemoteRatio)
	assert.False(t, math.IsNaN(rec.Confidence))
	require.Len(t, rec.FundingRounds, 1)
	assert.Nil(t, rec.FundingRounds[0].Amount)
}

func TestConfidenceOverride(t *testing.T) {
	rec, err := Normalize(raw("web_crawl", map[string]any{"name": "Acme", "type": "startup", "confidence": 0.95}))
	require.NoError(t, err)
	assert.Equal(t, 0.95, rec.Confidence)

	rec, err = Normalize(raw("web_crawl", map[string]any{"name": "Acme", "type": "startup", "confidence": 7}))
	require.NoError(t, err)
	assert.Equal(t, 0.6, rec.Confidence, "out of range confidence is ignored")
}

func TestBatch(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	older := raw("web_crawl", map[string]any{"name": "Old Name", "type": "startup"})
	newer := raw("web_crawl", map[string]any{"name": "New Name", "type": "startup"})
	newer.FetchedAt = fetched.Add(time.Hour)
	bad := raw("web_crawl", map[string]any{"type": "startup"})
	bad.SourceID = "src-bad"

	accepted, rejected := Batch(ctx, []entity.RawRecord{newer, bad, older})
	require.Len(t, accepted, 1)
	assert.Equal(t, "New Name", accepted[0].Name)
	require.Len(t, rejected, 1)
	assert.Equal(t, "src-bad", rejected[0].Raw.SourceID)
	tl.AssertContains(t, "MissingName")
}

func TestFromCorrection(t *testing.T) {
	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("description", func(t *testing.T) {
		rec, err := FromCorrection(entity.UserCorrection{
			EntityID: "e1", Field: entity.FieldDescription, NewValue: "Robotics",
			SubmittedAt: at, SubmitterRef: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, entity.SourceUserCorrection, rec.SourceType)
		assert.Equal(t, "Robotics", rec.Description)
		assert.Empty(t, rec.Name)
		assert.Equal(t, at, rec.FetchedAt)
		assert.True(t, strings.HasPrefix(rec.SourceID, "correction:e1:description:alice:"))
	})

	t.Run("location", func(t *testing.T) {
		rec, err := FromCorrection(entity.UserCorrection{
			EntityID: "e1", Field: entity.FieldLocation, NewValue: []any{37.5, 127.0}, SubmittedAt: at,
		})
		require.NoError(t, err)
		require.True(t, rec.HasCoordinates())
		assert.Equal(t, 127.0, *rec.Lon)
	})

	t.Run("rejections", func(t *testing.T) {
		_, err := FromCorrection(entity.UserCorrection{EntityID: "e1", Field: "status", NewValue: "active", SubmittedAt: at})
		assert.True(t, errors.IsValidationError(err))

		_, err = FromCorrection(entity.UserCorrection{EntityID: "e1", Field: entity.FieldWebsite, NewValue: "notaurl", SubmittedAt: at})
		reason, _ := ReasonOf(err)
		assert.Equal(t, MalformedURL, reason)

		_, err = FromCorrection(entity.UserCorrection{Field: entity.FieldName, NewValue: "x", SubmittedAt: at})
		assert.Error(t, err)
	})
}
