package resolve

import (
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agentstation/utc"
	"golang.org/x/text/cases"

	"github.com/agentstation/ecomap/pkg/authority"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/provenance"
)

// identity is the set of entity fields owned by the resolver. Status,
// signals and score belong to other stages and are never touched here.
type identity struct {
	Type                  entity.Type
	Name                  string
	Description           string
	Website               string
	Domains               []string
	FoundedYear           int
	Country               string
	City                  string
	Lat, Lon              *float64
	FundingRounds         []entity.FundingRound
	HeadcountEstimate     int
	HeadcountGrowth12mPct *float64
	IsHiring              *bool
	HiringRoles           []string
	RemoteRatio           *float64
	Links                 map[string]string
	ContributingSources   []string
	BlockingKeys          []string
	SourcesUpdatedAt      time.Time
}

func identityOf(e *entity.Entity) identity {
	return identity{
		Type:                  e.Type,
		Name:                  e.Name,
		Description:           e.Description,
		Website:               e.Website,
		Domains:               e.Domains,
		FoundedYear:           e.FoundedYear,
		Country:               e.Country,
		City:                  e.City,
		Lat:                   e.Lat,
		Lon:                   e.Lon,
		FundingRounds:         e.FundingRounds,
		HeadcountEstimate:     e.HeadcountEstimate,
		HeadcountGrowth12mPct: e.HeadcountGrowth12mPct,
		IsHiring:              e.IsHiring,
		HiringRoles:           e.HiringRoles,
		RemoteRatio:           e.RemoteRatio,
		Links:                 e.Links,
		ContributingSources:   e.ContributingSources,
		BlockingKeys:          e.BlockingKeys,
		SourcesUpdatedAt:      e.SourcesUpdatedAt.Time,
	}
}

func (id identity) apply(e *entity.Entity) {
	e.Type = id.Type
	e.Name = id.Name
	e.Description = id.Description
	e.Website = id.Website
	e.Domains = id.Domains
	e.FoundedYear = id.FoundedYear
	e.Country = id.Country
	e.City = id.City
	e.Lat, e.Lon = id.Lat, id.Lon
	e.FundingRounds = id.FundingRounds
	e.HeadcountEstimate = id.HeadcountEstimate
	e.HeadcountGrowth12mPct = id.HeadcountGrowth12mPct
	e.IsHiring = id.IsHiring
	e.HiringRoles = id.HiringRoles
	e.RemoteRatio = id.RemoteRatio
	e.Links = id.Links
	e.ContributingSources = id.ContributingSources
	e.BlockingKeys = id.BlockingKeys
	e.SourcesUpdatedAt = utc.New(id.SourcesUpdatedAt)
}

// sameAs compares everything but SourcesUpdatedAt, which is derived from the
// member set and may lose precision in a store round trip.
func (id identity) sameAs(other identity) bool {
	id.SourcesUpdatedAt, other.SourcesUpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(id, other)
}

// merger resolves field values across the member records of one cluster.
type merger struct {
	authorities authority.Authority
	tolerance   time.Duration
	tracker     provenance.Tracker
}

// sortMembers orders records by first sighting: FetchedAt, then SourceID.
func sortMembers(members []entity.NormalizedRecord) {
	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].FetchedAt.Equal(members[j].FetchedAt) {
			return members[i].FetchedAt.Before(members[j].FetchedAt)
		}
		return members[i].SourceID < members[j].SourceID
	})
}

// better reports whether a should win field over b: higher authority, then
// newer fetch, then smaller source ID.
func (m *merger) better(field string, a, b *entity.NormalizedRecord) bool {
	ra, rb := m.authorities.Rank(field, a.SourceType), m.authorities.Rank(field, b.SourceType)
	if ra != rb {
		return ra > rb
	}
	if !a.FetchedAt.Equal(b.FetchedAt) {
		return a.FetchedAt.After(b.FetchedAt)
	}
	return a.SourceID < b.SourceID
}

// tie reports whether neither authority nor recency separates a and b.
func (m *merger) tie(field string, a, b *entity.NormalizedRecord) bool {
	return m.authorities.Rank(field, a.SourceType) == m.authorities.Rank(field, b.SourceType) &&
		a.FetchedAt.Equal(b.FetchedAt)
}

// merge resolves the identity of entityID from members, which must be sorted
// with sortMembers. Ambiguous choices are returned as conflicts.
func (m *merger) merge(entityID string, members []entity.NormalizedRecord) (identity, []*errors.ResolutionConflict) {
	r := &mergeRun{merger: m, entityID: entityID, members: members}
	var id identity

	id.Type = pick(r, entity.FieldType, func(rec *entity.NormalizedRecord) (entity.Type, bool) {
		return rec.Type, rec.Type != ""
	})
	id.Name = pick(r, entity.FieldName, func(rec *entity.NormalizedRecord) (string, bool) {
		return rec.Name, rec.Name != ""
	})
	id.Description = pick(r, entity.FieldDescription, func(rec *entity.NormalizedRecord) (string, bool) {
		return rec.Description, rec.Description != ""
	})
	id.Website = pick(r, entity.FieldWebsite, func(rec *entity.NormalizedRecord) (string, bool) {
		return rec.Website, rec.Website != ""
	})
	id.FoundedYear = pick(r, entity.FieldFoundedYear, func(rec *entity.NormalizedRecord) (int, bool) {
		return rec.FoundedYear, rec.FoundedYear != 0
	})
	id.Country = pick(r, entity.FieldCountry, func(rec *entity.NormalizedRecord) (string, bool) {
		return rec.Country, rec.Country != ""
	})
	id.City = pick(r, entity.FieldCity, func(rec *entity.NormalizedRecord) (string, bool) {
		return rec.City, rec.City != ""
	})
	id.HeadcountEstimate = pick(r, entity.FieldHeadcountEstimate, func(rec *entity.NormalizedRecord) (int, bool) {
		return rec.HeadcountEstimate, rec.HeadcountEstimate != 0
	})
	id.HeadcountGrowth12mPct = pickPtr(r, entity.FieldHeadcountGrowth, func(rec *entity.NormalizedRecord) *float64 {
		return rec.HeadcountGrowth12mPct
	})
	id.IsHiring = pickPtr(r, entity.FieldIsHiring, func(rec *entity.NormalizedRecord) *bool {
		return rec.IsHiring
	})
	id.RemoteRatio = pickPtr(r, entity.FieldRemoteRatio, func(rec *entity.NormalizedRecord) *float64 {
		return rec.RemoteRatio
	})

	loc := pick(r, entity.FieldLocation, func(rec *entity.NormalizedRecord) ([2]float64, bool) {
		if !rec.HasCoordinates() {
			return [2]float64{}, false
		}
		return [2]float64{*rec.Lat, *rec.Lon}, true
	})
	if r.found {
		id.Lat, id.Lon = entity.Ptr(loc[0]), entity.Ptr(loc[1])
	}

	id.Domains = r.list(entity.FieldDomains, func(rec *entity.NormalizedRecord) []string { return rec.Domains })
	id.HiringRoles = r.list(entity.FieldHiringRoles, func(rec *entity.NormalizedRecord) []string { return rec.HiringRoles })
	id.Links = r.links()
	id.FundingRounds = r.rounds()

	keys := make(map[string]struct{})
	for i := range members {
		rec := &members[i]
		id.ContributingSources = append(id.ContributingSources, rec.SourceID)
		if rec.FetchedAt.After(id.SourcesUpdatedAt) {
			id.SourcesUpdatedAt = rec.FetchedAt
		}
		for _, k := range BlockingKeys(rec) {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		id.BlockingKeys = append(id.BlockingKeys, k)
	}
	slices.Sort(id.BlockingKeys)

	return id, r.conflicts
}

// mergeRun is the state of one merge call.
type mergeRun struct {
	*merger
	entityID  string
	members   []entity.NormalizedRecord
	conflicts []*errors.ResolutionConflict
	found     bool
}

// pick returns the value of the best member that has one and records the decision.
func pick[T comparable](r *mergeRun, field string, get func(*entity.NormalizedRecord) (T, bool)) T {
	var best *entity.NormalizedRecord
	var value T
	r.found = false
	for i := range r.members {
		rec := &r.members[i]
		v, ok := get(rec)
		if !ok {
			continue
		}
		if best == nil || r.better(field, rec, best) {
			best, value = rec, v
		}
	}
	if best == nil {
		return value
	}
	r.found = true

	var candidates []string
	tied := false
	for i := range r.members {
		rec := &r.members[i]
		v, ok := get(rec)
		if !ok || rec == best || v == value {
			continue
		}
		candidates = append(candidates, rec.SourceID)
		if r.tie(field, rec, best) {
			tied = true
		}
	}
	r.track(field, best, value, candidates)
	if tied {
		r.conflicts = append(r.conflicts, errors.NewResolutionConflict(
			r.entityID, field, append([]string{best.SourceID}, candidates...), best.SourceID,
			"equal authority and fetch time, lowest source id wins"))
	}
	return value
}

func pickPtr[T comparable](r *mergeRun, field string, get func(*entity.NormalizedRecord) *T) *T {
	v := pick(r, field, func(rec *entity.NormalizedRecord) (T, bool) {
		p := get(rec)
		if p == nil {
			var zero T
			return zero, false
		}
		return *p, true
	})
	if !r.found {
		return nil
	}
	return &v
}

func (r *mergeRun) track(field string, rec *entity.NormalizedRecord, value any, candidates []string) {
	reason := "highest authority"
	if len(candidates) == 0 {
		reason = "no competing value"
	}
	r.tracker.Track(r.entityID, field, provenance.Provenance{
		SourceID:   rec.SourceID,
		SourceType: rec.SourceType,
		Value:      value,
		Timestamp:  rec.FetchedAt,
		Confidence: rec.Confidence,
		Reason:     reason,
		Candidates: candidates,
	})
}

// latestCorrection returns the newest user correction that sets field.
func (r *mergeRun) latestCorrection(has func(*entity.NormalizedRecord) bool) *entity.NormalizedRecord {
	var latest *entity.NormalizedRecord
	for i := range r.members {
		rec := &r.members[i]
		if rec.SourceType == entity.SourceUserCorrection && has(rec) {
			latest = rec // members are in fetch order
		}
	}
	return latest
}

// list unions a list field case-insensitively in first-seen order. A user
// correction replaces the list instead.
func (r *mergeRun) list(field string, get func(*entity.NormalizedRecord) []string) []string {
	if c := r.latestCorrection(func(rec *entity.NormalizedRecord) bool { return get(rec) != nil }); c != nil {
		out := slices.Clone(get(c))
		r.track(field, c, out, nil)
		return out
	}

	fold := cases.Fold()
	seen := make(map[string]struct{})
	var out []string
	for i := range r.members {
		for _, v := range get(&r.members[i]) {
			k := fold.String(strings.TrimSpace(v))
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// links merges link maps key by key, the best source winning each key.
func (r *mergeRun) links() map[string]string {
	var out map[string]string
	winners := make(map[string]*entity.NormalizedRecord)
	for i := range r.members {
		rec := &r.members[i]
		for k, v := range rec.Links {
			if cur, ok := winners[k]; ok && !r.better(entity.FieldLinks, rec, cur) {
				continue
			}
			if out == nil {
				out = make(map[string]string)
			}
			winners[k] = rec
			out[k] = v
		}
	}
	return out
}

// rounds unions funding rounds, collapsing rounds of one type within the
// tolerance window onto the most confident source.
func (r *mergeRun) rounds() []entity.FundingRound {
	if c := r.latestCorrection(func(rec *entity.NormalizedRecord) bool { return rec.FundingRounds != nil }); c != nil {
		out := slices.Clone(c.FundingRounds)
		entity.SortRounds(out)
		r.track(entity.FieldFundingRounds, c, len(out), nil)
		return out
	}

	type candidate struct {
		round entity.FundingRound
		rec   *entity.NormalizedRecord
	}
	var all []candidate
	for i := range r.members {
		rec := &r.members[i]
		for _, fr := range rec.FundingRounds {
			all = append(all, candidate{round: fr, rec: rec})
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.rec.Confidence != b.rec.Confidence {
			return a.rec.Confidence > b.rec.Confidence
		}
		if a.rec != b.rec {
			return r.better(entity.FieldFundingRounds, a.rec, b.rec)
		}
		return a.round.Date.Before(b.round.Date)
	})

	var kept []entity.FundingRound
	for _, c := range all {
		dup := false
		for _, k := range kept {
			if c.round.SameRound(k, r.tolerance) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c.round)
		}
	}
	entity.SortRounds(kept)
	return kept
}
