package entity

import (
	"slices"

	"github.com/agentstation/utc"
)

// Field names addressable by corrections, reports and provenance.
const (
	FieldType              = "type"
	FieldName              = "name"
	FieldDescription       = "description"
	FieldWebsite           = "website"
	FieldDomains           = "domains"
	FieldCountry           = "country"
	FieldCity              = "city"
	FieldLocation          = "location" // lat/lon pair
	FieldFoundedYear       = "founded_year"
	FieldFundingRounds     = "funding_rounds"
	FieldHeadcountEstimate = "headcount_estimate"
	FieldHeadcountGrowth   = "headcount_growth_12m_pct"
	FieldIsHiring          = "is_hiring"
	FieldHiringRoles       = "hiring_roles"
	FieldRemoteRatio       = "remote_ratio"
	FieldLinks             = "links"
)

// Entity is the canonical, merged record for one real-world organization or event.
type Entity struct {
	ID   string `json:"id" yaml:"id"`
	Type Type   `json:"type" yaml:"type"`

	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty"`
	Domains     []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	FoundedYear int      `json:"founded_year,omitempty" yaml:"founded_year,omitempty"`
	Country     string   `json:"country,omitempty" yaml:"country,omitempty"`
	City        string   `json:"city,omitempty" yaml:"city,omitempty"`
	Lat         *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`

	FundingRounds         []FundingRound    `json:"funding_rounds,omitempty" yaml:"funding_rounds,omitempty"`
	HeadcountEstimate     int               `json:"headcount_estimate,omitempty" yaml:"headcount_estimate,omitempty"`
	HeadcountGrowth12mPct *float64          `json:"headcount_growth_12m_pct,omitempty" yaml:"headcount_growth_12m_pct,omitempty"`
	IsHiring              *bool             `json:"is_hiring,omitempty" yaml:"is_hiring,omitempty"`
	HiringRoles           []string          `json:"hiring_roles,omitempty" yaml:"hiring_roles,omitempty"`
	RemoteRatio           *float64          `json:"remote_ratio,omitempty" yaml:"remote_ratio,omitempty"`
	Links                 map[string]string `json:"links,omitempty" yaml:"links,omitempty"`

	GrowthScore     *float64     `json:"growth_score,omitempty" yaml:"growth_score,omitempty"`
	ScoreConfidence float64      `json:"score_confidence,omitempty" yaml:"score_confidence,omitempty"`
	Signals         SignalBundle `json:"signals,omitempty" yaml:"signals,omitempty"`

	ContributingSources []string `json:"contributing_sources" yaml:"contributing_sources"`
	BlockingKeys        []string `json:"blocking_keys,omitempty" yaml:"blocking_keys,omitempty"`
	QualityFlags        []string `json:"quality_flags,omitempty" yaml:"quality_flags,omitempty"`
	Status              Status   `json:"status" yaml:"status"`
	MergedInto          string   `json:"merged_into,omitempty" yaml:"merged_into,omitempty"`

	CreatedAt        utc.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt        utc.Time  `json:"updated_at" yaml:"updated_at"`
	SourcesUpdatedAt utc.Time  `json:"sources_updated_at" yaml:"sources_updated_at"`
	ArchivedAt       *utc.Time `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`

	// Version is the optimistic concurrency token maintained by the store.
	Version int64 `json:"version" yaml:"version"`
}

// HasSource reports whether sourceID contributed to the entity.
func (e *Entity) HasSource(sourceID string) bool {
	return slices.Contains(e.ContributingSources, sourceID)
}

// HasBlockingKey reports whether the entity is indexed under key.
func (e *Entity) HasBlockingKey(key string) bool {
	return slices.Contains(e.BlockingKeys, key)
}

// MissingDisplayFields reports whether the entity is name-only: no
// description, website or domain tags.
func (e *Entity) MissingDisplayFields() bool {
	return e.Description == "" && e.Website == "" && len(e.Domains) == 0
}

// Absorbed reports whether the entity was merged into another one.
func (e *Entity) Absorbed() bool {
	return e.MergedInto != ""
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Domains = slices.Clone(e.Domains)
	c.HiringRoles = slices.Clone(e.HiringRoles)
	c.ContributingSources = slices.Clone(e.ContributingSources)
	c.BlockingKeys = slices.Clone(e.BlockingKeys)
	c.QualityFlags = slices.Clone(e.QualityFlags)
	c.Lat = clonePtr(e.Lat)
	c.Lon = clonePtr(e.Lon)
	c.HeadcountGrowth12mPct = clonePtr(e.HeadcountGrowth12mPct)
	c.IsHiring = clonePtr(e.IsHiring)
	c.RemoteRatio = clonePtr(e.RemoteRatio)
	c.GrowthScore = clonePtr(e.GrowthScore)
	c.ArchivedAt = clonePtr(e.ArchivedAt)
	c.Signals = e.Signals.Clone()
	if e.Links != nil {
		c.Links = make(map[string]string, len(e.Links))
		for k, v := range e.Links {
			c.Links[k] = v
		}
	}
	if e.FundingRounds != nil {
		c.FundingRounds = make([]FundingRound, len(e.FundingRounds))
		for i, r := range e.FundingRounds {
			r.Amount = clonePtr(r.Amount)
			c.FundingRounds[i] = r
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
