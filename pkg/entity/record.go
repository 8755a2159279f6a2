package entity

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawRecord is an unvalidated payload from a single source fetch.
// It is never mutated; a newer fetch for the same SourceID supersedes it.
type RawRecord struct {
	SourceID   string         `json:"source_id" yaml:"source_id"`
	SourceType string         `json:"source_type" yaml:"source_type"`
	FetchedAt  time.Time      `json:"fetched_at" yaml:"fetched_at"`
	Payload    map[string]any `json:"payload" yaml:"payload"`
}

// NormalizedRecord is the typed projection of a RawRecord onto the canonical field set.
type NormalizedRecord struct {
	SourceID   string     `json:"source_id" yaml:"source_id"`
	SourceType SourceType `json:"source_type" yaml:"source_type"`
	FetchedAt  time.Time  `json:"fetched_at" yaml:"fetched_at"`
	Confidence float64    `json:"confidence" yaml:"confidence"`

	// MergedAt is when the record last joined its entity's members.
	MergedAt time.Time `json:"merged_at,omitzero" yaml:"merged_at,omitempty"`

	Type        Type     `json:"type,omitempty" yaml:"type,omitempty"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Domains     []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	Country     string   `json:"country,omitempty" yaml:"country,omitempty"`
	City        string   `json:"city,omitempty" yaml:"city,omitempty"`
	Lat         *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
	FoundedYear int      `json:"founded_year,omitempty" yaml:"founded_year,omitempty"`

	FundingRounds         []FundingRound    `json:"funding_rounds,omitempty" yaml:"funding_rounds,omitempty"`
	HeadcountEstimate     int               `json:"headcount_estimate,omitempty" yaml:"headcount_estimate,omitempty"`
	HeadcountGrowth12mPct *float64          `json:"headcount_growth_12m_pct,omitempty" yaml:"headcount_growth_12m_pct,omitempty"`
	IsHiring              *bool             `json:"is_hiring,omitempty" yaml:"is_hiring,omitempty"`
	HiringRoles           []string          `json:"hiring_roles,omitempty" yaml:"hiring_roles,omitempty"`
	RemoteRatio           *float64          `json:"remote_ratio,omitempty" yaml:"remote_ratio,omitempty"`
	Links                 map[string]string `json:"links,omitempty" yaml:"links,omitempty"`
}

// HasCoordinates reports whether the record carries a full lat/lon pair.
func (r *NormalizedRecord) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// Supersedes reports whether r is a newer fetch than other for the same source.
// Equal fetch times fall back to the higher confidence, then to the greater
// encoded content, so the winner never depends on delivery order.
func (r *NormalizedRecord) Supersedes(other *NormalizedRecord) bool {
	if !r.FetchedAt.Equal(other.FetchedAt) {
		return r.FetchedAt.After(other.FetchedAt)
	}
	if r.Confidence != other.Confidence {
		return r.Confidence > other.Confidence
	}
	return bytes.Compare(r.fingerprint(), other.fingerprint()) > 0
}

// fingerprint encodes the record content. MergedAt is bookkeeping, not content.
func (r *NormalizedRecord) fingerprint() []byte {
	c := *r
	c.MergedAt = time.Time{}
	b, _ := json.Marshal(&c)
	return b
}

// LandedAt is when the record reached the catalog: its merge time when known,
// else its fetch time.
func (r *NormalizedRecord) LandedAt() time.Time {
	if r.MergedAt.After(r.FetchedAt) {
		return r.MergedAt
	}
	return r.FetchedAt
}

// UserCorrection is a privileged edit of a single entity field.
type UserCorrection struct {
	EntityID     string    `json:"entity_id" yaml:"entity_id"`
	Field        string    `json:"field" yaml:"field"`
	NewValue     any       `json:"new_value" yaml:"new_value"`
	SubmittedAt  time.Time `json:"submitted_at" yaml:"submitted_at"`
	SubmitterRef string    `json:"submitter_ref" yaml:"submitter_ref"`
}

// UserReport is a user dispute of a single entity field.
type UserReport struct {
	ID           string    `json:"id" yaml:"id"`
	EntityID     string    `json:"entity_id" yaml:"entity_id"`
	Field        string    `json:"field" yaml:"field"`
	Reason       string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at" yaml:"submitted_at"`
	SubmitterRef string    `json:"submitter_ref" yaml:"submitter_ref"`

	// ResolvedAt is set once a correction or review settles the dispute.
	ResolvedAt *time.Time `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
}

// Resolved reports whether the dispute has been settled.
func (r *UserReport) Resolved() bool {
	return r.ResolvedAt != nil
}
