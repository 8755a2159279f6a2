// Package normalize maps raw per-source payloads onto the canonical record
// schema. It validates required fields and rejects malformed records with an
// enumerated reason; it never guesses a type and never calls the resolver, so
// any batch can be replayed.
package normalize

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/metrics"
)

// Reason enumerates why a record was rejected.
type Reason string

// Rejection reasons.
const (
	MissingName         Reason = "MissingName"
	UnknownType         Reason = "UnknownType"
	MalformedURL        Reason = "MalformedURL"
	MalformedCoordinate Reason = "MalformedCoordinate"
	UnknownSourceType   Reason = "UnknownSourceType"
	MissingSourceID     Reason = "MissingSourceID"
)

// Rejection is returned for records that fail validation.
type Rejection struct {
	Reason   Reason
	SourceID string
	Field    string
	Value    any
}

// Error implements the error interface
func (r *Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("record %s rejected (%s): field %s=%v", r.SourceID, r.Reason, r.Field, r.Value)
	}
	return fmt.Sprintf("record %s rejected (%s)", r.SourceID, r.Reason)
}

// Unwrap exposes the rejection as a validation error
func (r *Rejection) Unwrap() error {
	return errors.NewValidationError(r.Field, r.Value, string(r.Reason))
}

func reject(raw *entity.RawRecord, reason Reason, field string, value any) *Rejection {
	return &Rejection{Reason: reason, SourceID: raw.SourceID, Field: field, Value: value}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

// typeTable is the fixed lookup of raw type labels. Unlisted labels are rejected.
var typeTable = map[string]entity.Type{
	"startup":         entity.TypeStartup,
	"company":         entity.TypeStartup,
	"scaleup":         entity.TypeStartup,
	"investor":        entity.TypeInvestor,
	"vc":              entity.TypeInvestor,
	"venture_capital": entity.TypeInvestor,
	"fund":            entity.TypeInvestor,
	"cvc":             entity.TypeInvestor,
	"accelerator":     entity.TypeAccelerator,
	"incubator":       entity.TypeAccelerator,
	"space":           entity.TypeSpace,
	"coworking":       entity.TypeSpace,
	"coworking_space": entity.TypeSpace,
	"event":           entity.TypeEvent,
	"conference":      entity.TypeEvent,
	"meetup":          entity.TypeEvent,
	"demo_day":        entity.TypeEvent,
}

// LookupType maps a raw type label through the fixed lookup table.
func LookupType(raw string) (entity.Type, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	t, ok := typeTable[key]
	return t, ok
}

var numericEntity = regexp.MustCompile(`&#[xX]?[0-9a-fA-F]+;`)

// CleanText strips numeric HTML entities, decodes named ones, collapses
// whitespace and truncates to limit runes.
func CleanText(s string, limit int) string {
	s = numericEntity.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = collapseSpace(s)
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return s
}

// CleanWebsite validates a website and returns it in canonical form:
// lowercase scheme and host, no fragment, no trailing slash.
func CleanWebsite(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " _") {
		return "", fmt.Errorf("invalid host %q", u.Host)
	}
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	out := scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out, nil
}

// Normalize projects a raw record onto the canonical schema.
func Normalize(raw entity.RawRecord) (entity.NormalizedRecord, error) {
	p := payload(raw.Payload)
	rec := entity.NormalizedRecord{
		SourceID:  strings.TrimSpace(raw.SourceID),
		FetchedAt: raw.FetchedAt.UTC(),
	}

	if rec.SourceID == "" {
		return rec, reject(&raw, MissingSourceID, "source_id", raw.SourceID)
	}

	st, ok := entity.ParseSourceType(raw.SourceType)
	if !ok {
		return rec, reject(&raw, UnknownSourceType, "source_type", raw.SourceType)
	}
	rec.SourceType = st
	rec.Confidence = st.Confidence()
	if c, _, err := p.float("confidence"); err == nil && c != nil && *c >= 0 && *c <= 1 {
		rec.Confidence = *c
	}

	rec.Name = CleanText(p.str("name", "title", "company_name"), constants.MaxNameLength)
	if rec.Name == "" {
		return rec, reject(&raw, MissingName, "name", p.str("name"))
	}

	rawType := p.str("type", "entity_type", "category")
	t, ok := LookupType(rawType)
	if !ok {
		return rec, reject(&raw, UnknownType, "type", rawType)
	}
	rec.Type = t

	if err := applyFields(&rec, p, &raw); err != nil {
		return rec, err
	}
	return rec, nil
}

// applyFields fills every optional field present in p.
func applyFields(rec *entity.NormalizedRecord, p payload, raw *entity.RawRecord) error {
	if site := p.str("website", "url", "homepage"); site != "" {
		clean, err := CleanWebsite(site)
		if err != nil {
			return reject(raw, MalformedURL, "website", site)
		}
		rec.Website = clean
	}

	if err := applyCoordinates(rec, p, raw); err != nil {
		return err
	}

	rec.Description = CleanText(p.str("description", "summary"), constants.MaxDescriptionLength)
	rec.Domains = p.strings("domains", "tags", "industries")
	rec.Country = strings.ToUpper(collapseSpace(p.str("country", "country_code")))
	rec.City = collapseSpace(p.str("city"))
	rec.HiringRoles = p.strings("hiring_roles", "open_roles")
	rec.IsHiring = p.boolean("is_hiring", "hiring")
	rec.Links = p.stringMap("links")

	if year, _, err := p.float("founded_year", "founded"); err == nil && year != nil {
		y := int(*year)
		if y >= 1800 && y <= time.Now().Year()+1 {
			rec.FoundedYear = y
		}
	}
	if hc, _, err := p.float("headcount_estimate", "employees", "headcount"); err == nil && hc != nil && *hc >= 0 {
		rec.HeadcountEstimate = int(*hc)
	}
	if g, _, err := p.float("headcount_growth_12m_pct"); err == nil && g != nil {
		rec.HeadcountGrowth12mPct = g
	}
	if r, _, err := p.float("remote_ratio"); err == nil && r != nil && *r >= 0 && *r <= 1 {
		rec.RemoteRatio = r
	}

	rec.FundingRounds = fundingRounds(p, rec.SourceID)
	return nil
}

func applyCoordinates(rec *entity.NormalizedRecord, p payload, raw *entity.RawRecord) error {
	lat, latKey, latErr := p.float("lat", "latitude")
	lon, lonKey, lonErr := p.float("lon", "lng", "longitude")
	switch {
	case latErr != nil:
		return reject(raw, MalformedCoordinate, latKey, p[latKey])
	case lonErr != nil:
		return reject(raw, MalformedCoordinate, lonKey, p[lonKey])
	case lat == nil && lon == nil:
		return nil
	case lat == nil || lon == nil:
		return reject(raw, MalformedCoordinate, "lat/lon", "incomplete pair")
	case *lat < -90 || *lat > 90:
		return reject(raw, MalformedCoordinate, "lat", *lat)
	case *lon < -180 || *lon > 180:
		return reject(raw, MalformedCoordinate, "lon", *lon)
	}
	rec.Lat, rec.Lon = lat, lon
	return nil
}

func fundingRounds(p payload, sourceID string) []entity.FundingRound {
	var rounds []entity.FundingRound
	for _, m := range p.maps("funding_rounds", "funding") {
		rp := payload(m)
		label := rp.str("round_type", "type", "stage")
		if label == "" {
			continue
		}
		round := entity.FundingRound{
			RoundType: entity.ParseRoundType(label),
			Currency:  strings.ToUpper(rp.str("currency")),
			SourceID:  sourceID,
		}
		if amount, _, err := rp.float("amount"); err == nil {
			round.Amount = amount
		}
		if v, _, ok := rp.lookup("date", "announced_on"); ok {
			if d, ok := toTime(v); ok {
				round.Date = d
			}
		}
		rounds = append(rounds, round)
	}
	entity.SortRounds(rounds)
	return rounds
}

// Rejected pairs a raw record with the reason it was dropped.
type Rejected struct {
	Raw entity.RawRecord
	Err error
}

// Batch normalizes every record, logging and collecting rejections without
// aborting. Within the batch only the newest fetch per source survives.
func Batch(ctx context.Context, raws []entity.RawRecord) ([]entity.NormalizedRecord, []Rejected) {
	log := logging.Ctx(ctx)
	latest := make(map[string]int)
	var accepted []entity.NormalizedRecord
	var rejected []Rejected

	for _, raw := range raws {
		rec, err := Normalize(raw)
		if err != nil {
			reason, _ := ReasonOf(err)
			log.Warn().
				Str("source_id", raw.SourceID).
				Str("reason", string(reason)).
				Err(err).
				Msg("Record rejected")
			metrics.RecordsNormalized.WithLabelValues("rejected", string(reason)).Inc()
			rejected = append(rejected, Rejected{Raw: raw, Err: err})
			continue
		}
		metrics.RecordsNormalized.WithLabelValues("accepted", "").Inc()
		if i, seen := latest[rec.SourceID]; seen {
			if rec.Supersedes(&accepted[i]) {
				accepted[i] = rec
			}
			continue
		}
		latest[rec.SourceID] = len(accepted)
		accepted = append(accepted, rec)
	}

	log.Debug().
		Int("accepted", len(accepted)).
		Int("rejected", len(rejected)).
		Msg("Batch normalized")
	return accepted, rejected
}
