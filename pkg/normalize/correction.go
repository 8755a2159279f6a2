package normalize

import (
	"fmt"
	"strings"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// CorrectionSourceID derives the stable source ID of a user correction.
func CorrectionSourceID(c entity.UserCorrection) string {
	return fmt.Sprintf("correction:%s:%s:%s:%d", c.EntityID, c.Field, c.SubmitterRef, c.SubmittedAt.UnixNano())
}

// FromCorrection turns a user correction into a single-field record with
// user_correction priority.
func FromCorrection(c entity.UserCorrection) (entity.NormalizedRecord, error) {
	rec := entity.NormalizedRecord{
		SourceID:   CorrectionSourceID(c),
		SourceType: entity.SourceUserCorrection,
		FetchedAt:  c.SubmittedAt.UTC(),
		Confidence: entity.SourceUserCorrection.Confidence(),
	}
	if c.EntityID == "" {
		return rec, errors.NewValidationError("entity_id", c.EntityID, "correction has no entity")
	}
	if c.SubmittedAt.IsZero() {
		return rec, errors.NewValidationError("submitted_at", c.SubmittedAt, "correction has no submission time")
	}

	raw := entity.RawRecord{SourceID: rec.SourceID}
	p := payload{}

	switch c.Field {
	case entity.FieldName:
		rec.Name = CleanText(toString(c.NewValue), constants.MaxNameLength)
		if rec.Name == "" {
			return rec, reject(&raw, MissingName, c.Field, c.NewValue)
		}
		return rec, nil
	case entity.FieldType:
		t, ok := LookupType(toString(c.NewValue))
		if !ok {
			return rec, reject(&raw, UnknownType, c.Field, c.NewValue)
		}
		rec.Type = t
		return rec, nil
	case entity.FieldLocation:
		lat, lon, ok := locationValue(c.NewValue)
		if !ok {
			return rec, reject(&raw, MalformedCoordinate, c.Field, c.NewValue)
		}
		p["lat"], p["lon"] = lat, lon
	case entity.FieldDescription, entity.FieldWebsite, entity.FieldDomains, entity.FieldCountry,
		entity.FieldCity, entity.FieldFoundedYear, entity.FieldFundingRounds, entity.FieldHeadcountEstimate,
		entity.FieldHeadcountGrowth, entity.FieldIsHiring, entity.FieldHiringRoles, entity.FieldRemoteRatio,
		entity.FieldLinks:
		p[c.Field] = c.NewValue
	default:
		return rec, errors.NewValidationError("field", c.Field, "field cannot be corrected")
	}

	if err := applyFields(&rec, p, &raw); err != nil {
		return rec, err
	}
	return rec, nil
}

// locationValue accepts {"lat":..,"lon":..}, [lat, lon] or "lat,lon".
func locationValue(v any) (any, any, bool) {
	switch loc := v.(type) {
	case map[string]any:
		lat, okLat := loc["lat"]
		lon, okLon := loc["lon"]
		return lat, lon, okLat && okLon
	case []any:
		if len(loc) == 2 {
			return loc[0], loc[1], true
		}
	case []float64:
		if len(loc) == 2 {
			return loc[0], loc[1], true
		}
	case string:
		if lat, lon, ok := strings.Cut(loc, ","); ok {
			return lat, lon, true
		}
	}
	return nil, nil, false
}
