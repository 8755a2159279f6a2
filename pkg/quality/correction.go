package quality

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/normalize"
	"github.com/agentstation/ecomap/pkg/store"
)

// ApplyCorrection merges a user correction into its entity. The correction
// becomes a user_correction member, which outranks every other source for
// its field, and the entity is refreshed. A flagged entity returns to active
// and disputes of the field filed before the correction are resolved.
func (m *Manager) ApplyCorrection(ctx context.Context, c entity.UserCorrection) (*entity.Entity, error) {
	ctx = logging.WithEntityID(logging.WithOperation(ctx, "correct"), c.EntityID)
	ctx, span := tracer.Start(ctx, "quality.ApplyCorrection")
	defer span.End()

	if m.resolver == nil {
		return nil, errors.NewConfigError("quality", "corrections need a resolver", nil)
	}
	if strings.TrimSpace(c.SubmitterRef) == "" {
		return nil, errors.NewValidationError("submitter_ref", c.SubmitterRef, "correction has no submitter")
	}
	rec, err := normalize.FromCorrection(c)
	if err != nil {
		return nil, err
	}

	refreshed, err := m.resolver.Refresh(ctx, c.EntityID, rec)
	if err != nil {
		return nil, err
	}

	reason := "correction of " + c.Field
	e, ev, err := m.settle(ctx, refreshed.ID, reason)
	if err != nil {
		return nil, err
	}

	ids := []string{c.EntityID}
	if refreshed.ID != c.EntityID {
		ids = append(ids, refreshed.ID)
	}
	for _, id := range ids {
		if err := m.resolveReports(ctx, id, func(r *entity.UserReport) bool {
			return r.Field == c.Field && !r.SubmittedAt.After(c.SubmittedAt)
		}, c.SubmittedAt); err != nil {
			return nil, err
		}
	}
	if ev != nil {
		m.emit(ctx, *ev)
	}

	logging.Ctx(ctx).Info().
		Str("field", c.Field).
		Str("submitter", c.SubmitterRef).
		Str("source_id", rec.SourceID).
		Msg("Correction applied")
	return e, nil
}

// Review records a manual review of a flagged entity: its flags are cleared,
// it returns to active and every open dispute is resolved. Data-derived
// triggers that still hold flag the entity again on the next audit.
func (m *Manager) Review(ctx context.Context, entityID, reviewer string) (*entity.Entity, error) {
	ctx = logging.WithEntityID(logging.WithOperation(ctx, "review"), entityID)
	if strings.TrimSpace(reviewer) == "" {
		return nil, errors.NewValidationError("reviewer", reviewer, "review has no reviewer")
	}

	e, ev, err := m.settle(ctx, entityID, "reviewed by "+reviewer)
	if err != nil {
		return nil, err
	}
	now := m.opts.now().UTC()
	if err := m.resolveReports(ctx, entityID, func(*entity.UserReport) bool { return true }, now); err != nil {
		return nil, err
	}
	if ev != nil {
		m.emit(ctx, *ev)
	}
	logging.Ctx(ctx).Info().Str("reviewer", reviewer).Msg("Entity reviewed")
	return e, nil
}

// settle moves a flagged entity back to active and clears its flags.
func (m *Manager) settle(ctx context.Context, id, reason string) (*entity.Entity, *entity.AuditEvent, error) {
	var ev *entity.AuditEvent
	now := m.opts.now().UTC()
	e, err := store.Update(ctx, m.store, id, func(e *entity.Entity) (bool, error) {
		ev = nil
		if e.Status != entity.StatusFlagged {
			return false, nil
		}
		e.Status = entity.StatusActive
		e.QualityFlags = nil
		event := entity.NewAuditEvent(e.ID, entity.StatusFlagged, entity.StatusActive, reason, utc.New(now))
		ev = &event
		return true, nil
	})
	return e, ev, err
}

// resolveReports marks the open reports of an entity that match as resolved.
func (m *Manager) resolveReports(ctx context.Context, entityID string, match func(*entity.UserReport) bool, at time.Time) error {
	reports, err := m.store.Reports(ctx, entityID)
	if err != nil {
		return err
	}
	for i := range reports {
		r := &reports[i]
		if r.Resolved() || !match(r) {
			continue
		}
		r.ResolvedAt = &at
		if err := m.store.AddReport(ctx, *r); err != nil {
			return err
		}
	}
	return nil
}

// FileReport stores a user dispute of one entity field. Missing IDs and
// submission times are filled in.
func (m *Manager) FileReport(ctx context.Context, r entity.UserReport) (entity.UserReport, error) {
	if strings.TrimSpace(r.SubmitterRef) == "" {
		return r, errors.NewValidationError("submitter_ref", r.SubmitterRef, "report has no submitter")
	}
	if !slices.Contains(ReportableFields, r.Field) {
		return r, errors.NewValidationError("field", r.Field, "field cannot be disputed")
	}
	if _, err := m.store.Get(ctx, r.EntityID); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = m.opts.now().UTC()
	}
	r.ResolvedAt = nil
	if err := m.store.AddReport(ctx, r); err != nil {
		return r, err
	}
	logging.Ctx(ctx).Info().
		Str("entity_id", r.EntityID).
		Str("field", r.Field).
		Str("submitter", r.SubmitterRef).
		Msg("Report filed")
	return r, nil
}

// ReportableFields lists the fields users may dispute.
var ReportableFields = []string{
	entity.FieldType, entity.FieldName, entity.FieldDescription, entity.FieldWebsite,
	entity.FieldDomains, entity.FieldCountry, entity.FieldCity, entity.FieldLocation,
	entity.FieldFoundedYear, entity.FieldFundingRounds, entity.FieldHeadcountEstimate,
	entity.FieldHeadcountGrowth, entity.FieldIsHiring, entity.FieldHiringRoles,
	entity.FieldRemoteRatio, entity.FieldLinks,
}
