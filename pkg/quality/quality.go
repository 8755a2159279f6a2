// Package quality enforces the data-quality lifecycle of entities. An audit
// moves entities between active, flagged and archived based on missing
// fields, implausible funding, user disputes, configurable rules and
// staleness. Corrections and reviews settle flags. The manager only changes
// status, flags and archive time; merged field values belong to the resolver.
package quality

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/agentstation/utc"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/metrics"
	"github.com/agentstation/ecomap/pkg/store"
)

var tracer = otel.Tracer("github.com/agentstation/ecomap/pkg/quality")

// Refresher recomputes an entity from its members plus extra records.
type Refresher interface {
	Refresh(ctx context.Context, entityID string, extra ...entity.NormalizedRecord) (*entity.Entity, error)
}

// Manager runs audits and applies corrections.
type Manager struct {
	store    store.Store
	resolver Refresher
	opts     *options
}

// NewManager creates a Manager. The resolver is only needed for corrections.
func NewManager(s store.Store, resolver Refresher, opts ...Option) (*Manager, error) {
	if s == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Manager{store: s, resolver: resolver, opts: o}, nil
}

// AuditResult summarizes an audit.
type AuditResult struct {
	Flagged     []string
	Cleared     []string // flagged entities whose triggers went away
	Archived    []string
	Reactivated []string
	Failed      map[string]error

	mu sync.Mutex
}

func (r *AuditResult) record(id string, ev *entity.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case ev.To == entity.StatusFlagged:
		r.Flagged = append(r.Flagged, id)
	case ev.To == entity.StatusArchived:
		r.Archived = append(r.Archived, id)
	case ev.From == entity.StatusArchived:
		r.Reactivated = append(r.Reactivated, id)
	default:
		r.Cleared = append(r.Cleared, id)
	}
}

func (r *AuditResult) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[id] = err
}

// RunAudit evaluates every entity once. Per-entity failures are collected in
// the result; only store unavailability or cancellation returns an error.
func (m *Manager) RunAudit(ctx context.Context) (*AuditResult, error) {
	ctx = logging.WithOperation(ctx, "audit")
	ctx, span := tracer.Start(ctx, "quality.RunAudit")
	defer span.End()
	start := time.Now()

	entities, err := m.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("entities", len(entities)))

	now := m.opts.now().UTC()
	result := &AuditResult{Failed: make(map[string]error)}
	p := pool.New().
		WithMaxGoroutines(m.opts.concurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, e := range entities {
		if e.Absorbed() {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				return nil
			}
			ev, err := m.audit(ctx, e, now)
			switch {
			case errors.IsStoreUnavailable(err):
				return err
			case err != nil:
				logging.Ctx(ctx).Error().Err(err).Str("entity_id", e.ID).Msg("Audit failed")
				result.fail(e.ID, err)
			case ev != nil:
				result.record(e.ID, ev)
				m.emit(ctx, *ev)
			}
			return nil
		})
	}
	err = p.Wait()
	for _, ids := range [][]string{result.Flagged, result.Cleared, result.Archived, result.Reactivated} {
		slices.Sort(ids)
	}

	logging.Ctx(ctx).Info().
		Int("entities", len(entities)).
		Int("flagged", len(result.Flagged)).
		Int("cleared", len(result.Cleared)).
		Int("archived", len(result.Archived)).
		Int("reactivated", len(result.Reactivated)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Audit complete")

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.Join(errors.ErrCanceled, ctxErr)
	}
	return result, nil
}

// audit evaluates one entity and writes its new status and flags. It returns
// the transition, or nil when the status did not change.
func (m *Manager) audit(ctx context.Context, snapshot *entity.Entity, now time.Time) (*entity.AuditEvent, error) {
	id := snapshot.ID
	reports, err := m.store.Reports(ctx, id)
	if err != nil {
		return nil, err
	}
	var members []entity.NormalizedRecord
	if snapshot.Status == entity.StatusArchived {
		if members, err = m.store.Members(ctx, id); err != nil {
			return nil, err
		}
	}

	var ev *entity.AuditEvent
	var ruleErr error
	_, err = store.Update(ctx, m.store, id, func(e *entity.Entity) (bool, error) {
		ev, ruleErr = nil, nil
		if e.Absorbed() {
			return false, nil
		}

		from := e.Status
		to, reason := from, ""
		var flags []string
		switch {
		case from == entity.StatusArchived:
			if !m.reactivates(e, members) {
				return false, nil
			}
			to, reason = entity.StatusActive, "confident record merged after archival"
		case m.stale(e, now):
			to, reason = entity.StatusArchived, "no source update within staleness window"
		default:
			flags, ruleErr = m.flags(e, reports, now)
			if len(flags) > 0 {
				to, reason = entity.StatusFlagged, flags[0]
			} else {
				to, reason = entity.StatusActive, "flag triggers cleared"
			}
		}

		if to == from && slices.Equal(flags, e.QualityFlags) {
			return false, nil
		}
		e.QualityFlags = flags
		e.Status = to
		switch to {
		case entity.StatusArchived:
			e.ArchivedAt = entity.Ptr(utc.New(now))
		case entity.StatusActive:
			e.ArchivedAt = nil
		}
		if to != from {
			event := entity.NewAuditEvent(e.ID, from, to, reason, utc.New(now))
			ev = &event
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if ruleErr != nil {
		logging.Ctx(ctx).Warn().Err(ruleErr).Str("entity_id", id).Msg("Quality rule failed")
	}
	return ev, nil
}

// emit records a transition in the sink and metrics.
func (m *Manager) emit(ctx context.Context, ev entity.AuditEvent) {
	metrics.QualityTransitions.WithLabelValues(ev.Transition).Inc()
	m.opts.sink.Emit(ctx, ev)
}
