package signals

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/metrics"
	"github.com/agentstation/ecomap/pkg/store"
)

var tracer = otel.Tracer("github.com/agentstation/ecomap/pkg/signals")

// Source supplies fresh signal observations for an entity. A nil bundle means
// nothing new was observed.
type Source interface {
	Signals(ctx context.Context, e *entity.Entity) (entity.SignalBundle, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, e *entity.Entity) (entity.SignalBundle, error)

// Signals implements Source.
func (f SourceFunc) Signals(ctx context.Context, e *entity.Entity) (entity.SignalBundle, error) {
	return f(ctx, e)
}

// StaticSource serves fixed bundles keyed by entity ID.
type StaticSource map[string]entity.SignalBundle

// Signals implements Source.
func (s StaticSource) Signals(_ context.Context, e *entity.Entity) (entity.SignalBundle, error) {
	return s[e.ID], nil
}

type options struct {
	weights     Weights
	concurrency int
	strict      bool
}

// Option configures an Aggregator.
type Option func(*options) error

// WithWeights overrides the component weights.
func WithWeights(w Weights) Option {
	return func(o *options) error {
		if err := w.Validate(); err != nil {
			return err
		}
		o.weights = w
		return nil
	}
}

// WithConcurrency bounds the number of entities scored in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxConcurrency {
			return errors.NewValidationError("concurrency", n, "out of range")
		}
		o.concurrency = n
		return nil
	}
}

// WithStrict makes ScoreEntity return ScoringDataMissing for entities
// without any signal.
func WithStrict(strict bool) Option {
	return func(o *options) error {
		o.strict = strict
		return nil
	}
}

// Aggregator scores entities and writes their signals back to the store.
type Aggregator struct {
	store  store.Store
	source Source
	scorer *Scorer
	opts   options
}

// NewAggregator creates an Aggregator. A nil source scores from the signals
// already stored on each entity.
func NewAggregator(s store.Store, source Source, opts ...Option) (*Aggregator, error) {
	if s == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	}
	o := options{concurrency: constants.DefaultConcurrency}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	scorer, err := NewScorer(o.weights)
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = StaticSource(nil)
	}
	return &Aggregator{store: s, source: source, scorer: scorer, opts: o}, nil
}

// Result summarizes a scoring run.
type Result struct {
	Scored    []string
	Unscored  []string // no signal at all; score left absent
	Unchanged []string
	Failed    map[string]error

	mu sync.Mutex
}

func (r *Result) record(id string, o outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.Failed[id] = err
	case o == outcomeUnchanged:
		r.Unchanged = append(r.Unchanged, id)
	case o == outcomeUnscored:
		r.Unscored = append(r.Unscored, id)
	default:
		r.Scored = append(r.Scored, id)
	}
}

type outcome int

const (
	outcomeScored outcome = iota
	outcomeUnscored
	outcomeUnchanged
)

// Run scores every active and flagged entity. Failures of single entities are
// collected in the result; only store unavailability or cancellation returns
// an error.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	ctx = logging.WithOperation(ctx, "score")
	ctx, span := tracer.Start(ctx, "signals.Run")
	defer span.End()
	start := time.Now()

	entities, err := a.store.FindByStatus(ctx, entity.StatusActive, entity.StatusFlagged)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("entities", len(entities)))

	result := &Result{Failed: make(map[string]error)}
	p := pool.New().
		WithMaxGoroutines(a.opts.concurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, e := range entities {
		p.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				return nil
			}
			_, o, err := a.score(ctx, e)
			if errors.IsStoreUnavailable(err) {
				return err
			}
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("entity_id", e.ID).Msg("Scoring failed")
			}
			result.record(e.ID, o, err)
			return nil
		})
	}
	err = p.Wait()
	for _, ids := range [][]string{result.Scored, result.Unscored, result.Unchanged} {
		slices.Sort(ids)
	}

	logging.Ctx(ctx).Info().
		Int("entities", len(entities)).
		Int("scored", len(result.Scored)).
		Int("unscored", len(result.Unscored)).
		Int("unchanged", len(result.Unchanged)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Scoring complete")

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

// ScoreEntity scores one entity. In strict mode an entity without any signal
// yields ScoringDataMissing; its stored signals are still refreshed.
func (a *Aggregator) ScoreEntity(ctx context.Context, id string) (*entity.Entity, error) {
	ctx = logging.WithEntityID(logging.WithOperation(ctx, "score"), id)
	e, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, _, err := a.score(ctx, e)
	if err != nil {
		return nil, err
	}
	if a.opts.strict && updated.GrowthScore == nil {
		return updated, errors.NewScoringDataMissing(id)
	}
	return updated, nil
}

// score merges fresh signals into e and writes the new score. Only the
// signal fields are written; identity fields are left to the resolver.
func (a *Aggregator) score(ctx context.Context, e *entity.Entity) (*entity.Entity, outcome, error) {
	fresh, err := a.source.Signals(ctx, e)
	if err != nil {
		return nil, 0, errors.WrapResource("fetch signals", "entity", e.ID, err)
	}

	o := outcomeScored
	updated, err := store.Update(ctx, a.store, e.ID, func(cur *entity.Entity) (bool, error) {
		bundle := cur.Signals.Merge(fresh)
		if len(bundle) == 0 {
			bundle = nil
		}
		var value *float64
		var confidence float64
		if s, ok := a.scorer.Score(cur, bundle); ok {
			value, confidence = entity.Ptr(s.Value), s.Confidence
			o = outcomeScored
		} else {
			o = outcomeUnscored
		}

		if reflect.DeepEqual(cur.Signals, bundle) && reflect.DeepEqual(cur.GrowthScore, value) &&
			cur.ScoreConfidence == confidence {
			if o == outcomeScored {
				o = outcomeUnchanged
			}
			return false, nil
		}
		cur.Signals, cur.GrowthScore, cur.ScoreConfidence = bundle, value, confidence
		return true, nil
	})
	if err != nil {
		metrics.EntitiesScored.WithLabelValues("failed").Inc()
		return nil, 0, err
	}

	switch o {
	case outcomeScored:
		metrics.EntitiesScored.WithLabelValues("scored").Inc()
		metrics.GrowthScores.Observe(*updated.GrowthScore)
		logging.Ctx(ctx).Debug().
			Str("entity_id", updated.ID).
			Float64("score", *updated.GrowthScore).
			Float64("confidence", updated.ScoreConfidence).
			Msg("Entity scored")
	case outcomeUnscored:
		metrics.EntitiesScored.WithLabelValues("unscored").Inc()
	default:
		metrics.EntitiesScored.WithLabelValues("unchanged").Inc()
	}
	return updated, o, nil
}
