package ecomap

import (
	"context"
	"time"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/normalize"
	"github.com/agentstation/ecomap/pkg/quality"
	"github.com/agentstation/ecomap/pkg/resolve"
	"github.com/agentstation/ecomap/pkg/signals"
)

// Compile-time interface check to ensure proper implementation.
var _ Pipeline = (*client)(nil)

// Pipeline runs the pipeline stages directly, outside the scheduler.
type Pipeline interface {
	// Submit queues raw records for the next collection run
	Submit(records ...entity.RawRecord)

	// Ingest normalizes and resolves a batch of raw records
	Ingest(ctx context.Context, records []entity.RawRecord) (*IngestResult, error)

	// Analyze recomputes growth scores
	Analyze(ctx context.Context) (*signals.Result, error)

	// Score recomputes the growth score of one entity
	Score(ctx context.Context, entityID string) (*entity.Entity, error)

	// Cleanup runs the quality audit
	Cleanup(ctx context.Context) (*quality.AuditResult, error)
}

// IngestResult summarizes an ingest.
type IngestResult struct {
	Received   int
	Normalized int
	Rejected   []normalize.Rejected
	Resolve    *resolve.Result
}

// Submit queues raw records for the next collection run.
func (c *client) Submit(records ...entity.RawRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, records...)
}

// drain takes the queued records.
func (c *client) drain() []entity.RawRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// requeue puts records back at the front of the queue.
func (c *client) requeue(records []entity.RawRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(records, c.pending...)
}

// Ingest normalizes and resolves a batch. Rejected records are reported in
// the result; only store unavailability or cancellation returns an error.
func (c *client) Ingest(ctx context.Context, records []entity.RawRecord) (*IngestResult, error) {
	ctx = logging.WithOperation(ctx, "ingest")
	start := time.Now()

	normalized, rejected := normalize.Batch(ctx, records)
	result := &IngestResult{
		Received:   len(records),
		Normalized: len(normalized),
		Rejected:   rejected,
	}

	res, err := c.resolver.Resolve(ctx, normalized)
	result.Resolve = res
	if res != nil {
		c.fireResolved(ctx, res)
	}
	if err != nil {
		return result, err
	}

	logging.Ctx(ctx).Info().
		Int("received", result.Received).
		Int("rejected", len(result.Rejected)).
		Int("created", len(res.Created)).
		Int("updated", len(res.Updated)).
		Int("absorbed", len(res.Absorbed)).
		Dur("duration", time.Since(start)).
		Msg("Ingest complete")
	return result, nil
}

// fireResolved loads the touched entities and triggers the entity hooks.
func (c *client) fireResolved(ctx context.Context, res *resolve.Result) {
	load := func(ids []string) []entity.Entity {
		var out []entity.Entity
		for _, id := range ids {
			e, err := c.store.Get(ctx, id)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("entity_id", id).Msg("Entity not loaded for hooks")
				continue
			}
			out = append(out, *e)
		}
		return out
	}
	created := load(res.Created)
	updated := load(res.Updated)
	absorbed := make(map[string]string, len(res.Absorbed))
	for _, e := range load(res.Absorbed) {
		absorbed[e.ID] = e.MergedInto
	}
	c.hooks.triggerResolved(created, updated, absorbed)
}

// Analyze recomputes growth scores of every active and flagged entity.
func (c *client) Analyze(ctx context.Context) (*signals.Result, error) {
	return c.aggregator.Run(ctx)
}

// Score recomputes the growth score of one entity.
func (c *client) Score(ctx context.Context, entityID string) (*entity.Entity, error) {
	return c.aggregator.ScoreEntity(ctx, entityID)
}

// Cleanup runs the quality audit.
func (c *client) Cleanup(ctx context.Context) (*quality.AuditResult, error) {
	return c.quality.RunAudit(ctx)
}

// collect is the daily-collection job: queued records and every collector's
// records are ingested together. Collector failures fail the run but do not
// stop the other collectors' records from being ingested.
func (c *client) collect(ctx context.Context) error {
	records := c.drain()
	var errs []error
	for _, col := range c.options.collectors {
		recs, err := col.Collect(ctx)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("collector", col.Name()).Msg("Collector failed")
			errs = append(errs, errors.WrapResource("collect", "collector", col.Name(), err))
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		logging.Ctx(ctx).Info().Msg("Nothing to collect")
		return errors.Join(errs...)
	}

	res, err := c.Ingest(ctx, records)
	if err != nil {
		if errors.IsStoreUnavailable(err) || errors.IsCanceled(err) {
			c.requeue(records)
		}
		return errors.Join(append(errs, err)...)
	}
	if n := len(res.Resolve.Failed); n > 0 {
		logging.Ctx(ctx).Warn().Int("failed", n).Msg("Some blocks failed to resolve")
	}
	return errors.Join(errs...)
}

// analyze is the weekly-analysis job.
func (c *client) analyze(ctx context.Context) error {
	_, err := c.Analyze(ctx)
	return err
}

// cleanup is the monthly-cleanup job.
func (c *client) cleanup(ctx context.Context) error {
	_, err := c.Cleanup(ctx)
	return err
}
