// Package ecomap is the entry point of the ecosystem map pipeline. A Client
// ingests heterogeneous records about startups, investors, accelerators,
// spaces and events, resolves them into deduplicated entities, scores their
// growth and keeps the catalog clean on a schedule.
//
// Example usage:
//
//	client, err := ecomap.New(
//	    ecomap.WithStore(store),
//	    ecomap.WithCollector(ecomap.FeedCollector("./feeds")),
//	    ecomap.WithSignalSource(source),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Run one stage now
//	result, err := client.Ingest(ctx, records)
//
//	// Or let the scheduler run the three jobs on their cadences
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Read the ranked catalog
//	top, err := client.Entities(ctx, ecomap.Query{Limit: 10})
package ecomap

import (
	"context"
	"sync"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/quality"
	"github.com/agentstation/ecomap/pkg/resolve"
	"github.com/agentstation/ecomap/pkg/scheduler"
	"github.com/agentstation/ecomap/pkg/signals"
	"github.com/agentstation/ecomap/pkg/store"
	"github.com/agentstation/ecomap/pkg/store/memory"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Client runs the pipeline over one entity store.
type Client interface {

	// Pipeline runs the stages directly
	Pipeline

	// Corrector applies user feedback
	Corrector

	// Catalog reads the entity catalog
	Catalog

	// Persistence exports catalog snapshots
	Persistence

	// Scheduling controls the recurring jobs
	Scheduling

	// Hooks provides access to event callback registration
	Hooks

	// Close stops the scheduler and closes the store
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options

	store      store.Store
	resolver   *resolve.Resolver
	aggregator *signals.Aggregator
	quality    *quality.Manager
	scheduler  *scheduler.Scheduler
	*hooks

	// records submitted for the next collection run
	mu      sync.Mutex
	pending []entity.RawRecord
}

// New creates a new Client with the given options.
func New(opts ...Option) (Client, error) {
	o := defaults().apply(opts...)
	if o.store == nil {
		o.store = memory.New()
	}

	c := &client{
		options: o,
		store:   o.store,
		hooks:   newHooks(),
	}

	resolveOpts := o.resolveOpts
	signalOpts := o.signalOpts
	qualityOpts := []quality.Option{quality.WithSink(c.sink())}
	if o.concurrency != 0 {
		resolveOpts = append([]resolve.Option{resolve.WithConcurrency(o.concurrency)}, resolveOpts...)
		signalOpts = append([]signals.Option{signals.WithConcurrency(o.concurrency)}, signalOpts...)
		qualityOpts = append(qualityOpts, quality.WithConcurrency(o.concurrency))
	}
	qualityOpts = append(qualityOpts, o.qualityOpts...)

	var err error
	if c.resolver, err = resolve.New(o.store, resolveOpts...); err != nil {
		return nil, errors.WrapResource("create", "resolver", "", err)
	}
	if c.aggregator, err = signals.NewAggregator(o.store, o.signalSource, signalOpts...); err != nil {
		return nil, errors.WrapResource("create", "aggregator", "", err)
	}
	if c.quality, err = quality.NewManager(o.store, c.resolver, qualityOpts...); err != nil {
		return nil, errors.WrapResource("create", "quality manager", "", err)
	}

	jobs := []scheduler.Job{
		{Class: scheduler.ClassCollection, Schedule: o.schedules[scheduler.ClassCollection], Run: c.collect},
		{Class: scheduler.ClassAnalysis, Schedule: o.schedules[scheduler.ClassAnalysis], Run: c.analyze},
		{Class: scheduler.ClassCleanup, Schedule: o.schedules[scheduler.ClassCleanup], Run: c.cleanup},
	}
	schedOpts := append([]scheduler.Option{scheduler.WithRunObserver(c.hooks.triggerRunFinished)}, o.schedulerOpts...)
	if c.scheduler, err = scheduler.New(jobs, schedOpts...); err != nil {
		return nil, errors.WrapResource("create", "scheduler", "", err)
	}

	if o.autoSchedule {
		if err := c.scheduler.Start(context.Background()); err != nil {
			return nil, errors.WrapResource("start", "scheduler", "", err)
		}
	}
	return c, nil
}

// sink streams transitions to the configured sink and the transition hooks.
func (c *client) sink() quality.Sink {
	if c.options.sink == nil {
		return c.hooks
	}
	return quality.MultiSink{c.options.sink, c.hooks}
}

// Close stops the scheduler, waiting for in-flight runs, and closes the store.
func (c *client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	stopErr := c.scheduler.Stop(ctx)
	return errors.Join(stopErr, c.store.Close())
}
