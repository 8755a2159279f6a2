package ecomap

import (
	"github.com/agentstation/ecomap/pkg/quality"
	"github.com/agentstation/ecomap/pkg/resolve"
	"github.com/agentstation/ecomap/pkg/scheduler"
	"github.com/agentstation/ecomap/pkg/signals"
	"github.com/agentstation/ecomap/pkg/store"
)

// options holds the client configuration.
type options struct {
	store        store.Store
	concurrency  int
	collectors   []Collector
	signalSource signals.Source
	sink         quality.Sink
	schedules    map[scheduler.Class]string
	autoSchedule bool

	resolveOpts   []resolve.Option
	signalOpts    []signals.Option
	qualityOpts   []quality.Option
	schedulerOpts []scheduler.Option
}

// Option is a function that configures a Client.
type Option func(*options)

func defaults() *options {
	schedules := make(map[scheduler.Class]string, len(scheduler.Classes))
	for _, c := range scheduler.Classes {
		schedules[c] = c.DefaultSchedule()
	}
	return &options{
		sink:      quality.LogSink{},
		schedules: schedules,
	}
}

func (o *options) apply(opts ...Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithStore sets the entity store. The client owns it and closes it on Close.
// An in-memory store is used when none is set.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithConcurrency bounds the parallelism of every stage.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithCollector adds a source of raw records for the collection job.
func WithCollector(c Collector) Option {
	return func(o *options) {
		o.collectors = append(o.collectors, c)
	}
}

// WithSignalSource sets where the analysis job fetches growth signals.
func WithSignalSource(src signals.Source) Option {
	return func(o *options) {
		o.signalSource = src
	}
}

// WithAuditSink sets where quality transitions are streamed. Transition
// hooks fire regardless.
func WithAuditSink(s quality.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithSchedule overrides the cron cadence of a job class. An empty spec
// leaves the class manual-only.
func WithSchedule(class scheduler.Class, spec string) Option {
	return func(o *options) {
		o.schedules[class] = spec
	}
}

// WithAutoSchedule starts the cron cadences when the client is created.
func WithAutoSchedule(enabled bool) Option {
	return func(o *options) {
		o.autoSchedule = enabled
	}
}

// WithResolveOptions passes options to the entity resolver.
func WithResolveOptions(opts ...resolve.Option) Option {
	return func(o *options) {
		o.resolveOpts = append(o.resolveOpts, opts...)
	}
}

// WithSignalOptions passes options to the signal aggregator.
func WithSignalOptions(opts ...signals.Option) Option {
	return func(o *options) {
		o.signalOpts = append(o.signalOpts, opts...)
	}
}

// WithQualityOptions passes options to the quality manager.
func WithQualityOptions(opts ...quality.Option) Option {
	return func(o *options) {
		o.qualityOpts = append(o.qualityOpts, opts...)
	}
}

// WithSchedulerOptions passes options to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *options) {
		o.schedulerOpts = append(o.schedulerOpts, opts...)
	}
}
