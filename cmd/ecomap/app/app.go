// Package app provides the application context and dependency management
// for the ecomap CLI. It centralizes configuration, logging and the pipeline
// client, and owns their lifecycle.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/feed"
	"github.com/agentstation/ecomap/internal/transport"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/quality"
	"github.com/agentstation/ecomap/pkg/scheduler"
	"github.com/agentstation/ecomap/pkg/signals"
	"github.com/agentstation/ecomap/pkg/store"
	"github.com/agentstation/ecomap/pkg/store/memory"
	"github.com/agentstation/ecomap/pkg/store/sqlite"
	"github.com/agentstation/ecomap/pkg/telemetry"
)

// App represents the ecomap application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	// Client instance (lazy-initialized, singleton)
	mu        sync.Mutex
	client    ecomap.Client
	telemetry telemetry.Shutdown
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Client returns the pipeline client, creating it lazily if needed.
func (a *App) Client(ctx context.Context) (ecomap.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	opts, err := a.clientOptions()
	if err != nil {
		return nil, err
	}
	c, err := ecomap.New(opts...)
	if err != nil {
		return nil, errors.WrapResource("create", "client", "", err)
	}
	a.client = c
	a.logger.Debug().
		Str("store", a.config.Store).
		Int("feeds", len(a.config.Feeds)).
		Msg("Client ready")
	return c, nil
}

// clientOptions builds client options from the configuration.
func (a *App) clientOptions() ([]ecomap.Option, error) {
	cfg := a.config
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	opts := []ecomap.Option{
		ecomap.WithStore(st),
		ecomap.WithConcurrency(cfg.Concurrency),
	}

	for _, path := range cfg.Feeds {
		if !transport.IsURL(path) {
			opts = append(opts, ecomap.WithCollector(ecomap.FeedCollector(path)))
			continue
		}
		c, err := ecomap.HTTPCollector(path, cfg.FeedAuth, cfg.FeedAPIKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ecomap.WithCollector(c))
	}

	if cfg.SignalsPath != "" {
		src, err := feed.Open(cfg.SignalsPath)
		if err != nil {
			return nil, err
		}
		bundles, err := src.Signals()
		if err != nil {
			return nil, err
		}
		opts = append(opts, ecomap.WithSignalSource(signals.StaticSource(bundles)))
	}

	if cfg.RulesPath != "" {
		rules, err := quality.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ecomap.WithQualityOptions(quality.WithRules(rules)))
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.NewConfigError("timezone", "unknown timezone "+cfg.Timezone, err)
	}
	opts = append(opts, ecomap.WithSchedulerOptions(scheduler.WithLocation(loc)))
	for class, spec := range cfg.Schedules {
		opts = append(opts, ecomap.WithSchedule(class, spec))
	}
	return opts, nil
}

func (a *App) openStore() (store.Store, error) {
	switch a.config.Store {
	case StoreSQLite:
		return sqlite.Open(a.config.DBPath)
	default:
		return memory.New(), nil
	}
}

// initTelemetry installs the tracer provider once per process.
func (a *App) initTelemetry(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.telemetry != nil {
		return nil
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "ecomap",
		ServiceVersion: a.version,
		Endpoint:       a.config.OTelEndpoint,
	})
	if err != nil {
		return err
	}
	a.telemetry = shutdown
	return nil
}

// Shutdown closes the client, waiting for in-flight runs, and flushes traces.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	c, flush := a.client, a.telemetry
	a.client, a.telemetry = nil, nil
	a.mu.Unlock()

	var errs []error
	if c != nil {
		errs = append(errs, c.Close())
	}
	if flush != nil {
		errs = append(errs, flush(ctx))
	}
	return errors.Join(errs...)
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithClient sets a custom client (useful for testing).
func WithClient(c ecomap.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}
