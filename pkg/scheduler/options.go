package scheduler

import (
	"time"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
)

type options struct {
	location *time.Location
	history  int
	now      func() time.Time
	observer func(Run)
}

func defaultOptions() *options {
	return &options{
		location: time.UTC,
		history:  constants.MaxRunHistory,
		now:      time.Now,
	}
}

// Option configures a Scheduler.
type Option func(*options) error

// WithLocation sets the time zone cron cadences are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) error {
		if loc == nil {
			return errors.NewValidationError("location", nil, "cannot be nil")
		}
		o.location = loc
		return nil
	}
}

// WithHistoryLimit sets how many finished runs are remembered.
func WithHistoryLimit(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("history", n, "must be at least 1")
		}
		o.history = n
		return nil
	}
}

// WithClock sets the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.NewValidationError("clock", nil, "cannot be nil")
		}
		o.now = now
		return nil
	}
}

// WithRunObserver sets a callback invoked with every finished run.
func WithRunObserver(fn func(Run)) Option {
	return func(o *options) error {
		o.observer = fn
		return nil
	}
}
