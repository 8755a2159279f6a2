package resolve

import (
	"time"

	"github.com/agentstation/ecomap/pkg/authority"
	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/provenance"
)

// options configures a Resolver.
type options struct {
	threshold     float64
	reactivation  float64
	tolerance     time.Duration
	concurrency   int
	authorities   authority.Authority
	tracker       provenance.Tracker
	now           func() time.Time
	maxAttempts   int
	blockingBatch int
}

func defaultOptions() *options {
	return &options{
		threshold:     constants.DefaultMatchThreshold,
		reactivation:  constants.DefaultReactivationConfidence,
		tolerance:     constants.DefaultFundingDateTolerance,
		concurrency:   constants.DefaultConcurrency,
		authorities:   authority.New(),
		tracker:       provenance.NewTracker(false),
		now:           time.Now,
		maxAttempts:   constants.MaxWriteAttempts,
		blockingBatch: 500,
	}
}

// Option is a function that configures a Resolver.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithThreshold sets the fuzzy name similarity threshold in (0, 1].
func WithThreshold(threshold float64) Option {
	return func(o *options) error {
		if threshold <= 0 || threshold > 1 {
			return errors.NewValidationError("threshold", threshold, "must be in (0, 1]")
		}
		o.threshold = threshold
		return nil
	}
}

// WithReactivationConfidence sets the record confidence needed to match an archived entity.
func WithReactivationConfidence(confidence float64) Option {
	return func(o *options) error {
		if confidence < 0 || confidence > 1 {
			return errors.NewValidationError("reactivation_confidence", confidence, "must be in [0, 1]")
		}
		o.reactivation = confidence
		return nil
	}
}

// WithFundingTolerance sets the date window within which rounds of one type collapse.
func WithFundingTolerance(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.NewValidationError("funding_tolerance", d, "cannot be negative")
		}
		o.tolerance = d
		return nil
	}
}

// WithConcurrency bounds the number of blocks resolved in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxConcurrency {
			return errors.NewValidationError("concurrency", n, "out of range")
		}
		o.concurrency = n
		return nil
	}
}

// WithAuthorities sets the field authorities used for conflict resolution.
func WithAuthorities(a authority.Authority) Option {
	return func(o *options) error {
		if a == nil {
			return &errors.ValidationError{Field: "authorities", Message: "cannot be nil"}
		}
		o.authorities = a
		return nil
	}
}

// WithProvenance records every field decision in tracker.
func WithProvenance(tracker provenance.Tracker) Option {
	return func(o *options) error {
		if tracker == nil {
			return &errors.ValidationError{Field: "provenance", Message: "cannot be nil"}
		}
		o.tracker = tracker
		return nil
	}
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		o.now = now
		return nil
	}
}
