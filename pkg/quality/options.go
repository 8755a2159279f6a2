package quality

import (
	"time"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
)

type options struct {
	missingFieldsAfter time.Duration
	staleness          time.Duration
	archiveThreshold   float64
	disputeReports     int
	maxFunding         float64
	reactivation       float64
	concurrency        int
	rules              *RuleSet
	sink               Sink
	now                func() time.Time
}

func defaultOptions() *options {
	return &options{
		missingFieldsAfter: constants.DefaultMissingFieldsAfter,
		staleness:          constants.DefaultStalenessWindow,
		archiveThreshold:   constants.DefaultArchiveScoreThreshold,
		disputeReports:     constants.DefaultDisputeReports,
		maxFunding:         constants.DefaultMaxFundingAmount,
		reactivation:       constants.DefaultReactivationConfidence,
		concurrency:        constants.DefaultConcurrency,
		sink:               LogSink{},
		now:                time.Now,
	}
}

// Option configures a Manager.
type Option func(*options) error

// WithMissingFieldsAfter sets how long a name-only entity may exist before it is flagged.
func WithMissingFieldsAfter(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.NewValidationError("missing_fields_after", d, "cannot be negative")
		}
		o.missingFieldsAfter = d
		return nil
	}
}

// WithStalenessWindow sets how long an entity may go without a source update before archival.
func WithStalenessWindow(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("staleness_window", d, "must be positive")
		}
		o.staleness = d
		return nil
	}
}

// WithArchiveThreshold sets the growth score below which stale entities are archived.
func WithArchiveThreshold(score float64) Option {
	return func(o *options) error {
		if score < 0 || score > 100 {
			return errors.NewValidationError("archive_threshold", score, "must be in [0, 100]")
		}
		o.archiveThreshold = score
		return nil
	}
}

// WithDisputeReports sets how many distinct submitters must dispute a field to flag it.
func WithDisputeReports(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("dispute_reports", n, "must be at least 1")
		}
		o.disputeReports = n
		return nil
	}
}

// WithMaxFundingAmount sets the largest plausible single funding round.
func WithMaxFundingAmount(amount float64) Option {
	return func(o *options) error {
		if amount <= 0 {
			return errors.NewValidationError("max_funding_amount", amount, "must be positive")
		}
		o.maxFunding = amount
		return nil
	}
}

// WithReactivationConfidence sets the record confidence that reactivates an archived entity.
func WithReactivationConfidence(c float64) Option {
	return func(o *options) error {
		if c < 0 || c > 1 {
			return errors.NewValidationError("reactivation_confidence", c, "must be in [0, 1]")
		}
		o.reactivation = c
		return nil
	}
}

// WithConcurrency bounds the number of entities audited in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxConcurrency {
			return errors.NewValidationError("concurrency", n, "out of range")
		}
		o.concurrency = n
		return nil
	}
}

// WithRules adds CEL flag rules.
func WithRules(rules *RuleSet) Option {
	return func(o *options) error {
		o.rules = rules
		return nil
	}
}

// WithSink sets where audit events go.
func WithSink(s Sink) Option {
	return func(o *options) error {
		if s == nil {
			return &errors.ValidationError{Field: "sink", Message: "cannot be nil"}
		}
		o.sink = s
		return nil
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		o.now = now
		return nil
	}
}
