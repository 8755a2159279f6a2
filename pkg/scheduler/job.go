package scheduler

import (
	"context"
	"time"

	"github.com/agentstation/ecomap/pkg/constants"
)

// Class names a kind of recurring job. At most one run per class is in
// flight at any time.
type Class string

// Job classes.
const (
	ClassCollection Class = "daily-collection"
	ClassAnalysis   Class = "weekly-analysis"
	ClassCleanup    Class = "monthly-cleanup"
)

// Classes lists the job classes in pipeline order.
var Classes = []Class{ClassCollection, ClassAnalysis, ClassCleanup}

// ParseClass returns the class with the given name.
func ParseClass(name string) (Class, bool) {
	for _, c := range Classes {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// DefaultSchedule returns the cron cadence of a class.
func (c Class) DefaultSchedule() string {
	switch c {
	case ClassCollection:
		return constants.DailyCollectionSchedule
	case ClassAnalysis:
		return constants.WeeklyAnalysisSchedule
	case ClassCleanup:
		return constants.MonthlyCleanupSchedule
	default:
		return ""
	}
}

// DefaultTimeout returns the run timeout of a class.
func (c Class) DefaultTimeout() time.Duration {
	switch c {
	case ClassCollection:
		return constants.CollectionTimeout
	case ClassAnalysis:
		return constants.AnalysisTimeout
	case ClassCleanup:
		return constants.CleanupTimeout
	default:
		return constants.DefaultTimeout
	}
}

// Func does the work of one run. It must return promptly once ctx is done.
type Func func(ctx context.Context) error

// Job binds a class to its work and cadence. An empty Schedule means the
// job only runs when triggered.
type Job struct {
	Class    Class
	Schedule string
	Timeout  time.Duration
	Run      Func
}

// Status is the outcome of a finished run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Trigger sources.
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
)

// Ack answers a trigger.
type Ack struct {
	Accepted bool   `json:"accepted" yaml:"accepted"`
	RunID    string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Run records one execution of a job.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Class      Class     `json:"class" yaml:"class"`
	Trigger    string    `json:"trigger" yaml:"trigger"`
	Status     Status    `json:"status" yaml:"status"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
	Err        error     `json:"-" yaml:"-"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Entry describes a scheduled job.
type Entry struct {
	Class    Class     `json:"class" yaml:"class"`
	Schedule string    `json:"schedule" yaml:"schedule"`
	Next     time.Time `json:"next,omitzero" yaml:"next,omitempty"`
	Running  string    `json:"running,omitempty" yaml:"running,omitempty"`
}
