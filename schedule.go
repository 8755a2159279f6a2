package ecomap

import (
	"context"

	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Compile-time interface check to ensure proper implementation.
var _ Scheduling = (*client)(nil)

// Scheduling controls the recurring jobs.
type Scheduling interface {
	// Start begins firing jobs on their cron cadences
	Start(ctx context.Context) error

	// Stop stops the cadences and waits for in-flight runs
	Stop(ctx context.Context) error

	// Trigger starts a run of a job class now
	Trigger(ctx context.Context, class scheduler.Class) (scheduler.Ack, error)

	// Wait blocks until a run finishes
	Wait(ctx context.Context, runID string) (scheduler.Run, error)

	// Cancel asks the in-flight run of a class to stop
	Cancel(class scheduler.Class) bool

	// Runs returns the finished runs, oldest first
	Runs() []scheduler.Run

	// Entries describes every job and its next fire time
	Entries() []scheduler.Entry
}

// Start begins firing jobs on their cron cadences.
func (c *client) Start(ctx context.Context) error {
	return c.scheduler.Start(ctx)
}

// Stop stops the cadences and waits for in-flight runs.
func (c *client) Stop(ctx context.Context) error {
	return c.scheduler.Stop(ctx)
}

// Trigger starts a run of a job class now. A class already running rejects
// the trigger with a ScheduleConflict.
func (c *client) Trigger(ctx context.Context, class scheduler.Class) (scheduler.Ack, error) {
	return c.scheduler.Trigger(ctx, class)
}

// Wait blocks until a run finishes.
func (c *client) Wait(ctx context.Context, runID string) (scheduler.Run, error) {
	return c.scheduler.Wait(ctx, runID)
}

// Cancel asks the in-flight run of a class to stop.
func (c *client) Cancel(class scheduler.Class) bool {
	return c.scheduler.Cancel(class)
}

// Runs returns the finished runs, oldest first.
func (c *client) Runs() []scheduler.Run {
	return c.scheduler.Runs()
}

// Entries describes every job and its next fire time.
func (c *client) Entries() []scheduler.Entry {
	return c.scheduler.Entries()
}
