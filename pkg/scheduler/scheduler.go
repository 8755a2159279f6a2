// Package scheduler runs the pipeline's recurring jobs. Each job class has a
// cron cadence and can also be triggered on demand; a trigger while a run of
// the same class is in flight is rejected, never queued.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/metrics"
)

var tracer = otel.Tracer("github.com/agentstation/ecomap/pkg/scheduler")

type active struct {
	run    Run
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the job classes and their runs.
type Scheduler struct {
	opts     *options
	jobs     map[Class]Job
	order    []Class
	parser   cron.Parser
	cron     *cron.Cron
	entries  map[Class]cron.EntryID
	base     context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	running map[Class]*active
	history []Run
	wg      sync.WaitGroup
}

// New creates a Scheduler for the given jobs. Cadences use the standard
// five-field cron syntax and descriptors such as @daily.
func New(jobs []Job, opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		opts:    o,
		jobs:    make(map[Class]Job, len(jobs)),
		parser:  parser,
		entries: make(map[Class]cron.EntryID),
		running: make(map[Class]*active),
	}
	for _, j := range jobs {
		if j.Class == "" {
			return nil, errors.NewValidationError("class", j.Class, "job has no class")
		}
		if _, dup := s.jobs[j.Class]; dup {
			return nil, errors.NewValidationError("class", j.Class, "duplicate job class")
		}
		if j.Run == nil {
			return nil, errors.NewValidationError("run", j.Class, "job has no work")
		}
		if j.Schedule != "" {
			if _, err := parser.Parse(j.Schedule); err != nil {
				return nil, errors.NewValidationError("schedule", j.Schedule, err.Error())
			}
		}
		if j.Timeout <= 0 {
			j.Timeout = j.Class.DefaultTimeout()
		}
		s.jobs[j.Class] = j
		s.order = append(s.order, j.Class)
	}
	s.base, s.shutdown = context.WithCancel(context.Background())
	return s, nil
}

// Trigger starts a run of class unless one is already in flight. The run
// proceeds in the background; ctx only carries the caller's logger. A
// rejected trigger returns a negative Ack and a ScheduleConflict.
func (s *Scheduler) Trigger(ctx context.Context, class Class) (Ack, error) {
	return s.trigger(ctx, class, TriggerManual)
}

func (s *Scheduler) trigger(ctx context.Context, class Class, source string) (Ack, error) {
	job, ok := s.jobs[class]
	if !ok {
		return Ack{Reason: "unknown job class"}, errors.NewValidationError("class", class, "unknown job class")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.base.Err(); err != nil {
		return Ack{Reason: "scheduler stopped"}, errors.Join(errors.ErrCanceled, err)
	}
	if cur, busy := s.running[class]; busy {
		metrics.JobRuns.WithLabelValues(string(class), "rejected").Inc()
		logging.Ctx(ctx).Warn().
			Str("job", string(class)).
			Str("active_run_id", cur.run.ID).
			Str("trigger", source).
			Msg("Trigger rejected")
		return Ack{Reason: "already running"}, errors.NewScheduleConflict(string(class), cur.run.ID)
	}

	id := uuid.NewString()
	runCtx := logging.WithLogger(s.base, logging.Ctx(ctx))
	runCtx = logging.WithJobClass(logging.WithRunID(runCtx, id), string(class))
	runCtx, cancel := context.WithTimeout(runCtx, job.Timeout)

	a := &active{
		run: Run{
			ID:        id,
			Class:     class,
			Trigger:   source,
			Status:    StatusRunning,
			StartedAt: s.opts.now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.running[class] = a
	metrics.JobRuns.WithLabelValues(string(class), "accepted").Inc()

	s.wg.Add(1)
	go s.execute(runCtx, job, a)
	return Ack{Accepted: true, RunID: id}, nil
}

// execute performs one run and records its outcome.
func (s *Scheduler) execute(ctx context.Context, job Job, a *active) {
	defer s.wg.Done()
	defer a.cancel()
	ctx, span := tracer.Start(ctx, "scheduler."+string(job.Class))
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", a.run.ID),
		attribute.String("trigger", a.run.Trigger),
	)
	logging.Ctx(ctx).Info().Str("trigger", a.run.Trigger).Msg("Run started")

	err := s.call(ctx, job)

	run := a.run
	run.FinishedAt = s.opts.now().UTC()
	run.Err = err
	switch {
	case err == nil:
		run.Status = StatusSucceeded
	case errors.IsCanceled(err) || errors.Is(ctx.Err(), context.Canceled):
		run.Status = StatusCanceled
	default:
		run.Status = StatusFailed
	}
	if err != nil {
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	class := string(job.Class)
	metrics.JobRuns.WithLabelValues(class, string(run.Status)).Inc()
	metrics.JobDuration.WithLabelValues(class).Observe(run.Duration().Seconds())
	if run.Status == StatusSucceeded {
		metrics.LastSuccess.WithLabelValues(class).Set(float64(run.FinishedAt.Unix()))
	}

	event := logging.Ctx(ctx).Info()
	if run.Status != StatusSucceeded {
		event = logging.Ctx(ctx).Error().Err(err)
	}
	event.Str("status", string(run.Status)).Dur("duration", run.Duration()).Msg("Run finished")

	s.mu.Lock()
	delete(s.running, job.Class)
	s.history = append(s.history, run)
	if over := len(s.history) - s.opts.history; over > 0 {
		s.history = append([]Run(nil), s.history[over:]...)
	}
	s.mu.Unlock()
	if s.opts.observer != nil {
		s.opts.observer(run)
	}
	close(a.done)
}

// call runs the job, turning a panic into a failed run.
func (s *Scheduler) call(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewResourceError("run", "job", string(job.Class), errors.New(panicMessage(r)))
		}
	}()
	return job.Run(ctx)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return "panic: " + err.Error()
	}
	if s, ok := r.(string); ok {
		return "panic: " + s
	}
	return "panic"
}

// Cancel asks the in-flight run of class to stop. It reports whether a run
// was in flight.
func (s *Scheduler) Cancel(class Class) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.running[class]
	if ok {
		a.cancel()
	}
	return ok
}

// Wait blocks until the run finishes and returns its record.
func (s *Scheduler) Wait(ctx context.Context, runID string) (Run, error) {
	s.mu.Lock()
	var done chan struct{}
	for _, a := range s.running {
		if a.run.ID == runID {
			done = a.done
		}
	}
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Run{}, errors.Join(errors.ErrCanceled, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == runID {
			return s.history[i], nil
		}
	}
	return Run{}, errors.NewNotFoundError("run", runID)
}

// Runs returns the finished runs, oldest first.
func (s *Scheduler) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Run(nil), s.history...)
}

// Running returns the in-flight runs.
func (s *Scheduler) Running() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, len(s.running))
	for _, c := range s.order {
		if a, ok := s.running[c]; ok {
			out = append(out, a.run)
		}
	}
	return out
}

// Entries describes every job with its next cron fire time.
func (s *Scheduler) Entries() []Entry {
	now := s.opts.now().In(s.opts.location)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.order))
	for _, c := range s.order {
		job := s.jobs[c]
		e := Entry{Class: c, Schedule: job.Schedule}
		if job.Schedule != "" {
			if sched, err := s.parser.Parse(job.Schedule); err == nil {
				e.Next = sched.Next(now).UTC()
			}
		}
		if a, ok := s.running[c]; ok {
			e.Running = a.run.ID
		}
		out = append(out, e)
	}
	return out
}

// Start begins firing jobs on their cadences. Cron firings that collide with
// an in-flight run are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.base.Err(); err != nil {
		return errors.Join(errors.ErrCanceled, err)
	}
	if s.cron != nil {
		return errors.NewValidationError("scheduler", nil, "already started")
	}

	logger := logging.Ctx(ctx)
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.opts.location))
	for _, class := range s.order {
		job := s.jobs[class]
		if job.Schedule == "" {
			continue
		}
		id, err := c.AddFunc(job.Schedule, func() {
			ctx := logging.WithLogger(s.base, logger)
			if _, err := s.trigger(ctx, class, TriggerCron); err != nil && !errors.IsScheduleConflict(err) {
				logger.Error().Err(err).Str("job", string(class)).Msg("Scheduled trigger failed")
			}
		})
		if err != nil {
			return errors.NewValidationError("schedule", job.Schedule, err.Error())
		}
		s.entries[class] = id
		logger.Info().Str("job", string(class)).Str("schedule", job.Schedule).Msg("Job scheduled")
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop stops the cadences, cancels in-flight runs and waits for them to
// finish until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.shutdown()
	for _, a := range s.running {
		a.cancel()
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Ctx(ctx).Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.ErrTimeout, ctx.Err())
	}
}

// Next returns when class next fires, or the zero time if it has no cadence
// or the scheduler is not started.
func (s *Scheduler) Next(class Class) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	id, ok := s.entries[class]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}
