package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
)

// gate is a job that blocks until released or canceled.
type gate struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) run(ctx context.Context) error {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newScheduler(t *testing.T, jobs []Job, opts ...Option) *Scheduler {
	t.Helper()
	logging.DisableLoggingForTest(t)
	s, err := New(jobs, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func wait(t *testing.T, s *Scheduler, ack Ack) Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := s.Wait(ctx, ack.RunID)
	require.NoError(t, err)
	return run
}

func TestNew(t *testing.T) {
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name string
		jobs []Job
		opts []Option
	}{
		{"missing class", []Job{{Run: noop}}, nil},
		{"duplicate class", []Job{{Class: ClassAnalysis, Run: noop}, {Class: ClassAnalysis, Run: noop}}, nil},
		{"missing work", []Job{{Class: ClassAnalysis}}, nil},
		{"bad schedule", []Job{{Class: ClassAnalysis, Schedule: "every day", Run: noop}}, nil},
		{"nil location", nil, []Option{WithLocation(nil)}},
		{"zero history", nil, []Option{WithHistoryLimit(0)}},
		{"nil clock", nil, []Option{WithClock(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.jobs, tt.opts...)
			assert.True(t, errors.IsValidationError(err))
		})
	}

	s, err := New([]Job{{Class: ClassCleanup, Schedule: "@monthly", Run: noop}})
	require.NoError(t, err)
	assert.Equal(t, ClassCleanup.DefaultTimeout(), s.jobs[ClassCleanup].Timeout)
}

func TestTrigger(t *testing.T) {
	g := newGate()
	s := newScheduler(t, []Job{
		{Class: ClassCollection, Run: g.run},
		{Class: ClassAnalysis, Run: func(context.Context) error { return nil }},
	})
	ctx := context.Background()

	ack, err := s.Trigger(ctx, ClassCollection)
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	id, err := uuid.Parse(ack.RunID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	<-g.started

	t.Run("second trigger of the same class is rejected", func(t *testing.T) {
		rejected, err := s.Trigger(ctx, ClassCollection)
		assert.True(t, errors.IsScheduleConflict(err))
		assert.False(t, rejected.Accepted)
		assert.Empty(t, rejected.RunID)
		assert.Equal(t, "already running", rejected.Reason)

		var conflict *errors.ScheduleConflict
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, ack.RunID, conflict.ActiveRunID)
	})

	t.Run("other classes run independently", func(t *testing.T) {
		other, err := s.Trigger(ctx, ClassAnalysis)
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, wait(t, s, other).Status)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := s.Trigger(ctx, Class("hourly"))
		assert.True(t, errors.IsValidationError(err))
	})

	require.Len(t, s.Running(), 1)
	close(g.release)
	run := wait(t, s, ack)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, int32(1), g.calls.Load(), "rejected triggers are not queued")

	again, err := s.Trigger(ctx, ClassCollection)
	require.NoError(t, err)
	assert.NotEqual(t, ack.RunID, again.RunID)
	wait(t, s, again)
	assert.Len(t, s.Runs(), 3)
	assert.Empty(t, s.Running())
}

func TestTriggerRace(t *testing.T) {
	g := newGate()
	s := newScheduler(t, []Job{{Class: ClassCleanup, Run: g.run}})

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ack, err := s.Trigger(context.Background(), ClassCleanup); err == nil && ack.Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
	close(g.release)
}

func TestRunOutcomes(t *testing.T) {
	boom := errors.New("source down")
	tests := []struct {
		name      string
		job       Func
		timeout   time.Duration
		cancel    bool
		want      Status
		wantError string
	}{
		{name: "success", job: func(context.Context) error { return nil }, want: StatusSucceeded},
		{name: "failure", job: func(context.Context) error { return boom }, want: StatusFailed, wantError: "source down"},
		{name: "panic", job: func(context.Context) error { panic("nil map") }, want: StatusFailed, wantError: "panic: nil map"},
		{name: "timeout", job: newGate().run, timeout: 20 * time.Millisecond, want: StatusFailed, wantError: "deadline exceeded"},
		{name: "canceled", job: newGate().run, cancel: true, want: StatusCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(t, []Job{{Class: ClassAnalysis, Timeout: tt.timeout, Run: tt.job}})
			ack, err := s.Trigger(context.Background(), ClassAnalysis)
			require.NoError(t, err)
			if tt.cancel {
				assert.Eventually(t, func() bool { return s.Cancel(ClassAnalysis) }, time.Second, time.Millisecond)
			}

			run := wait(t, s, ack)
			assert.Equal(t, tt.want, run.Status)
			assert.Contains(t, run.Error, tt.wantError)
			assert.False(t, run.FinishedAt.Before(run.StartedAt))
		})
	}
}

func TestCancelIdle(t *testing.T) {
	s := newScheduler(t, []Job{{Class: ClassAnalysis, Run: func(context.Context) error { return nil }}})
	assert.False(t, s.Cancel(ClassAnalysis))
}

func TestRunObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []Run
	observer := func(r Run) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
	}
	s := newScheduler(t, []Job{
		{Class: ClassCollection, Run: func(context.Context) error { return nil }},
		{Class: ClassCleanup, Run: func(context.Context) error { return errors.New("boom") }},
	}, WithRunObserver(observer))

	for _, class := range []Class{ClassCollection, ClassCleanup} {
		ack, err := s.Trigger(context.Background(), class)
		require.NoError(t, err)
		wait(t, s, ack)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, StatusSucceeded, seen[0].Status)
	assert.Equal(t, StatusFailed, seen[1].Status)
	assert.Equal(t, "boom", seen[1].Error)
}

func TestHistoryLimit(t *testing.T) {
	s := newScheduler(t, []Job{{Class: ClassAnalysis, Run: func(context.Context) error { return nil }}}, WithHistoryLimit(2))
	var ids []string
	for range 3 {
		ack, err := s.Trigger(context.Background(), ClassAnalysis)
		require.NoError(t, err)
		wait(t, s, ack)
		ids = append(ids, ack.RunID)
	}
	runs := s.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, ids[1], runs[0].ID)
	assert.Equal(t, ids[2], runs[1].ID)

	_, err := s.Wait(context.Background(), ids[0])
	assert.True(t, errors.IsNotFound(err))
}

func TestEntries(t *testing.T) {
	wednesday := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	noop := func(context.Context) error { return nil }
	var jobs []Job
	for _, c := range Classes {
		jobs = append(jobs, Job{Class: c, Schedule: c.DefaultSchedule(), Run: noop})
	}
	jobs = append(jobs, Job{Class: "manual-only", Run: noop})
	s := newScheduler(t, jobs, WithClock(func() time.Time { return wednesday }))

	entries := s.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC), entries[0].Next)
	assert.Equal(t, time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC), entries[1].Next)
	assert.Equal(t, time.Date(2025, 1, 1, 4, 0, 0, 0, time.UTC), entries[2].Next)
	assert.True(t, entries[3].Next.IsZero())
}

func TestStartStop(t *testing.T) {
	g := newGate()
	s := newScheduler(t, []Job{
		{Class: ClassCollection, Schedule: "@hourly", Run: g.run},
		{Class: ClassAnalysis, Run: func(context.Context) error { return nil }},
	})
	ctx := context.Background()

	assert.True(t, s.Next(ClassCollection).IsZero(), "not started")
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "already started")
	assert.False(t, s.Next(ClassCollection).IsZero())
	assert.True(t, s.Next(ClassAnalysis).IsZero(), "no cadence")

	ack, err := s.Trigger(ctx, ClassCollection)
	require.NoError(t, err)
	<-g.started

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	run, err := s.Wait(ctx, ack.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, run.Status, "stop cancels in-flight runs")

	_, err = s.Trigger(ctx, ClassAnalysis)
	assert.True(t, errors.IsCanceled(err))
	assert.True(t, errors.IsCanceled(s.Start(ctx)))
}

func TestParseClass(t *testing.T) {
	c, ok := ParseClass("weekly-analysis")
	assert.True(t, ok)
	assert.Equal(t, ClassAnalysis, c)
	_, ok = ParseClass("hourly")
	assert.False(t, ok)
}
