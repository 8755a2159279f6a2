package ecomap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/quality"
	"github.com/agentstation/ecomap/pkg/save"
	"github.com/agentstation/ecomap/pkg/scheduler"
	"github.com/agentstation/ecomap/pkg/signals"
	"github.com/agentstation/ecomap/pkg/store"
	"github.com/agentstation/ecomap/pkg/store/memory"
	"github.com/agentstation/ecomap/pkg/store/storetest"
)

func newTestClient(t *testing.T, opts ...Option) Client {
	t.Helper()
	logging.DisableLoggingForTest(t)
	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func raw(sourceID, sourceType, name, website string) entity.RawRecord {
	return entity.RawRecord{
		SourceID:   sourceID,
		SourceType: sourceType,
		FetchedAt:  time.Now().UTC(),
		Payload: map[string]any{
			"name":        name,
			"type":        "startup",
			"website":     website,
			"description": name + " builds things",
		},
	}
}

// events collects hook callbacks.
type events struct {
	mu          sync.Mutex
	created     []string
	updated     []string
	absorbed    map[string]string
	transitions []string
	runs        []scheduler.Run
}

func watch(c Client) *events {
	ev := &events{absorbed: map[string]string{}}
	c.OnEntityCreated(func(e entity.Entity) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.created = append(ev.created, e.Name)
	})
	c.OnEntityUpdated(func(e entity.Entity) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.updated = append(ev.updated, e.Name)
	})
	c.OnEntityAbsorbed(func(absorbed, into string) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.absorbed[absorbed] = into
	})
	c.OnTransition(func(a entity.AuditEvent) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.transitions = append(ev.transitions, a.Transition)
	})
	c.OnRunFinished(func(r scheduler.Run) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.runs = append(ev.runs, r)
	})
	return ev
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	ev := watch(c)

	nova := raw("crawl:nova", "web_crawl", "Nova", "nova.io")
	res, err := c.Ingest(ctx, []entity.RawRecord{
		raw("crawl:acme", "web_crawl", "Acme", "acme.com"),
		raw("api:acme", "permissioned_api", "Acme Inc", "https://www.acme.com/"),
		nova,
		{SourceID: "crawl:bad", SourceType: "web_crawl", Payload: map[string]any{"type": "startup"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Received)
	assert.Equal(t, 3, res.Normalized)
	require.Len(t, res.Rejected, 1)
	assert.Len(t, res.Resolve.Created, 2)
	assert.ElementsMatch(t, []string{"Acme Inc", "Nova"}, ev.created, "the higher-confidence name wins")

	all, err := c.Entities(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	members, err := c.Members(ctx, res.Resolve.Created[0])
	require.NoError(t, err)
	assert.NotEmpty(t, members)

	t.Run("re-ingest is idempotent", func(t *testing.T) {
		res, err := c.Ingest(ctx, []entity.RawRecord{nova})
		require.NoError(t, err)
		assert.Empty(t, res.Resolve.Created)
		assert.Empty(t, res.Resolve.Updated)
	})
}

func TestCollectionRun(t *testing.T) {
	ctx := context.Background()

	t.Run("submitted and collected records", func(t *testing.T) {
		c := newTestClient(t, WithCollector(CollectorFunc{
			ID: "static",
			Fn: func(context.Context) ([]entity.RawRecord, error) {
				return []entity.RawRecord{raw("crawl:nova", "web_crawl", "Nova", "nova.io")}, nil
			},
		}))
		ev := watch(c)
		c.Submit(raw("crawl:acme", "web_crawl", "Acme", "acme.com"))

		ack, err := c.Trigger(ctx, scheduler.ClassCollection)
		require.NoError(t, err)
		require.True(t, ack.Accepted)

		run, err := c.Wait(ctx, ack.RunID)
		require.NoError(t, err)
		assert.Equal(t, scheduler.StatusSucceeded, run.Status)

		all, err := c.Entities(ctx, Query{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		ev.mu.Lock()
		defer ev.mu.Unlock()
		require.Len(t, ev.runs, 1)
		assert.Equal(t, ack.RunID, ev.runs[0].ID)
		assert.Len(t, c.Runs(), 1)
	})

	t.Run("failing collector fails the run but others still land", func(t *testing.T) {
		c := newTestClient(t,
			WithCollector(CollectorFunc{
				ID: "broken",
				Fn: func(context.Context) ([]entity.RawRecord, error) { return nil, errors.New("upstream down") },
			}),
			WithCollector(CollectorFunc{
				ID: "ok",
				Fn: func(context.Context) ([]entity.RawRecord, error) {
					return []entity.RawRecord{raw("crawl:nova", "web_crawl", "Nova", "nova.io")}, nil
				},
			}),
		)
		ack, err := c.Trigger(ctx, scheduler.ClassCollection)
		require.NoError(t, err)
		run, err := c.Wait(ctx, ack.RunID)
		require.NoError(t, err)
		assert.Equal(t, scheduler.StatusFailed, run.Status)
		assert.Contains(t, run.Error, "upstream down")

		all, err := c.Entities(ctx, Query{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("feed collector", func(t *testing.T) {
		dir := t.TempDir()
		feedFile := filepath.Join(dir, "records.yaml")
		require.NoError(t, os.WriteFile(feedFile, []byte(`
- source_id: feed:acme
  source_type: government
  fetched_at: 2025-01-01T00:00:00Z
  payload:
    name: Acme
    type: startup
`), 0o644))

		c := newTestClient(t, WithCollector(FeedCollector(feedFile)))
		ack, err := c.Trigger(ctx, scheduler.ClassCollection)
		require.NoError(t, err)
		run, err := c.Wait(ctx, ack.RunID)
		require.NoError(t, err)
		assert.Equal(t, scheduler.StatusSucceeded, run.Status, run.Error)

		all, err := c.Entities(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Acme", all[0].Name)
	})

	t.Run("http collector", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") != "k" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			_, _ = w.Write([]byte(`{"source_id": "api:nova", "source_type": "permissioned_api", "fetched_at": "2025-01-01T00:00:00Z", "payload": {"name": "Nova", "type": "startup"}}` + "\n"))
		}))
		defer srv.Close()

		col, err := HTTPCollector(srv.URL+"/companies", "header:X-Api-Key", "k")
		require.NoError(t, err)
		assert.Equal(t, "http:"+srv.URL+"/companies", col.Name())

		c := newTestClient(t, WithCollector(col))
		ack, err := c.Trigger(ctx, scheduler.ClassCollection)
		require.NoError(t, err)
		run, err := c.Wait(ctx, ack.RunID)
		require.NoError(t, err)
		assert.Equal(t, scheduler.StatusSucceeded, run.Status, run.Error)

		all, err := c.Entities(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Nova", all[0].Name)

		_, err = HTTPCollector(srv.URL, "digest", "k")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()
	source := signals.SourceFunc(func(_ context.Context, e *entity.Entity) (entity.SignalBundle, error) {
		if e.Name != "Acme" {
			return nil, nil
		}
		return entity.SignalBundle{
			signals.GitHubStars: {Value: 10_000, ObservedAt: time.Now(), SourceID: "github"},
		}, nil
	})
	c := newTestClient(t, WithSignalSource(source))
	_, err := c.Ingest(ctx, []entity.RawRecord{
		raw("crawl:acme", "web_crawl", "Acme", "acme.com"),
		raw("crawl:nova", "web_crawl", "Nova", "nova.io"),
	})
	require.NoError(t, err)

	res, err := c.Analyze(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Scored, 1)
	assert.Len(t, res.Unscored, 1)

	ranked, err := c.Entities(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Acme", ranked[0].Name, "scored entities rank first")
	require.NotNil(t, ranked[0].GrowthScore)
	assert.Nil(t, ranked[1].GrowthScore)

	scored, err := c.Score(ctx, ranked[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ranked[0].GrowthScore, scored.GrowthScore)
}

func TestCleanupTransitions(t *testing.T) {
	ctx := context.Background()
	later := time.Now().AddDate(0, 0, 200)
	sink := &quality.SliceSink{}
	c := newTestClient(t,
		WithAuditSink(sink),
		WithQualityOptions(quality.WithClock(func() time.Time { return later })),
	)
	ev := watch(c)
	_, err := c.Ingest(ctx, []entity.RawRecord{raw("crawl:acme", "web_crawl", "Acme", "acme.com")})
	require.NoError(t, err)

	res, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Archived, 1)
	assert.Equal(t, []string{"active->archived"}, ev.transitions)
	assert.Len(t, sink.Events(), 1, "the configured sink sees transitions too")

	archived, err := c.Entities(ctx, Query{Statuses: []entity.Status{entity.StatusArchived}})
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestCorrector(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	res, err := c.Ingest(ctx, []entity.RawRecord{raw("crawl:acme", "web_crawl", "Acme", "acme.com")})
	require.NoError(t, err)
	id := res.Resolve.Created[0]

	r, err := c.Report(ctx, entity.UserReport{EntityID: id, Field: entity.FieldCity, SubmitterRef: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	e, err := c.Correct(ctx, entity.UserCorrection{
		EntityID:     id,
		Field:        entity.FieldCity,
		NewValue:     "Seoul",
		SubmittedAt:  time.Now(),
		SubmitterRef: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "Seoul", e.City)

	_, err = c.Correct(ctx, entity.UserCorrection{EntityID: "missing", Field: entity.FieldCity, NewValue: "x", SubmittedAt: time.Now(), SubmitterRef: "bob"})
	assert.True(t, errors.IsNotFound(err))

	reviewed, err := c.Review(ctx, id, "carol")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusActive, reviewed.Status)
}

func scored(t *testing.T, id, name string, score float64) *entity.Entity {
	e := storetest.TestEntity(t, id, name)
	e.GrowthScore = &score
	return e
}

func TestEntities(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	archived := scored(t, "e4", "Delta", 90)
	archived.Status = entity.StatusArchived
	absorbed := storetest.TestEntity(t, "e5", "Acme Old")
	absorbed.Status = entity.StatusArchived
	absorbed.MergedInto = "e1"
	investor := scored(t, "e6", "Fund", 70)
	investor.Type = entity.TypeInvestor
	require.NoError(t, s.Commit(ctx, &store.Batch{Entities: []*entity.Entity{
		scored(t, "e1", "Acme", 80),
		scored(t, "e2", "Beta", 80),
		storetest.TestEntity(t, "e3", "Gamma"),
		archived,
		absorbed,
		investor,
	}}))
	c := newTestClient(t, WithStore(s))

	ptr := func(f float64) *float64 { return &f }
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"default ranks by score then name", Query{}, []string{"e4", "e1", "e2", "e6", "e3"}},
		{"status filter", Query{Statuses: []entity.Status{entity.StatusActive}}, []string{"e1", "e2", "e6", "e3"}},
		{"type filter", Query{Types: []entity.Type{entity.TypeInvestor}}, []string{"e6"}},
		{"score range", Query{MinScore: ptr(75), MaxScore: ptr(85)}, []string{"e1", "e2"}},
		{"limit", Query{Limit: 2}, []string{"e4", "e1"}},
		{"absorbed included", Query{IncludeAbsorbed: true, Statuses: []entity.Status{entity.StatusArchived}}, []string{"e4", "e5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Entities(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("entity follows merges", func(t *testing.T) {
		e, err := c.Entity(ctx, "e5")
		require.NoError(t, err)
		assert.Equal(t, "e1", e.ID)
	})

	t.Run("save snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "catalog.yaml")
		require.NoError(t, c.Save(ctx, Query{Limit: 3}, save.WithPath(path)))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var snap Snapshot
		require.NoError(t, yaml.Unmarshal(data, &snap))
		assert.Equal(t, 3, snap.Count)
		require.Len(t, snap.Entities, 3)
		assert.Equal(t, "e4", snap.Entities[0].ID)
	})
}

func TestNewOptions(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := New(WithSchedule(scheduler.ClassCleanup, "not a cron"))
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("invalid concurrency", func(t *testing.T) {
		_, err := New(WithConcurrency(-1))
		require.Error(t, err)
	})

	t.Run("default cadences", func(t *testing.T) {
		c := newTestClient(t)
		entries := c.Entries()
		require.Len(t, entries, 3)
		for _, e := range entries {
			assert.Equal(t, e.Class.DefaultSchedule(), e.Schedule)
		}
	})
}
