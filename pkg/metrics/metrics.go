// Package metrics exposes pipeline counters and histograms to Prometheus.
// Collectors live on a dedicated registry so tests and embedding programs do
// not collide with the global default registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecomap"

// Registry holds every ecomap collector.
var Registry = prometheus.NewRegistry()

var (
	// RecordsNormalized counts normalizer outcomes by result ("accepted", "rejected") and reason.
	RecordsNormalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "normalize",
		Name:      "records_total",
		Help:      "Records seen by the normalizer by outcome",
	}, []string{"outcome", "reason"})

	// EntitiesResolved counts resolver outcomes per entity ("created", "updated", "unchanged", "absorbed", "failed", "skipped").
	EntitiesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "entities_total",
		Help:      "Entities touched by resolution runs by outcome",
	}, []string{"outcome"})

	// ResolutionConflicts counts ambiguous merges resolved deterministically.
	ResolutionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "conflicts_total",
		Help:      "Ambiguous merge decisions",
	})

	// WriteRetries counts store commits retried after a version conflict.
	WriteRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "write_retries_total",
		Help:      "Commits retried after an optimistic version conflict",
	}, []string{"component"})

	// EntitiesScored counts aggregator outcomes ("scored", "absent", "failed").
	EntitiesScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "entities_total",
		Help:      "Entities visited by the signal aggregator by outcome",
	}, []string{"outcome"})

	// GrowthScores observes computed growth scores.
	GrowthScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "growth_score",
		Help:      "Distribution of computed growth scores",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	// QualityTransitions counts audit state transitions by transition label ("active->flagged").
	QualityTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quality",
		Name:      "transitions_total",
		Help:      "Quality state transitions",
	}, []string{"transition"})

	// JobRuns counts scheduler triggers by job class and status ("accepted", "rejected", "succeeded", "failed", "canceled").
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Job runs by class and status",
	}, []string{"class", "status"})

	// JobDuration observes job run durations by class.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Job run durations",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"class"})

	// LastSuccess records the unix time of each class's last successful run.
	LastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	}, []string{"class"})

	// APIRequests counts HTTP API requests by route pattern, method and status code.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP API requests",
	}, []string{"route", "method", "code"})

	// APIDuration observes HTTP API latencies by route pattern.
	APIDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP API request latencies",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RecordsNormalized, EntitiesResolved, ResolutionConflicts, WriteRetries,
		EntitiesScored, GrowthScores, QualityTransitions,
		JobRuns, JobDuration, LastSuccess,
		APIRequests, APIDuration,
	)
}

// Handler serves the ecomap registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Server serves /metrics and /healthz on addr.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Serve blocks serving requests until Shutdown.
func (s *Server) Serve() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
