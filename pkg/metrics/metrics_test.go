package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(JobRuns.WithLabelValues("daily-collection", "accepted"))
	JobRuns.WithLabelValues("daily-collection", "accepted").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(JobRuns.WithLabelValues("daily-collection", "accepted")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ResolutionConflicts.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ecomap_resolve_conflicts_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
