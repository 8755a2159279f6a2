package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/errors"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing token"))
			return
		}
		switch r.URL.Path {
		case "/records":
			w.Header().Set("Content-Type", "application/x-ndjson")
			_, _ = w.Write([]byte(`{"source_id": "api:a"}` + "\n"))
		case "/records.yaml":
			_, _ = w.Write([]byte("source_id: api:a\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("format from content type", func(t *testing.T) {
		c := New(&BearerAuth{}, "secret")
		body, format, err := c.Fetch(ctx, srv.URL+"/records")
		require.NoError(t, err)
		assert.Equal(t, "jsonl", format)
		assert.Contains(t, string(body), "api:a")
	})

	t.Run("format from extension", func(t *testing.T) {
		c := New(&BearerAuth{}, "secret")
		_, format, err := c.Fetch(ctx, srv.URL+"/records.yaml")
		require.NoError(t, err)
		assert.Equal(t, "yaml", format)
	})

	t.Run("status error", func(t *testing.T) {
		c := New(&BearerAuth{}, "")
		_, _, err := c.Fetch(ctx, srv.URL+"/records")
		var apiErr *errors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "missing token", apiErr.Message)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := New(nil, "")
		_, _, err := c.Fetch(ctx, "http://127.0.0.1:1/records")
		var apiErr *errors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Zero(t, apiErr.StatusCode)
	})
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/feed.json"))
	assert.True(t, IsURL("http://localhost:8080/feed"))
	assert.False(t, IsURL("feeds/daily.json"))
	assert.False(t, IsURL("/var/feeds"))
}
