package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/errors"
)

var fetched = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRecords(t *testing.T) {
	fsys := fstest.MapFS{
		"feeds/a.json": {Data: []byte(`[
  {"source_id": "gov:acme", "source_type": "government", "fetched_at": "2024-06-01T12:00:00Z",
   "payload": {"name": "Acme Inc.", "website": "acme.com", "headcount": 12}}
]`)},
		"feeds/b.yaml": {Data: []byte(`source_id: crawl:acme
source_type: web_crawl
fetched_at: 2024-06-01T12:00:00Z
payload:
  name: ACME
  tags: [ai, logistics]
`)},
		"feeds/c.jsonl": {Data: []byte(`{"source_id": "api:nova", "source_type": "permissioned_api", "fetched_at": "2024-06-01T12:00:00Z", "payload": {"name": "Nova"}}

{"source_id": "api:kakao", "source_type": "permissioned_api", "fetched_at": "2024-06-01T12:00:00Z", "payload": {"name": "Kakao"}}
`)},
		"feeds/notes.txt": {Data: []byte("ignored")},
	}

	src, err := FromFS(fsys, "feeds")
	require.NoError(t, err)
	assert.Equal(t, []string{"feeds/a.json", "feeds/b.yaml", "feeds/c.jsonl"}, src.Files())

	recs, err := src.Records()
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, "gov:acme", recs[0].SourceID)
	assert.Equal(t, "government", recs[0].SourceType)
	assert.True(t, fetched.Equal(recs[0].FetchedAt))
	assert.Equal(t, "Acme Inc.", recs[0].Payload["name"])
	assert.NotNil(t, recs[0].Payload["headcount"])

	assert.Equal(t, "crawl:acme", recs[1].SourceID)
	assert.True(t, fetched.Equal(recs[1].FetchedAt))
	assert.Len(t, recs[1].Payload["tags"], 2)

	assert.Equal(t, []string{"api:nova", "api:kakao"}, []string{recs[2].SourceID, recs[3].SourceID})
}

func TestCorrectionsAndReports(t *testing.T) {
	fsys := fstest.MapFS{
		"corrections.yaml": {Data: []byte(`- entity_id: e1
  field: name
  new_value: Acme Robotics
  submitted_at: 2024-06-02T00:00:00Z
  submitter_ref: alice
- entity_id: e1
  field: location
  new_value: {lat: 37.5, lon: 127.0}
  submitted_at: 2024-06-02T00:00:00Z
  submitter_ref: bob
`)},
		"reports.json": {Data: []byte(`[{"entity_id": "e1", "field": "website", "reason": "dead link", "submitter_ref": "carol", "submitted_at": "2024-06-03T00:00:00Z"}]`)},
	}

	src, err := FromFS(fsys, "corrections.yaml")
	require.NoError(t, err)
	corrections, err := src.Corrections()
	require.NoError(t, err)
	require.Len(t, corrections, 2)
	assert.Equal(t, "Acme Robotics", corrections[0].NewValue)
	assert.Equal(t, "alice", corrections[0].SubmitterRef)
	assert.NotNil(t, corrections[1].NewValue)

	src, err = FromFS(fsys, "reports.json")
	require.NoError(t, err)
	reports, err := src.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "website", reports[0].Field)
	assert.Equal(t, "dead link", reports[0].Reason)
	assert.False(t, reports[0].Resolved())
}

func TestSignals(t *testing.T) {
	fsys := fstest.MapFS{
		"signals.yaml": {Data: []byte(`- entity_id: e1
  signals:
    github_stars: {value: 100, observed_at: 2024-05-01T00:00:00Z, source_id: github}
- entity_id: e1
  signals:
    github_stars: {value: 150, observed_at: 2024-06-01T00:00:00Z, source_id: github}
    hiring_posts: {value: 4, observed_at: 2024-06-01T00:00:00Z, source_id: jobs}
- entity_id: e2
  signals:
    github_stars: {value: 7, observed_at: 2024-06-01T00:00:00Z, source_id: github}
`)},
		"bad.yaml": {Data: []byte(`- signals: {}`)},
	}

	src, err := FromFS(fsys, "signals.yaml")
	require.NoError(t, err)
	bundles, err := src.Signals()
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, 150.0, bundles["e1"]["github_stars"].Value)
	assert.Equal(t, 4.0, bundles["e1"]["hiring_posts"].Value)
	assert.Equal(t, 7.0, bundles["e2"]["github_stars"].Value)

	src, err = FromFS(fsys, "bad.yaml")
	require.NoError(t, err)
	_, err = src.Signals()
	assert.True(t, errors.IsValidationError(err))
}

func TestReadErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.json":  {Data: []byte(`[{"source_id": `)},
		"broken.jsonl": {Data: []byte("{\"source_id\": \"a\"}\n{oops\n")},
		"empty.yaml":   {Data: []byte("   \n")},
		"records.csv":  {Data: []byte("a,b")},
	}

	tests := []struct {
		name    string
		path    string
		wantErr func(error) bool
	}{
		{"malformed json", "broken.json", func(err error) bool {
			var pe *errors.ParseError
			return errors.As(err, &pe) && pe.Format == "json"
		}},
		{"malformed line", "broken.jsonl", func(err error) bool {
			var pe *errors.ParseError
			return errors.As(err, &pe) && pe.Format == "jsonl" && strings.Contains(pe.Message, "line 2")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := FromFS(fsys, tt.path)
			require.NoError(t, err)
			_, err = src.Records()
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
		})
	}

	t.Run("empty file", func(t *testing.T) {
		src, err := FromFS(fsys, "empty.yaml")
		require.NoError(t, err)
		recs, err := src.Records()
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := FromFS(fsys, "records.csv")
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := FromFS(fsys, "nope.json")
		var ioErr *errors.IOError
		assert.True(t, errors.As(err, &ioErr))
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "records.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- source_id: a\n  source_type: inferred\n  payload: {name: A}\n"), 0o600))

	for _, p := range []string{dir, file} {
		src, err := Open(p)
		require.NoError(t, err)
		recs, err := src.Records()
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "a", recs[0].SourceID)
	}

	_, err := Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestParseRecords(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		data    string
		want    []string
		wantErr error
	}{
		{
			name:   "json list",
			format: "json",
			data:   `[{"source_id": "api:a", "source_type": "permissioned_api"}, {"source_id": "api:b", "source_type": "permissioned_api"}]`,
			want:   []string{"api:a", "api:b"},
		},
		{
			name:   "json lines with dot",
			format: ".JSONL",
			data:   "{\"source_id\": \"api:a\"}\n{\"source_id\": \"api:b\"}\n",
			want:   []string{"api:a", "api:b"},
		},
		{
			name:   "single yaml item",
			format: "yaml",
			data:   "source_id: crawl:a\nsource_type: web_crawl\n",
			want:   []string{"crawl:a"},
		},
		{
			name:   "empty body",
			format: "json",
			data:   "  ",
		},
		{
			name:    "unsupported format",
			format:  "csv",
			data:    "a,b",
			wantErr: errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := ParseRecords("remote", tt.format, []byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.SourceID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
